package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/dmehra2102/commerce-backoffice/pkg/outbox"
)

// OutboxStore records events inside the caller's transaction and serves them
// to the relay.
type OutboxStore struct{ s *Store }

func NewOutboxStore(s *Store) *OutboxStore { return &OutboxStore{s: s} }

func (o *OutboxStore) Record(ctx context.Context, e outbox.Event) error {
	return o.s.write(ctx, "outbox.record", func(t *tables) error {
		e.ID = t.next("outbox")
		if e.Status == "" {
			e.Status = outbox.StatusPending
		}
		t.outbox[e.ID] = e
		return nil
	})
}

// Events lists recorded events, oldest first, optionally filtered by type.
func (o *OutboxStore) Events(ctx context.Context, eventType string) []outbox.Event {
	var out []outbox.Event
	_ = o.s.read(ctx, func(t *tables) error {
		for _, e := range t.outbox {
			if eventType == "" || e.Type == eventType {
				out = append(out, e)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b outbox.Event) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (o *OutboxStore) LockBatch(ctx context.Context, _ string, batchSize int, _ time.Duration) ([]outbox.Event, error) {
	var out []outbox.Event
	err := o.s.read(ctx, func(t *tables) error {
		for id, e := range t.outbox {
			if e.Status != outbox.StatusPending {
				continue
			}
			e.Status = outbox.StatusInProgress
			t.outbox[id] = e
			out = append(out, e)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b outbox.Event) int { return cmp.Compare(a.ID, b.ID) })
	if len(out) > batchSize {
		back := out[batchSize:]
		out = out[:batchSize]
		_ = o.s.read(ctx, func(t *tables) error {
			for _, e := range back {
				e.Status = outbox.StatusPending
				t.outbox[e.ID] = e
			}
			return nil
		})
	}
	return out, err
}

func (o *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	return o.s.read(ctx, func(t *tables) error {
		for _, id := range ids {
			if e, ok := t.outbox[id]; ok {
				e.Status = outbox.StatusSent
				t.outbox[id] = e
			}
		}
		return nil
	})
}

func (o *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string, permanent bool) error {
	return o.s.read(ctx, func(t *tables) error {
		e, ok := t.outbox[id]
		if !ok {
			return nil
		}
		e.RetryCount++
		e.LastError = &errMsg
		e.Status = outbox.StatusPending
		if permanent {
			e.Status = outbox.StatusFailed
		}
		t.outbox[id] = e
		return nil
	})
}

func (o *OutboxStore) ExtendLease(context.Context, string, []int64, time.Duration) error {
	return nil
}
