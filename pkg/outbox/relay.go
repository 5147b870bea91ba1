package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Store interface {
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string, permanent bool) error
	ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error
}

// Relay moves recorded events from the store to the broker. Several relays
// may share a store; each claims its batch under a lease.
type Relay struct {
	log       *slog.Logger
	store     Store
	dispatch  *Dispatcher
	relayID   string
	batchSize int
	chunkSize int
	interval  time.Duration
	lease     time.Duration

	sent   metric.Int64Counter
	failed metric.Int64Counter
}

type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithLease(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.lease = d
		}
	}
}

func NewRelay(log *slog.Logger, store Store, dispatch *Dispatcher, relayID string, opts ...Option) *Relay {
	r := &Relay{
		log:       log,
		store:     store,
		dispatch:  dispatch,
		relayID:   relayID,
		batchSize: 100,
		chunkSize: 25,
		interval:  500 * time.Millisecond,
		lease:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}

	meter := otel.Meter("outbox")
	var err error
	if r.sent, err = meter.Int64Counter("outbox.events.sent"); err != nil {
		log.Warn("outbox sent counter unavailable", "err", err)
	}
	if r.failed, err = meter.Int64Counter("outbox.events.failed"); err != nil {
		log.Warn("outbox failed counter unavailable", "err", err)
	}
	return r
}

// Run polls until ctx ends. A full batch is followed straight away by the
// next one so a backlog drains without waiting for the ticker.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info("relay started", "relay_id", r.relayID, "batch_size", r.batchSize, "lease", r.lease)
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping", "relay_id", r.relayID)
			return nil
		case <-t.C:
		}

		for ctx.Err() == nil {
			claimed, _, err := r.tick(ctx)
			if err != nil {
				r.log.Error("relay tick error", "relay_id", r.relayID, "err", err)
				break
			}
			if claimed < r.batchSize {
				break
			}
		}
	}
}

// Tick dispatches one batch and returns how many events were sent.
func (r *Relay) Tick(ctx context.Context) (int, error) {
	_, sent, err := r.tick(ctx)
	return sent, err
}

func (r *Relay) tick(ctx context.Context) (claimed, sent int, err error) {
	events, err := r.store.LockBatch(ctx, r.relayID, r.batchSize, r.lease)
	if err != nil || len(events) == 0 {
		return 0, 0, err
	}

	deadline := time.Now().Add(r.lease / 2)
	ids := make([]int64, 0, len(events))
	var failed int
	for start := 0; start < len(events); start += r.chunkSize {
		if time.Now().After(deadline) {
			if err := r.store.ExtendLease(ctx, r.relayID, eventIDs(events[start:]), r.lease); err != nil {
				r.log.Error("relay extend lease error", "relay_id", r.relayID, "err", err)
			}
			deadline = time.Now().Add(r.lease / 2)
		}

		chunk := events[start:min(start+r.chunkSize, len(events))]
		for i, perr := range r.dispatch.Publish(ctx, chunk) {
			e := chunk[i]
			if perr == nil {
				ids = append(ids, e.ID)
				continue
			}
			failed++
			permanent := errors.Is(perr, ErrPermanent) || e.RetryCount+1 >= MaxRetries
			if permanent {
				r.log.Warn("outbox event parked", "event_id", e.ID, "type", e.Type, "retries", e.RetryCount+1)
			}
			if err := r.store.MarkFailed(ctx, e.ID, perr.Error(), permanent); err != nil {
				r.log.Error("relay mark failed error", "event_id", e.ID, "err", err)
			}
		}
	}

	attrs := metric.WithAttributes(attribute.String("relay_id", r.relayID))
	if r.failed != nil && failed > 0 {
		r.failed.Add(ctx, int64(failed), attrs)
	}
	if len(ids) == 0 {
		return len(events), 0, nil
	}
	if err := r.store.MarkSent(ctx, ids); err != nil {
		return len(events), 0, err
	}
	if r.sent != nil {
		r.sent.Add(ctx, int64(len(ids)), attrs)
	}
	return len(events), len(ids), nil
}

func eventIDs(events []Event) []int64 {
	ids := make([]int64, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	return ids
}
