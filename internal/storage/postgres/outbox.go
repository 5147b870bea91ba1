package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/dmehra2102/commerce-backoffice/pkg/outbox"
)

// OutboxStore records events inside the caller's transaction and hands
// batches to the relay under a lease.
type OutboxStore struct{ db *DB }

func NewOutboxStore(db *DB) *OutboxStore { return &OutboxStore{db: db} }

func (s *OutboxStore) Record(ctx context.Context, e outbox.Event) error {
	if e.Status == "" {
		e.Status = outbox.StatusPending
	}
	if e.Headers == nil {
		e.Headers = map[string]string{}
	}
	_, err := s.db.q(ctx).Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.AggregateType, e.AggregateID, e.Type, e.Payload, e.Headers, e.Traceparent, e.Status, e.CreatedAt)
	return translate(err, "outbox event")
}

// LockBatch claims pending events plus in-progress ones whose lease ran out,
// skipping rows another relay holds.
func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	var events []outbox.Event
	err := pgx.BeginFunc(ctx, s.db.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, aggregate_type, aggregate_id, type, payload, headers, traceparent, status, retry_count,
				last_error, created_at
			FROM outbox
			WHERE status = 'pending' OR (status = 'in_progress' AND lease_until < now())
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT $1`, batchSize)
		if err != nil {
			return err
		}
		events, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (outbox.Event, error) {
			var e outbox.Event
			err := row.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.Type, &e.Payload, &e.Headers,
				&e.Traceparent, &e.Status, &e.RetryCount, &e.LastError, &e.CreatedAt)
			return e, err
		})
		if err != nil || len(events) == 0 {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE outbox SET status='in_progress', relay_id=$1, lease_until=now() + $2::interval
			WHERE id = ANY($3)`, relayID, lease, eventIDs(events))
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "lock outbox batch")
	}
	return events, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	tag, err := s.db.pool.Exec(ctx, `UPDATE outbox SET status='sent', lease_until=NULL WHERE id = ANY($1)`, ids)
	if err != nil {
		return errors.Wrap(err, "mark outbox sent")
	}
	if tag.RowsAffected() == 0 {
		return errors.New("no outbox rows updated")
	}
	return nil
}

// MarkFailed returns the event to pending for another attempt, or parks it
// as failed when the error is permanent.
func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string, permanent bool) error {
	status := outbox.StatusPending
	if permanent {
		status = outbox.StatusFailed
	}
	_, err := s.db.pool.Exec(ctx, `
		UPDATE outbox SET status=$2, last_error=$3, retry_count=retry_count+1, lease_until=NULL
		WHERE id=$1`, id, status, errMsg)
	return errors.Wrap(err, "mark outbox failed")
}

func (s *OutboxStore) ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error {
	_, err := s.db.pool.Exec(ctx, `
		UPDATE outbox SET lease_until=now() + $1::interval WHERE id = ANY($2) AND relay_id=$3`,
		lease, ids, relayID)
	return errors.Wrap(err, "extend outbox lease")
}

func eventIDs(events []outbox.Event) []int64 {
	ids := make([]int64, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	return ids
}
