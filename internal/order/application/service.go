package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
	"github.com/dmehra2102/commerce-backoffice/pkg/outbox"
)

type Service struct {
	log       *slog.Logger
	tx        Transactor
	repo      OrderRepository
	inventory Inventory
	events    outbox.Recorder
	now       func() time.Time
}

func NewService(log *slog.Logger, tx Transactor, repo OrderRepository, inventory Inventory, events outbox.Recorder) *Service {
	return &Service{log: log, tx: tx, repo: repo, inventory: inventory, events: events, now: time.Now}
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Timeline(ctx context.Context, id int64) ([]domain.StatusEvent, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Timeline(ctx, id)
}

// Transition moves the order along its status machine, appends the timeline
// entry and releases inventory when the order is cancelled.
func (s *Service) Transition(ctx context.Context, id int64, to domain.Status, note string, actorID *int64) (domain.Order, error) {
	if !to.Valid() {
		return domain.Order{}, apperr.Validation("unknown order status %q", to)
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.Lock(ctx, id)
		if err != nil {
			return err
		}
		return s.transition(ctx, o, to, note, actorID)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return s.repo.Get(ctx, id)
}

// Cancel cancels the order. Cancelling an already cancelled order re-runs the
// idempotent release and succeeds without a new timeline entry.
func (s *Service) Cancel(ctx context.Context, id int64, note string, actorID *int64) (domain.Order, error) {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.Lock(ctx, id)
		if err != nil {
			return err
		}
		if o.Status == domain.StatusCancelled {
			return s.inventory.Release(ctx, o.ID)
		}
		return s.transition(ctx, o, domain.StatusCancelled, note, actorID)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) transition(ctx context.Context, o domain.Order, to domain.Status, note string, actorID *int64) error {
	from := o.Status
	if !from.CanTransition(to) {
		return apperr.Conflict("order %d cannot move from %s to %s", o.ID, from, to)
	}
	if to == domain.StatusCancelled && !o.CanBeCancelled() {
		return apperr.Conflict("order %d can no longer be cancelled", o.ID)
	}

	now := s.now().UTC()
	o.Status = to
	o.UpdatedAt = now
	if err := s.repo.Update(ctx, o); err != nil {
		return err
	}
	if err := s.repo.AppendStatusEvent(ctx, &domain.StatusEvent{
		OrderID:    o.ID,
		Status:     to,
		Note:       note,
		ActorID:    actorID,
		HappenedAt: now,
	}); err != nil {
		return err
	}
	if to == domain.StatusCancelled {
		if err := s.inventory.Release(ctx, o.ID); err != nil {
			return err
		}
	}
	s.log.Info("order status changed", "order_id", o.ID, "from", from, "to", to)
	return record(ctx, s.events, o.ID, domain.EventOrderStatusChanged, domain.OrderStatusChanged{
		OrderID: o.ID,
		From:    from,
		To:      to,
		ActorID: actorID,
	})
}

type AddressInput struct {
	Shipping              domain.Address
	Billing               *domain.Address
	BillingSameAsShipping bool
}

// UpdateAddresses re-upserts the billing and shipping rows. Repeating the
// call with the same input leaves exactly one row per type.
func (s *Service) UpdateAddresses(ctx context.Context, id int64, in AddressInput) (domain.Order, error) {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.Lock(ctx, id)
		if err != nil {
			return err
		}
		if o.Status.IsCompleted() {
			return apperr.Conflict("order %d is %s", o.ID, o.Status)
		}
		pair, err := domain.AddressPair(o.ID, in.Shipping, in.Billing, in.BillingSameAsShipping)
		if err != nil {
			return err
		}
		for i := range pair {
			if err := s.repo.UpsertAddress(ctx, &pair[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return s.repo.Get(ctx, id)
}
