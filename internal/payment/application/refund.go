package application

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	orderdomain "github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	"github.com/dmehra2102/commerce-backoffice/internal/payment/domain"
	"github.com/dmehra2102/commerce-backoffice/internal/payment/gateway"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

type RefundInput struct {
	PaymentID      int64
	Amount         decimal.Decimal
	Reason         string
	IdempotencyKey string
}

// Refund reserves the amount as a pending refund under the payment lock, asks
// the provider, then settles the refund. A replay with the same idempotency
// key returns the original refund.
func (s *Service) Refund(ctx context.Context, in RefundInput) (domain.Refund, error) {
	if in.IdempotencyKey != "" {
		existing, err := s.repo.RefundByKey(ctx, in.IdempotencyKey)
		if err == nil {
			if existing.PaymentID != in.PaymentID {
				return domain.Refund{}, apperr.Conflict("idempotency key already used for another payment")
			}
			return existing, nil
		}
		if !apperr.IsNotFound(err) {
			return domain.Refund{}, err
		}
	} else {
		in.IdempotencyKey = uuid.NewString()
	}

	var (
		r domain.Refund
		p domain.Payment
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.repo.LockPayment(ctx, in.PaymentID)
		if err != nil {
			return err
		}
		if p.Status != domain.StatusCaptured {
			return apperr.Conflict("payment %d is %s and cannot be refunded", p.ID, p.Status)
		}
		committed, err := s.repo.SumRefunds(ctx, p.ID, domain.RefundPending, domain.RefundSucceeded)
		if err != nil {
			return err
		}
		if err := domain.ValidateRefund(p.Amount, committed, in.Amount); err != nil {
			return err
		}
		now := s.now().UTC()
		r = domain.Refund{
			PaymentID:      p.ID,
			OrderID:        p.OrderID,
			Amount:         in.Amount,
			Status:         domain.RefundPending,
			Reason:         in.Reason,
			IdempotencyKey: in.IdempotencyKey,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return s.repo.InsertRefund(ctx, &r)
	})
	if apperr.IsDuplicate(err) {
		return s.repo.RefundByKey(ctx, in.IdempotencyKey)
	}
	if err != nil {
		return domain.Refund{}, err
	}

	g, err := s.gateways.Get(p.Provider)
	if err != nil {
		return domain.Refund{}, err
	}
	res, gwErr := g.Refund(ctx, p, in.Amount, in.Reason, in.IdempotencyKey)

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		locked, err := s.repo.LockRefund(ctx, r.ID)
		if err != nil {
			return err
		}
		if gwErr != nil {
			return s.failRefund(ctx, &locked)
		}
		if res.ProviderRefundID != "" {
			id := res.ProviderRefundID
			locked.ProviderRefundID = &id
		}
		switch res.Status {
		case domain.RefundSucceeded:
			err = s.succeedRefund(ctx, &locked)
		case domain.RefundFailed:
			err = s.failRefund(ctx, &locked)
		default:
			locked.UpdatedAt = s.now().UTC()
			err = s.repo.UpdateRefund(ctx, locked)
		}
		r = locked
		return err
	})
	if gwErr != nil {
		s.log.Error("refund failed at provider", "payment_id", p.ID, "refund_id", r.ID, "err", gwErr)
		return domain.Refund{}, gwErr
	}
	if err != nil {
		return domain.Refund{}, err
	}
	s.log.Info("refund recorded", "payment_id", p.ID, "refund_id", r.ID, "status", r.Status)
	return r, nil
}

func (s *Service) Refunds(ctx context.Context, paymentID int64) ([]domain.Refund, error) {
	if _, err := s.repo.GetPayment(ctx, paymentID); err != nil {
		return nil, err
	}
	return s.repo.ListRefunds(ctx, paymentID)
}

func (s *Service) settleProviderRefund(ctx context.Context, ev gateway.Event) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.repo.LockRefundByProviderID(ctx, ev.ProviderRefundID)
		if apperr.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if ev.Kind == gateway.EventRefundSucceeded {
			return s.succeedRefund(ctx, &r)
		}
		return s.failRefund(ctx, &r)
	})
}

// succeedRefund marks a pending refund succeeded. Once succeeded refunds
// cover the payment, the payment and the order become refunded.
func (s *Service) succeedRefund(ctx context.Context, r *domain.Refund) error {
	if !r.Status.CanTransition(domain.RefundSucceeded) {
		return nil
	}
	r.Status = domain.RefundSucceeded
	r.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateRefund(ctx, *r); err != nil {
		return err
	}

	p, err := s.repo.LockPayment(ctx, r.PaymentID)
	if err != nil {
		return err
	}
	refunded, err := s.repo.SumRefunds(ctx, p.ID, domain.RefundSucceeded)
	if err != nil {
		return err
	}
	full := refunded.GreaterThanOrEqual(p.Amount)
	if full && p.Status.CanTransition(domain.StatusRefunded) {
		if err := s.repo.SetPaymentStatus(ctx, p.ID, domain.StatusRefunded); err != nil {
			return err
		}
		o, err := s.repo.LockOrder(ctx, p.OrderID)
		if err != nil {
			return err
		}
		if err := s.bumpOrder(ctx, o, orderdomain.PaymentRefunded); err != nil {
			return err
		}
	}
	return s.record(ctx, p.OrderID, domain.EventRefundSucceeded, domain.RefundSucceededEvent{
		RefundID:  r.ID,
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Amount:    r.Amount.StringFixed(2),
		Full:      full,
	})
}

func (s *Service) failRefund(ctx context.Context, r *domain.Refund) error {
	if !r.Status.CanTransition(domain.RefundFailed) {
		return nil
	}
	r.Status = domain.RefundFailed
	r.UpdatedAt = s.now().UTC()
	return s.repo.UpdateRefund(ctx, *r)
}
