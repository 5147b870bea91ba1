package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmehra2102/commerce-backoffice/internal/inventory/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

type Service struct {
	log  *slog.Logger
	tx   Transactor
	repo Repository
	now  func() time.Time
}

func NewService(log *slog.Logger, tx Transactor, repo Repository) *Service {
	return &Service{log: log, tx: tx, repo: repo, now: time.Now}
}

// Reserve records a negative order_reserved movement for whatever part of each
// ordered quantity is not reserved yet. Replaying it reserves nothing extra.
func (s *Service) Reserve(ctx context.Context, orderID int64) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		lines, err := s.lines(ctx, orderID)
		if err != nil {
			return err
		}
		ref := domain.OrderRef(orderID)
		for _, l := range lines {
			reserved, err := s.repo.SumChange(ctx, ref, l.ProductID, l.VariantID, domain.ReasonOrderReserved)
			if err != nil {
				return err
			}
			need := domain.ReserveShortfall(l.Qty, reserved)
			if need <= 0 {
				continue
			}
			if err := s.record(ctx, domain.Movement{
				ProductID: l.ProductID,
				VariantID: l.VariantID,
				Change:    -need,
				Reason:    domain.ReasonOrderReserved,
				Ref:       &ref,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Release returns reserved stock for the order, emitting a positive
// order_cancelled movement only for what has not been returned already.
func (s *Service) Release(ctx context.Context, orderID int64) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		lines, err := s.lines(ctx, orderID)
		if err != nil {
			return err
		}
		ref := domain.OrderRef(orderID)
		for _, l := range lines {
			reserved, err := s.repo.SumChange(ctx, ref, l.ProductID, l.VariantID, domain.ReasonOrderReserved)
			if err != nil {
				return err
			}
			returned, err := s.repo.SumChange(ctx, ref, l.ProductID, l.VariantID, domain.ReasonOrderCancelled)
			if err != nil {
				return err
			}
			back := domain.ReleaseShortfall(reserved, returned)
			if back <= 0 {
				continue
			}
			if err := s.record(ctx, domain.Movement{
				ProductID: l.ProductID,
				VariantID: l.VariantID,
				Change:    back,
				Reason:    domain.ReasonOrderCancelled,
				Ref:       &ref,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Adjust changes the on-hand counter of a variant under a row lock and
// records the before/after values in the ledger.
func (s *Service) Adjust(ctx context.Context, a domain.Adjustment) (domain.Movement, error) {
	var m domain.Movement
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		v, err := s.repo.LockVariant(ctx, a.VariantID)
		if err != nil {
			return err
		}
		after, err := a.Apply(v.Stock)
		if err != nil {
			return err
		}
		if err := s.repo.SetVariantStock(ctx, v.VariantID, after); err != nil {
			return err
		}
		before := v.Stock
		variantID := v.VariantID
		m = domain.Movement{
			ProductID:   v.ProductID,
			VariantID:   &variantID,
			Change:      a.Delta,
			Reason:      domain.ReasonManualAdjustment,
			UserID:      a.UserID,
			StockBefore: &before,
			StockAfter:  &after,
			Note:        a.Note,
		}
		if a.UserID != nil {
			ref := domain.AdminRef(*a.UserID)
			m.Ref = &ref
		}
		return s.record(ctx, m)
	})
	if err != nil {
		return domain.Movement{}, err
	}
	s.log.Info("stock adjusted", "variant_id", a.VariantID, "delta", a.Delta, "stock_after", *m.StockAfter)
	return m, nil
}

func (s *Service) Movements(ctx context.Context, f domain.MovementFilter) ([]domain.Movement, error) {
	if f.Reason != "" && !f.Reason.Valid() {
		return nil, apperr.Validation("unknown movement reason %q", f.Reason)
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return s.repo.ListMovements(ctx, f)
}

func (s *Service) Availability(ctx context.Context, productID int64, variantID *int64) (domain.Availability, error) {
	onHand, err := s.repo.OnHand(ctx, productID, variantID)
	if err != nil {
		return domain.Availability{}, err
	}
	balance, err := s.repo.ReservationBalance(ctx, productID, variantID)
	if err != nil {
		return domain.Availability{}, err
	}
	return domain.NewAvailability(productID, variantID, onHand, balance), nil
}

func (s *Service) record(ctx context.Context, m domain.Movement) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	return s.repo.InsertMovement(ctx, &m)
}

// lines merges order items sharing a product/variant so each key is
// reserved once.
func (s *Service) lines(ctx context.Context, orderID int64) ([]domain.Line, error) {
	raw, err := s.repo.OrderLines(ctx, orderID)
	if err != nil {
		return nil, err
	}
	type key struct {
		product int64
		variant int64
	}
	idx := make(map[key]int, len(raw))
	out := make([]domain.Line, 0, len(raw))
	for _, l := range raw {
		k := key{product: l.ProductID}
		if l.VariantID != nil {
			k.variant = *l.VariantID
		}
		if i, ok := idx[k]; ok {
			out[i].Qty += l.Qty
			continue
		}
		idx[k] = len(out)
		out = append(out, l)
	}
	return out, nil
}
