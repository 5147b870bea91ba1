package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/commerce-backoffice/internal/coupon/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

type Service struct {
	log  *slog.Logger
	repo Repository
	now  func() time.Time
}

func NewService(log *slog.Logger, repo Repository) *Service {
	return &Service{log: log, repo: repo, now: time.Now}
}

func (s *Service) Create(ctx context.Context, c domain.Coupon) (domain.Coupon, error) {
	if err := c.Normalize(); err != nil {
		return domain.Coupon{}, err
	}
	if err := s.repo.Create(ctx, &c); err != nil {
		return domain.Coupon{}, err
	}
	s.log.Info("coupon created", "coupon_id", c.ID, "code", c.Code)
	return c, nil
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Coupon, error) {
	return s.repo.Get(ctx, id)
}

// FindByCode resolves a customer-entered code. An unknown code is a
// validation error rather than a missing resource.
func (s *Service) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	normalized := domain.NormalizeCode(code)
	if normalized == "" {
		return domain.Coupon{}, apperr.Validation("coupon code required")
	}
	c, err := s.repo.FindByCode(ctx, normalized)
	if apperr.IsNotFound(err) {
		return domain.Coupon{}, apperr.Validation("unknown coupon %s", normalized)
	}
	return c, err
}

func (s *Service) Usage(ctx context.Context, c domain.Coupon, userID *int64) (domain.Usage, error) {
	var u domain.Usage
	var err error
	if c.MaxUses != nil {
		if u.Total, err = s.repo.CountOrderRedemptions(ctx, c.ID, nil); err != nil {
			return u, err
		}
	}
	if c.MaxUsesPerUser != nil && userID != nil {
		if u.ForUser, err = s.repo.CountOrderRedemptions(ctx, c.ID, userID); err != nil {
			return u, err
		}
	}
	return u, nil
}

func (s *Service) CheckApplicable(ctx context.Context, c domain.Coupon, b domain.Basket, userID *int64) error {
	u, err := s.Usage(ctx, c, userID)
	if err != nil {
		return err
	}
	return c.CanApply(b, u, userID, s.now())
}

// LockForCheckout takes the coupon row lock and re-validates it against the
// basket. Must run inside a transaction.
func (s *Service) LockForCheckout(ctx context.Context, id int64, b domain.Basket, userID *int64) (domain.Coupon, error) {
	c, err := s.repo.Lock(ctx, id)
	if apperr.IsNotFound(err) {
		return domain.Coupon{}, apperr.Conflict("coupon %d no longer exists", id)
	}
	if err != nil {
		return domain.Coupon{}, err
	}
	if err := s.CheckApplicable(ctx, c, b, userID); err != nil {
		return domain.Coupon{}, err
	}
	return c, nil
}

func (s *Service) RecordOrderRedemption(ctx context.Context, c domain.Coupon, userID *int64, orderID int64, amount decimal.Decimal) (domain.Redemption, error) {
	r := domain.NewOrderRedemption(c.ID, userID, orderID, amount, s.now().UTC())
	if err := r.Validate(); err != nil {
		return domain.Redemption{}, err
	}
	if err := s.repo.InsertRedemption(ctx, &r); err != nil {
		return domain.Redemption{}, err
	}
	return r, nil
}

type Preview struct {
	Coupon   domain.Coupon   `json:"coupon"`
	Eligible bool            `json:"eligible"`
	Reason   string          `json:"reason,omitempty"`
	Discount decimal.Decimal `json:"discount"`
}

func (s *Service) Preview(ctx context.Context, code string, b domain.Basket, userID *int64) (Preview, error) {
	c, err := s.FindByCode(ctx, code)
	if err != nil {
		return Preview{}, err
	}
	p := Preview{Coupon: c, Eligible: true}
	if err := s.CheckApplicable(ctx, c, b, userID); err != nil {
		if !apperr.IsConflict(err) {
			return Preview{}, err
		}
		p.Eligible = false
		p.Reason = err.Error()
		p.Discount = decimal.Zero
		return p, nil
	}
	p.Discount = c.CalculateDiscount(b.Subtotal)
	return p, nil
}
