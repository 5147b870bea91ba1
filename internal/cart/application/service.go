package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dmehra2102/commerce-backoffice/internal/cart/domain"
	coupondomain "github.com/dmehra2102/commerce-backoffice/internal/coupon/domain"
	"github.com/dmehra2102/commerce-backoffice/internal/settings"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
	"github.com/dmehra2102/commerce-backoffice/pkg/money"
)

const (
	defaultTTLDays  = 7
	defaultCurrency = "USD"
	sweepBatch      = 500
)

type Service struct {
	log      *slog.Logger
	tx       Transactor
	repo     Repository
	catalog  Catalog
	coupons  Coupons
	settings Settings
	now      func() time.Time
}

func NewService(log *slog.Logger, tx Transactor, repo Repository, catalog Catalog, coupons Coupons, settings Settings) *Service {
	return &Service{
		log:      log,
		tx:       tx,
		repo:     repo,
		catalog:  catalog,
		coupons:  coupons,
		settings: settings,
		now:      time.Now,
	}
}

// GetOrCreate returns the active cart for the user, or for the guest session.
// A guest without a session gets a freshly minted one on the new cart.
func (s *Service) GetOrCreate(ctx context.Context, userID *int64, sessionID string) (domain.Cart, error) {
	now := s.now().UTC()

	var (
		c   domain.Cart
		err error
	)
	switch {
	case userID != nil:
		c, err = s.repo.FindActiveByUser(ctx, *userID)
	case sessionID != "":
		c, err = s.repo.FindActiveBySession(ctx, sessionID)
	default:
		sessionID = ulid.Make().String()
		err = apperr.NotFound("cart")
	}
	if err == nil && !c.IsExpired(now) {
		return c, nil
	}
	if err == nil {
		if err := s.abandon(ctx, c.ID); err != nil {
			return domain.Cart{}, err
		}
	} else if !apperr.IsNotFound(err) {
		return domain.Cart{}, err
	}

	c = domain.Cart{
		Currency:      s.settings.String(ctx, settings.KeyCurrency, defaultCurrency),
		Status:        domain.StatusActive,
		Subtotal:      money.Zero,
		ItemDiscount:  money.Zero,
		ShippingTotal: money.Zero,
		TaxTotal:      money.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	c.Recalculate(nil)
	if userID != nil {
		c.UserID = userID
	} else {
		c.SessionID = &sessionID
		expires := now.AddDate(0, 0, s.settings.Int(ctx, settings.KeyCartTTLDays, defaultTTLDays))
		c.ExpiresAt = &expires
	}
	if err := s.repo.Create(ctx, &c); err != nil {
		return domain.Cart{}, err
	}
	s.log.Info("cart created", "cart_id", c.ID, "guest", userID == nil)
	return c, nil
}

func (s *Service) Get(ctx context.Context, cartID int64) (domain.Cart, error) {
	return s.repo.Get(ctx, cartID)
}

func (s *Service) AddItem(ctx context.Context, cartID, productID int64, variantID *int64, qty int) (domain.Cart, error) {
	if qty < 1 {
		return domain.Cart{}, apperr.Validation("quantity must be at least 1")
	}
	snap, err := s.snapshot(ctx, productID, variantID)
	if err != nil {
		return domain.Cart{}, err
	}

	var out domain.Cart
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.activeCart(ctx, cartID); err != nil {
			return err
		}
		now := s.now().UTC()
		existing, err := s.repo.LockItem(ctx, cartID, productID, variantID)
		switch {
		case err == nil:
			existing.Qty += qty
			existing.ApplySnapshot(snap)
			existing.UpdatedAt = now
			existing.Recalculate()
			if err := s.repo.UpdateItem(ctx, existing); err != nil {
				return err
			}
		case apperr.IsNotFound(err):
			it := domain.Item{
				CartID:       cartID,
				ProductID:    productID,
				VariantID:    variantID,
				Qty:          qty,
				LineDiscount: money.Zero,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			it.ApplySnapshot(snap)
			it.Recalculate()
			if err := s.repo.InsertItem(ctx, &it); err != nil {
				return err
			}
		default:
			return err
		}
		out, err = s.recalculate(ctx, cartID)
		return err
	})
	return out, err
}

func (s *Service) UpdateQty(ctx context.Context, cartID, itemID int64, qty int) (domain.Cart, error) {
	if qty < 1 {
		return domain.Cart{}, apperr.Validation("quantity must be at least 1")
	}
	var out domain.Cart
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.activeCart(ctx, cartID)
		if err != nil {
			return err
		}
		it, ok := findItem(c, itemID)
		if !ok {
			return apperr.NotFound("cart item")
		}
		it.Qty = qty
		it.UpdatedAt = s.now().UTC()
		it.Recalculate()
		if err := s.repo.UpdateItem(ctx, it); err != nil {
			return err
		}
		out, err = s.recalculate(ctx, cartID)
		return err
	})
	return out, err
}

func (s *Service) RemoveItem(ctx context.Context, cartID, itemID int64) (domain.Cart, error) {
	var out domain.Cart
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.activeCart(ctx, cartID)
		if err != nil {
			return err
		}
		if _, ok := findItem(c, itemID); !ok {
			return apperr.NotFound("cart item")
		}
		if err := s.repo.DeleteItem(ctx, cartID, itemID); err != nil {
			return err
		}
		out, err = s.recalculate(ctx, cartID)
		return err
	})
	return out, err
}

func (s *Service) Clear(ctx context.Context, cartID int64) (domain.Cart, error) {
	var out domain.Cart
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.activeCart(ctx, cartID); err != nil {
			return err
		}
		if err := s.repo.DeleteItems(ctx, cartID); err != nil {
			return err
		}
		var err error
		out, err = s.recalculate(ctx, cartID)
		return err
	})
	return out, err
}

// ApplyCoupon validates eligibility against freshly computed totals before
// attaching the coupon.
func (s *Service) ApplyCoupon(ctx context.Context, cartID int64, code string, userID *int64) (domain.Cart, error) {
	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		return domain.Cart{}, err
	}
	var out domain.Cart
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.activeCart(ctx, cartID)
		if err != nil {
			return err
		}
		c.Recalculate(nil)
		if err := s.coupons.CheckApplicable(ctx, coupon, c.Basket(), userID); err != nil {
			return err
		}
		c.CouponID = &coupon.ID
		if err := s.repo.Save(ctx, c); err != nil {
			return err
		}
		out, err = s.recalculate(ctx, cartID)
		return err
	})
	return out, err
}

func (s *Service) RemoveCoupon(ctx context.Context, cartID int64) (domain.Cart, error) {
	var out domain.Cart
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.activeCart(ctx, cartID)
		if err != nil {
			return err
		}
		c.CouponID = nil
		if err := s.repo.Save(ctx, c); err != nil {
			return err
		}
		out, err = s.recalculate(ctx, cartID)
		return err
	})
	return out, err
}

// AbandonExpired marks active carts past their expiry as abandoned.
func (s *Service) AbandonExpired(ctx context.Context) (int, error) {
	ids, err := s.repo.ExpiredActive(ctx, s.now().UTC(), sweepBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if err := s.abandon(ctx, id); err != nil {
			s.log.Error("abandon cart failed", "cart_id", id, "err", err)
			continue
		}
		n++
	}
	return n, nil
}

func (s *Service) abandon(ctx context.Context, cartID int64) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.Lock(ctx, cartID)
		if err != nil {
			return err
		}
		if c.Status != domain.StatusActive {
			return nil
		}
		c.Status = domain.StatusAbandoned
		c.UpdatedAt = s.now().UTC()
		return s.repo.Save(ctx, c)
	})
}

// recalculate reloads the cart under lock and rebuilds its totals.
func (s *Service) recalculate(ctx context.Context, cartID int64) (domain.Cart, error) {
	c, err := s.repo.Lock(ctx, cartID)
	if err != nil {
		return domain.Cart{}, err
	}
	var coupon *coupondomain.Coupon
	if c.CouponID != nil {
		cp, err := s.coupons.Get(ctx, *c.CouponID)
		switch {
		case err == nil:
			coupon = &cp
		case apperr.IsNotFound(err):
			c.CouponID = nil
		default:
			return domain.Cart{}, err
		}
	}
	c.Recalculate(coupon)
	c.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, c); err != nil {
		return domain.Cart{}, err
	}
	return c, nil
}

func (s *Service) activeCart(ctx context.Context, cartID int64) (domain.Cart, error) {
	c, err := s.repo.Lock(ctx, cartID)
	if err != nil {
		return domain.Cart{}, err
	}
	if c.Status != domain.StatusActive {
		return domain.Cart{}, apperr.Conflict("cart %d is %s", cartID, c.Status)
	}
	return c, nil
}

func (s *Service) snapshot(ctx context.Context, productID int64, variantID *int64) (domain.Snapshot, error) {
	p, err := s.catalog.Product(ctx, productID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if !p.IsActive {
		return domain.Snapshot{}, apperr.NotFound("product")
	}
	if variantID == nil {
		return domain.SnapshotOf(p, nil)
	}
	v, err := s.catalog.Variant(ctx, *variantID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.SnapshotOf(p, &v)
}

func findItem(c domain.Cart, itemID int64) (domain.Item, bool) {
	for _, it := range c.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return domain.Item{}, false
}
