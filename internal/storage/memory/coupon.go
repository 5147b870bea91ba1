package memory

import (
	"context"

	coupondomain "github.com/dmehra2102/commerce-backoffice/internal/coupon/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

type CouponRepository struct{ s *Store }

func NewCouponRepository(s *Store) *CouponRepository { return &CouponRepository{s: s} }

func (r *CouponRepository) Create(ctx context.Context, c *coupondomain.Coupon) error {
	return r.s.write(ctx, "coupon.create", func(t *tables) error {
		for _, existing := range t.coupons {
			if existing.Code == c.Code {
				return apperr.Duplicate("coupon code")
			}
		}
		c.ID = t.next("coupons")
		t.coupons[c.ID] = *c
		return nil
	})
}

func (r *CouponRepository) Get(ctx context.Context, id int64) (coupondomain.Coupon, error) {
	var out coupondomain.Coupon
	err := r.s.read(ctx, func(t *tables) error {
		c, ok := t.coupons[id]
		if !ok {
			return apperr.NotFound("coupon")
		}
		out = c
		return nil
	})
	return out, err
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (coupondomain.Coupon, error) {
	var out coupondomain.Coupon
	err := r.s.read(ctx, func(t *tables) error {
		for _, c := range t.coupons {
			if c.Code == code {
				out = c
				return nil
			}
		}
		return apperr.NotFound("coupon")
	})
	return out, err
}

func (r *CouponRepository) Lock(ctx context.Context, id int64) (coupondomain.Coupon, error) {
	return r.Get(ctx, id)
}

func (r *CouponRepository) CountOrderRedemptions(ctx context.Context, couponID int64, userID *int64) (int, error) {
	n := 0
	err := r.s.read(ctx, func(t *tables) error {
		for _, red := range t.redemptions {
			if red.CouponID != couponID || red.OrderID == nil {
				continue
			}
			if userID != nil && (red.UserID == nil || *red.UserID != *userID) {
				continue
			}
			n++
		}
		return nil
	})
	return n, err
}

func (r *CouponRepository) InsertRedemption(ctx context.Context, red *coupondomain.Redemption) error {
	if err := red.Validate(); err != nil {
		return err
	}
	return r.s.write(ctx, "coupon.insert_redemption", func(t *tables) error {
		for _, existing := range t.redemptions {
			if existing.CouponID != red.CouponID {
				continue
			}
			if red.OrderID != nil && existing.OrderID != nil && *existing.OrderID == *red.OrderID {
				return apperr.Duplicate("coupon redemption")
			}
			if red.CartID != nil && existing.CartID != nil && *existing.CartID == *red.CartID {
				return apperr.Duplicate("coupon redemption")
			}
		}
		red.ID = t.next("coupon_redemptions")
		t.redemptions[red.ID] = *red
		return nil
	})
}
