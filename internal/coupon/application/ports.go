package application

import (
	"context"

	"github.com/dmehra2102/commerce-backoffice/internal/coupon/domain"
)

type Repository interface {
	Create(ctx context.Context, c *domain.Coupon) error
	Get(ctx context.Context, id int64) (domain.Coupon, error)
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	// Lock reads the coupon with a row lock held until the surrounding
	// transaction ends.
	Lock(ctx context.Context, id int64) (domain.Coupon, error)
	// CountOrderRedemptions counts redemptions with an order id, optionally
	// narrowed to one user.
	CountOrderRedemptions(ctx context.Context, couponID int64, userID *int64) (int, error)
	InsertRedemption(ctx context.Context, r *domain.Redemption) error
}
