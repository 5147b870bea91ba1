package application

import (
	"context"
	"time"

	"github.com/dmehra2102/commerce-backoffice/internal/cart/domain"
	coupondomain "github.com/dmehra2102/commerce-backoffice/internal/coupon/domain"
)

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Repository interface {
	FindActiveByUser(ctx context.Context, userID int64) (domain.Cart, error)
	FindActiveBySession(ctx context.Context, sessionID string) (domain.Cart, error)
	Get(ctx context.Context, id int64) (domain.Cart, error)
	Lock(ctx context.Context, id int64) (domain.Cart, error)
	Create(ctx context.Context, c *domain.Cart) error
	// Save persists the cart header: totals, coupon, status and expiry.
	Save(ctx context.Context, c domain.Cart) error
	LockItem(ctx context.Context, cartID, productID int64, variantID *int64) (domain.Item, error)
	// InsertItem adds a line; a concurrent insert of the same
	// (cart, product, variant) is merged by adding quantities.
	InsertItem(ctx context.Context, it *domain.Item) error
	UpdateItem(ctx context.Context, it domain.Item) error
	DeleteItem(ctx context.Context, cartID, itemID int64) error
	DeleteItems(ctx context.Context, cartID int64) error
	ExpiredActive(ctx context.Context, now time.Time, limit int) ([]int64, error)
}

type Catalog interface {
	Product(ctx context.Context, id int64) (domain.Product, error)
	Variant(ctx context.Context, id int64) (domain.Variant, error)
}

type Coupons interface {
	Get(ctx context.Context, id int64) (coupondomain.Coupon, error)
	FindByCode(ctx context.Context, code string) (coupondomain.Coupon, error)
	CheckApplicable(ctx context.Context, c coupondomain.Coupon, b coupondomain.Basket, userID *int64) error
}

type Settings interface {
	Int(ctx context.Context, key string, def int) int
	String(ctx context.Context, key, def string) string
}
