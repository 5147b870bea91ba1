package application

import (
	"context"

	"github.com/shopspring/decimal"

	cartdomain "github.com/dmehra2102/commerce-backoffice/internal/cart/domain"
	coupondomain "github.com/dmehra2102/commerce-backoffice/internal/coupon/domain"
	"github.com/dmehra2102/commerce-backoffice/internal/order/domain"
)

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type OrderRepository interface {
	// Create inserts the order header. A number collision returns an
	// apperr.ErrDuplicate error without poisoning the transaction.
	Create(ctx context.Context, o *domain.Order) error
	InsertItems(ctx context.Context, items []domain.Item) error
	// UpsertAddress writes the single row for (order, type).
	UpsertAddress(ctx context.Context, a *domain.Address) error
	Update(ctx context.Context, o domain.Order) error
	Get(ctx context.Context, id int64) (domain.Order, error)
	Lock(ctx context.Context, id int64) (domain.Order, error)
	AppendStatusEvent(ctx context.Context, e *domain.StatusEvent) error
	Timeline(ctx context.Context, orderID int64) ([]domain.StatusEvent, error)
}

type Carts interface {
	Lock(ctx context.Context, id int64) (cartdomain.Cart, error)
	Save(ctx context.Context, c cartdomain.Cart) error
}

type Coupons interface {
	LockForCheckout(ctx context.Context, id int64, b coupondomain.Basket, userID *int64) (coupondomain.Coupon, error)
	RecordOrderRedemption(ctx context.Context, c coupondomain.Coupon, userID *int64, orderID int64, amount decimal.Decimal) (coupondomain.Redemption, error)
}

type Inventory interface {
	Reserve(ctx context.Context, orderID int64) error
	Release(ctx context.Context, orderID int64) error
}
