package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

// Redemption records one coupon application against exactly one cart or order.
type Redemption struct {
	ID        int64           `json:"id"`
	CouponID  int64           `json:"coupon_id"`
	UserID    *int64          `json:"user_id,omitempty"`
	CartID    *int64          `json:"cart_id,omitempty"`
	OrderID   *int64          `json:"order_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	UsedAt    *time.Time      `json:"used_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (r Redemption) Validate() error {
	if (r.CartID == nil) == (r.OrderID == nil) {
		return apperr.Validation("redemption must reference exactly one of cart or order")
	}
	if r.Amount.IsNegative() {
		return apperr.Validation("redemption amount must not be negative")
	}
	return nil
}

func NewOrderRedemption(couponID int64, userID *int64, orderID int64, amount decimal.Decimal, now time.Time) Redemption {
	return Redemption{
		CouponID: couponID,
		UserID:   userID,
		OrderID:  &orderID,
		Amount:   amount,
		UsedAt:   &now,
	}
}

// ConvertToOrder moves a cart-scoped redemption onto the order.
func (r *Redemption) ConvertToOrder(orderID int64, now time.Time) {
	r.CartID = nil
	r.OrderID = &orderID
	r.UsedAt = &now
}
