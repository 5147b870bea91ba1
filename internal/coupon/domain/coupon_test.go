package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func intp(v int) *int { return &v }

func TestPercentDiscountCappedAndMinimum(t *testing.T) {
	c := Coupon{
		Code:         "TEN",
		Type:         TypePercent,
		Value:        dec("10"),
		MaxDiscount:  decimal.NewNullDecimal(dec("50")),
		MinCartTotal: decimal.NewNullDecimal(dec("100")),
		IsActive:     true,
	}
	now := time.Now()

	assert.True(t, c.IsValidFor(Basket{Subtotal: dec("125.00"), ItemCount: 2}, now))
	assert.False(t, c.IsValidFor(Basket{Subtotal: dec("99.99"), ItemCount: 2}, now))
	assert.True(t, c.CalculateDiscount(dec("125.00")).Equal(dec("12.50")))
	assert.True(t, c.CalculateDiscount(dec("1000")).Equal(dec("50")))
	assert.True(t, c.CalculateDiscount(dec("0")).IsZero())
	assert.True(t, c.CalculateDiscount(dec("-3")).IsZero())
}

func TestAmountAndFreeShippingDiscount(t *testing.T) {
	amount := Coupon{Type: TypeAmount, Value: dec("30")}
	assert.True(t, amount.CalculateDiscount(dec("20")).Equal(dec("20")))
	assert.True(t, amount.CalculateDiscount(dec("45.5")).Equal(dec("30")))

	free := Coupon{Type: TypeFreeShipping, Value: dec("10")}
	assert.True(t, free.CalculateDiscount(dec("100")).IsZero())
}

func TestActiveWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(-time.Hour)
	end := now.Add(time.Hour)

	c := Coupon{IsActive: true, StartAt: &start, EndAt: &end}
	assert.True(t, c.IsCurrentlyActive(now))
	assert.False(t, c.IsCurrentlyActive(end.Add(time.Second)))
	assert.False(t, c.IsCurrentlyActive(start.Add(-time.Second)))

	open := Coupon{IsActive: true}
	assert.True(t, open.IsCurrentlyActive(now))

	off := Coupon{IsActive: false}
	assert.False(t, off.IsCurrentlyActive(now))
}

func TestMinItemsCount(t *testing.T) {
	c := Coupon{IsActive: true, MinItemsCount: intp(3)}
	assert.False(t, c.IsValidFor(Basket{Subtotal: dec("10"), ItemCount: 2}, time.Now()))
	assert.True(t, c.IsValidFor(Basket{Subtotal: dec("10"), ItemCount: 3}, time.Now()))
}

func TestCanApplyUsageCaps(t *testing.T) {
	c := Coupon{Code: "ONCE", Type: TypeAmount, Value: dec("5"), IsActive: true, MaxUses: intp(10), MaxUsesPerUser: intp(1)}
	b := Basket{Subtotal: dec("20"), ItemCount: 1}
	user := int64(7)
	now := time.Now()

	require.NoError(t, c.CanApply(b, Usage{Total: 3}, &user, now))

	err := c.CanApply(b, Usage{Total: 10}, &user, now)
	assert.True(t, apperr.IsConflict(err))

	err = c.CanApply(b, Usage{Total: 3, ForUser: 1}, &user, now)
	assert.True(t, apperr.IsConflict(err))

	// per-user cap is not evaluated for guests
	require.NoError(t, c.CanApply(b, Usage{Total: 3, ForUser: 1}, nil, now))

	assert.Nil(t, Coupon{}.RemainingUses(Usage{Total: 100}))
	assert.Equal(t, 0, *c.RemainingUses(Usage{Total: 12}))
}

func TestNormalize(t *testing.T) {
	c := Coupon{Code: "  summer10 ", Type: TypePercent, Value: dec("150")}
	require.NoError(t, c.Normalize())
	assert.Equal(t, "SUMMER10", c.Code)
	assert.True(t, c.Value.Equal(dec("100")))

	a := Coupon{Code: "x", Type: TypeAmount, Value: dec("-4")}
	require.NoError(t, a.Normalize())
	assert.True(t, a.Value.IsZero())

	f := Coupon{Code: "ship", Type: TypeFreeShipping, Value: dec("9")}
	require.NoError(t, f.Normalize())
	assert.True(t, f.Value.IsZero())

	assert.True(t, apperr.IsValidation((&Coupon{Code: " ", Type: TypeAmount}).Normalize()))
	assert.True(t, apperr.IsValidation((&Coupon{Code: "A", Type: "bogo"}).Normalize()))
}

func TestRedemptionXOR(t *testing.T) {
	cart, order := int64(1), int64(2)

	assert.True(t, apperr.IsValidation(Redemption{CouponID: 1}.Validate()))
	assert.True(t, apperr.IsValidation(Redemption{CouponID: 1, CartID: &cart, OrderID: &order}.Validate()))
	assert.NoError(t, Redemption{CouponID: 1, CartID: &cart}.Validate())

	r := NewOrderRedemption(1, nil, order, dec("12.50"), time.Now())
	require.NoError(t, r.Validate())
	require.NotNil(t, r.UsedAt)

	trial := Redemption{CouponID: 1, CartID: &cart}
	trial.ConvertToOrder(order, time.Now())
	assert.Nil(t, trial.CartID)
	assert.Equal(t, order, *trial.OrderID)
	require.NoError(t, trial.Validate())
}
