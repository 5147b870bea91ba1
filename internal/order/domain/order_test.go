package domain

import (
	"regexp"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coupondomain "github.com/dmehra2102/commerce-backoffice/internal/coupon/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyCouponSnapshot(t *testing.T) {
	o := Order{
		Subtotal:      dec("125"),
		DiscountTotal: dec("5"),
		ShippingTotal: dec("10"),
		TaxTotal:      dec("0"),
	}
	c := coupondomain.Coupon{ID: 3, Code: "TEN", Type: coupondomain.TypePercent, Value: dec("10")}

	discount := o.ApplyCoupon(c)
	o.RecalculateGrandTotal()

	assert.True(t, discount.Equal(dec("12")))
	assert.True(t, o.DiscountTotal.Equal(dec("17")))
	assert.True(t, o.GrandTotal.Equal(dec("118")))
	require.NotNil(t, o.Coupon)
	assert.Equal(t, "TEN", o.Coupon.Code)
	assert.False(t, o.Coupon.FreeShipping)
}

func TestApplyFreeShippingZeroesShipping(t *testing.T) {
	o := Order{Subtotal: dec("40"), DiscountTotal: dec("0"), ShippingTotal: dec("7.99"), TaxTotal: dec("1")}
	discount := o.ApplyCoupon(coupondomain.Coupon{ID: 1, Code: "SHIP", Type: coupondomain.TypeFreeShipping})
	o.RecalculateGrandTotal()

	assert.True(t, discount.IsZero())
	assert.True(t, o.ShippingTotal.IsZero())
	assert.True(t, o.Coupon.FreeShipping)
	assert.True(t, o.GrandTotal.Equal(dec("41")))
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPlaced.CanTransition(StatusAccepted))
	assert.True(t, StatusPlaced.CanTransition(StatusCancelled))
	assert.True(t, StatusOnTheWay.CanTransition(StatusDelivered))
	assert.False(t, StatusPlaced.CanTransition(StatusDelivered))
	assert.False(t, StatusCancelled.CanTransition(StatusPlaced))
	assert.False(t, StatusOnTheWay.CanTransition(StatusCancelled))
}

func TestCanBeCancelled(t *testing.T) {
	assert.True(t, Order{Status: StatusPlaced, PaymentStatus: PaymentUnpaid}.CanBeCancelled())
	assert.True(t, Order{Status: StatusAccepted, PaymentStatus: PaymentAuthorized}.CanBeCancelled())
	assert.False(t, Order{Status: StatusPlaced, PaymentStatus: PaymentPaid}.CanBeCancelled())
	assert.False(t, Order{Status: StatusDelivered, PaymentStatus: PaymentUnpaid}.CanBeCancelled())
}

func TestNextPaymentStatusNeverRegresses(t *testing.T) {
	next, changed := NextPaymentStatus(PaymentRefunded, PaymentPaid)
	assert.Equal(t, PaymentRefunded, next)
	assert.False(t, changed)

	next, changed = NextPaymentStatus(PaymentAuthorized, PaymentPaid)
	assert.Equal(t, PaymentPaid, next)
	assert.True(t, changed)

	_, changed = NextPaymentStatus(PaymentPaid, PaymentFailed)
	assert.False(t, changed)

	_, changed = NextPaymentStatus(PaymentPaid, PaymentPaid)
	assert.False(t, changed)

	next, changed = NextPaymentStatus(PaymentFailed, PaymentPaid)
	assert.Equal(t, PaymentPaid, next)
	assert.True(t, changed)
}

func TestDeriveFulfillment(t *testing.T) {
	assert.Equal(t, FulfillmentUnfulfilled, DeriveFulfillment(0, 0))
	assert.Equal(t, FulfillmentUnfulfilled, DeriveFulfillment(3, 0))
	assert.Equal(t, FulfillmentPartial, DeriveFulfillment(3, 2))
	assert.Equal(t, FulfillmentFulfilled, DeriveFulfillment(3, 3))
}

func TestAddressPair(t *testing.T) {
	ship := Address{FirstName: "Ada", Address1: "1 Loop", City: "London", Country: "GB", Zip: "N1"}

	pair, err := AddressPair(9, ship, nil, false)
	require.NoError(t, err)
	require.Len(t, pair, 2)
	assert.Equal(t, AddressShipping, pair[0].Type)
	assert.Equal(t, AddressBilling, pair[1].Type)
	assert.Equal(t, "1 Loop", pair[1].Address1)
	assert.Equal(t, int64(9), pair[1].OrderID)

	bill := Address{FirstName: "Ada", Address1: "2 Ring", City: "Paris", Country: "FR"}
	pair, err = AddressPair(9, ship, &bill, false)
	require.NoError(t, err)
	assert.Equal(t, "2 Ring", pair[1].Address1)

	pair, err = AddressPair(9, ship, &bill, true)
	require.NoError(t, err)
	assert.Equal(t, "1 Loop", pair[1].Address1)

	_, err = AddressPair(9, Address{}, nil, true)
	assert.True(t, apperr.IsValidation(err))
}

func TestNewNumber(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^ORD-[0-9A-F]{8}$`), NewNumber())
	assert.NotEqual(t, NewNumber(), NewNumber())
}
