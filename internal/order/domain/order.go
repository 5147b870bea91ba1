package domain

import (
	"time"

	"github.com/shopspring/decimal"

	coupondomain "github.com/dmehra2102/commerce-backoffice/internal/coupon/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/money"
)

type Order struct {
	ID                int64             `json:"id"`
	Number            string            `json:"number"`
	UserID            *int64            `json:"user_id,omitempty"`
	CartID            *int64            `json:"cart_id,omitempty"`
	Status            Status            `json:"status"`
	PaymentStatus     PaymentStatus     `json:"payment_status"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status"`
	PaymentProvider   string            `json:"payment_provider,omitempty"`
	Currency          string            `json:"currency"`

	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	ShippingTotal decimal.Decimal `json:"shipping_total"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	GrandTotal    decimal.Decimal `json:"grand_total"`

	CouponID *int64          `json:"coupon_id,omitempty"`
	Coupon   *CouponSnapshot `json:"coupon,omitempty"`

	Items     []Item    `json:"items,omitempty"`
	Addresses []Address `json:"addresses,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CouponSnapshot freezes the coupon terms used at checkout so later coupon
// edits leave the order untouched.
type CouponSnapshot struct {
	Code         string              `json:"code"`
	Type         coupondomain.Type   `json:"type"`
	Value        decimal.Decimal     `json:"value"`
	MaxDiscount  decimal.NullDecimal `json:"max_discount"`
	FreeShipping bool                `json:"free_shipping"`
	Discount     decimal.Decimal     `json:"discount"`
}

type Item struct {
	ID           int64           `json:"id"`
	OrderID      int64           `json:"order_id"`
	ProductID    int64           `json:"product_id"`
	VariantID    *int64          `json:"variant_id,omitempty"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Qty          int             `json:"qty"`
	LineSubtotal decimal.Decimal `json:"line_subtotal"`
	LineDiscount decimal.Decimal `json:"line_discount"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

// ApplyCoupon stores the coupon snapshot, adds its discount on top of the
// existing item discounts and zeroes shipping for free-shipping coupons.
// It returns the coupon-only discount.
func (o *Order) ApplyCoupon(c coupondomain.Coupon) decimal.Decimal {
	base := money.NonNegative(o.Subtotal.Sub(o.DiscountTotal))
	discount := c.CalculateDiscount(base)
	o.CouponID = &c.ID
	o.Coupon = &CouponSnapshot{
		Code:         c.Code,
		Type:         c.Type,
		Value:        c.Value,
		MaxDiscount:  c.MaxDiscount,
		FreeShipping: c.Type == coupondomain.TypeFreeShipping,
		Discount:     discount,
	}
	o.DiscountTotal = o.DiscountTotal.Add(discount)
	if o.Coupon.FreeShipping {
		o.ShippingTotal = money.Zero
	}
	return discount
}

func (o *Order) RecalculateGrandTotal() {
	o.GrandTotal = money.NonNegative(o.Subtotal.Sub(o.DiscountTotal).Add(o.ShippingTotal).Add(o.TaxTotal))
}

func (o Order) TotalQty() int {
	n := 0
	for _, it := range o.Items {
		n += it.Qty
	}
	return n
}

func (o Order) Item(id int64) (Item, bool) {
	for _, it := range o.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}
