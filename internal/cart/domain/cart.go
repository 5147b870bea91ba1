package domain

import (
	"time"

	"github.com/shopspring/decimal"

	coupondomain "github.com/dmehra2102/commerce-backoffice/internal/coupon/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/money"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusConverted Status = "converted"
	StatusAbandoned Status = "abandoned"
)

type Cart struct {
	ID             int64           `json:"id"`
	UserID         *int64          `json:"user_id,omitempty"`
	SessionID      *string         `json:"session_id,omitempty"`
	CouponID       *int64          `json:"coupon_id,omitempty"`
	Currency       string          `json:"currency"`
	Status         Status          `json:"status"`
	ItemCount      int             `json:"item_count"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	ItemDiscount   decimal.Decimal `json:"item_discount"`
	CouponDiscount decimal.Decimal `json:"coupon_discount"`
	DiscountTotal  decimal.Decimal `json:"discount_total"`
	ShippingTotal  decimal.Decimal `json:"shipping_total"`
	TaxTotal       decimal.Decimal `json:"tax_total"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Items          []Item          `json:"items"`
}

type Item struct {
	ID           int64           `json:"id"`
	CartID       int64           `json:"cart_id"`
	ProductID    int64           `json:"product_id"`
	VariantID    *int64          `json:"variant_id,omitempty"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Qty          int             `json:"qty"`
	LineSubtotal decimal.Decimal `json:"line_subtotal"`
	LineDiscount decimal.Decimal `json:"line_discount"`
	LineTotal    decimal.Decimal `json:"line_total"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// VariantKey maps a missing variant to 0 so (cart, product, variant) stays
// unique when the variant is absent.
func VariantKey(variantID *int64) int64 {
	if variantID == nil {
		return 0
	}
	return *variantID
}

func (i Item) Matches(productID int64, variantID *int64) bool {
	return i.ProductID == productID && VariantKey(i.VariantID) == VariantKey(variantID)
}

// Recalculate derives the line amounts from price and qty. The line discount
// is kept within [0, line subtotal].
func (i *Item) Recalculate() {
	i.LineSubtotal = money.Round(money.Mul(i.Price, i.Qty))
	i.LineDiscount = money.Clamp(i.LineDiscount, money.Zero, i.LineSubtotal)
	i.LineTotal = i.LineSubtotal.Sub(i.LineDiscount)
}

func (i *Item) ApplySnapshot(s Snapshot) {
	i.SKU = s.SKU
	i.Name = s.Name
	i.Price = s.Price
}

func (c Cart) IsOwnedBy(userID *int64, sessionID string) bool {
	if userID != nil {
		return c.UserID != nil && *c.UserID == *userID
	}
	return c.UserID == nil && c.SessionID != nil && *c.SessionID == sessionID
}

func (c Cart) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

func (c Cart) Basket() coupondomain.Basket {
	return coupondomain.Basket{Subtotal: c.Subtotal, ItemCount: c.ItemCount}
}

// Recalculate rebuilds every derived total from the items. The coupon, when
// given, is evaluated against subtotal minus item discounts.
func (c *Cart) Recalculate(coupon *coupondomain.Coupon) {
	subtotal, itemDiscount := money.Zero, money.Zero
	count := 0
	for idx := range c.Items {
		it := &c.Items[idx]
		it.Recalculate()
		subtotal = subtotal.Add(it.LineSubtotal)
		itemDiscount = itemDiscount.Add(it.LineDiscount)
		count += it.Qty
	}

	couponDiscount := money.Zero
	if coupon != nil {
		couponDiscount = coupon.CalculateDiscount(money.NonNegative(subtotal.Sub(itemDiscount)))
	}

	c.Subtotal = subtotal
	c.ItemCount = count
	c.ItemDiscount = itemDiscount
	c.CouponDiscount = couponDiscount
	c.DiscountTotal = itemDiscount.Add(couponDiscount)
	c.GrandTotal = GrandTotal(c.Subtotal, c.DiscountTotal, c.ShippingTotal, c.TaxTotal)
}

func GrandTotal(subtotal, discount, shipping, tax decimal.Decimal) decimal.Decimal {
	return money.NonNegative(subtotal.Sub(discount).Add(shipping).Add(tax))
}
