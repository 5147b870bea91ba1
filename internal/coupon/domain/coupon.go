package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
	"github.com/dmehra2102/commerce-backoffice/pkg/money"
)

type Type string

const (
	TypePercent      Type = "percent"
	TypeAmount       Type = "amount"
	TypeFreeShipping Type = "free_shipping"
)

func (t Type) Valid() bool {
	switch t {
	case TypePercent, TypeAmount, TypeFreeShipping:
		return true
	}
	return false
}

type Coupon struct {
	ID             int64               `json:"id"`
	Code           string              `json:"code"`
	Type           Type                `json:"type"`
	Value          decimal.Decimal     `json:"value"`
	MaxDiscount    decimal.NullDecimal `json:"max_discount"`
	MinCartTotal   decimal.NullDecimal `json:"min_cart_total"`
	MinItemsCount  *int                `json:"min_items_count,omitempty"`
	MaxUses        *int                `json:"max_uses,omitempty"`
	MaxUsesPerUser *int                `json:"max_uses_per_user,omitempty"`
	StartAt        *time.Time          `json:"start_at,omitempty"`
	EndAt          *time.Time          `json:"end_at,omitempty"`
	IsActive       bool                `json:"is_active"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Basket is the monetary view of a cart or order a coupon is evaluated against.
type Basket struct {
	Subtotal  decimal.Decimal
	ItemCount int
}

// Usage counts redemptions attached to orders. Cart-only rows never count.
type Usage struct {
	Total   int
	ForUser int
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Normalize applies the save-time rules: code casing and value bounds per type.
func (c *Coupon) Normalize() error {
	c.Code = NormalizeCode(c.Code)
	if c.Code == "" {
		return apperr.Validation("coupon code required")
	}
	if !c.Type.Valid() {
		return apperr.Validation("unknown coupon type %q", c.Type)
	}
	switch c.Type {
	case TypePercent:
		c.Value = money.Clamp(c.Value, money.Zero, money.Hundred)
	case TypeAmount:
		c.Value = money.NonNegative(c.Value)
	case TypeFreeShipping:
		c.Value = money.Zero
	}
	if c.StartAt != nil && c.EndAt != nil && c.EndAt.Before(*c.StartAt) {
		return apperr.Validation("coupon end_at before start_at")
	}
	return nil
}

func (c Coupon) IsCurrentlyActive(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.StartAt != nil && now.Before(*c.StartAt) {
		return false
	}
	if c.EndAt != nil && now.After(*c.EndAt) {
		return false
	}
	return true
}

func (c Coupon) IsValidFor(b Basket, now time.Time) bool {
	if !c.IsCurrentlyActive(now) {
		return false
	}
	if c.MinCartTotal.Valid && b.Subtotal.LessThan(c.MinCartTotal.Decimal) {
		return false
	}
	if c.MinItemsCount != nil && b.ItemCount < *c.MinItemsCount {
		return false
	}
	return true
}

// CalculateDiscount returns the discount against base. Free shipping yields
// zero here; zeroing shipping is the caller's job.
func (c Coupon) CalculateDiscount(base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return money.Zero
	}
	switch c.Type {
	case TypePercent:
		pct := money.Clamp(c.Value, money.Zero, money.Hundred)
		d := base.Mul(pct).Div(money.Hundred)
		if c.MaxDiscount.Valid && d.GreaterThan(c.MaxDiscount.Decimal) {
			d = c.MaxDiscount.Decimal
		}
		return money.Round(d)
	case TypeAmount:
		return money.Round(decimal.Min(money.NonNegative(c.Value), base))
	default:
		return money.Zero
	}
}

func (c Coupon) RemainingUses(u Usage) *int {
	if c.MaxUses == nil {
		return nil
	}
	left := max(*c.MaxUses-u.Total, 0)
	return &left
}

func (c Coupon) RemainingUsesForUser(u Usage) *int {
	if c.MaxUsesPerUser == nil {
		return nil
	}
	left := max(*c.MaxUsesPerUser-u.ForUser, 0)
	return &left
}

// CanApply combines validity with the global and per-user usage caps. The
// per-user cap is only checked when the user is known.
func (c Coupon) CanApply(b Basket, u Usage, userID *int64, now time.Time) error {
	if !c.IsValidFor(b, now) {
		return apperr.Conflict("coupon %s is not valid for this cart", c.Code)
	}
	if left := c.RemainingUses(u); left != nil && *left <= 0 {
		return apperr.Conflict("coupon %s has no uses left", c.Code)
	}
	if userID != nil {
		if left := c.RemainingUsesForUser(u); left != nil && *left <= 0 {
			return apperr.Conflict("coupon %s already used by this customer", c.Code)
		}
	}
	return nil
}
