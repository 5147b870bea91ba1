package domain

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
	"github.com/dmehra2102/commerce-backoffice/pkg/money"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusIssued   Status = "issued"
	StatusPaid     Status = "paid"
	StatusVoid     Status = "void"
	StatusRefunded Status = "refunded"
)

// Editable reports whether lines may still be added or changed.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusIssued
}

type Invoice struct {
	ID            int64           `json:"id"`
	OrderID       int64           `json:"order_id"`
	Number        string          `json:"invoice_no"`
	Status        Status          `json:"status"`
	Currency      string          `json:"currency"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	ShippingTotal decimal.Decimal `json:"shipping_total"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	Notes         string          `json:"notes,omitempty"`
	DueAt         *time.Time      `json:"due_at,omitempty"`
	IssuedAt      *time.Time      `json:"issued_at,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	Items         []Item          `json:"items"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Recalculate derives the invoice totals from its own lines and the
// separately tracked shipping total.
func (inv *Invoice) Recalculate() {
	subtotal, discount, tax := money.Zero, money.Zero, money.Zero
	for _, it := range inv.Items {
		subtotal = subtotal.Add(money.Mul(it.UnitPrice, it.Qty))
		discount = discount.Add(it.DiscountAmount)
		tax = tax.Add(it.TaxAmount)
	}
	inv.Subtotal = money.Round(subtotal)
	inv.DiscountTotal = money.Round(discount)
	inv.TaxTotal = money.Round(tax)
	inv.GrandTotal = money.NonNegative(inv.Subtotal.Sub(inv.DiscountTotal).Add(inv.TaxTotal).Add(inv.ShippingTotal))
}

func (inv *Invoice) Issue(now time.Time) error {
	if inv.Status != StatusDraft {
		return apperr.Conflict("invoice %s is %s and cannot be issued", inv.Number, inv.Status)
	}
	inv.Status = StatusIssued
	inv.IssuedAt = &now
	return nil
}

// MarkPaid moves a draft or issued invoice to paid. Marking a paid invoice
// again changes nothing.
func (inv *Invoice) MarkPaid(now time.Time) error {
	switch inv.Status {
	case StatusPaid:
		return nil
	case StatusDraft, StatusIssued:
		inv.Status = StatusPaid
		inv.PaidAt = &now
		return nil
	}
	return apperr.Conflict("invoice %s is %s and cannot be paid", inv.Number, inv.Status)
}

func (inv *Invoice) Void() error {
	switch inv.Status {
	case StatusVoid:
		return nil
	case StatusPaid, StatusRefunded:
		return apperr.Conflict("invoice %s is %s and cannot be voided", inv.Number, inv.Status)
	}
	inv.Status = StatusVoid
	return nil
}

func (inv *Invoice) MarkRefunded() error {
	switch inv.Status {
	case StatusRefunded:
		return nil
	case StatusPaid:
		inv.Status = StatusRefunded
		return nil
	}
	return apperr.Conflict("invoice %s is %s and cannot be refunded", inv.Number, inv.Status)
}

func (inv Invoice) ItemFor(orderItemID int64) (int, bool) {
	for i, it := range inv.Items {
		if it.OrderItemID == orderItemID {
			return i, true
		}
	}
	return -1, false
}

func (inv Invoice) Item(id int64) (int, bool) {
	for i, it := range inv.Items {
		if it.ID == id {
			return i, true
		}
	}
	return -1, false
}

// NewNumber returns INV-YYYYMMDD-NNNNNN. Uniqueness is enforced by the store.
func NewNumber(now time.Time) string {
	u := uuid.New()
	n := binary.BigEndian.Uint32(u[:4]) % 1000000
	return fmt.Sprintf("INV-%s-%06d", now.UTC().Format("20060102"), n)
}
