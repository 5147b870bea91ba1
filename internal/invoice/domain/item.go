package domain

import (
	"time"

	"github.com/shopspring/decimal"

	orderdomain "github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
	"github.com/dmehra2102/commerce-backoffice/pkg/money"
)

type Item struct {
	ID             int64           `json:"id"`
	InvoiceID      int64           `json:"invoice_id"`
	OrderItemID    int64           `json:"order_item_id"`
	ProductName    string          `json:"product_name"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Qty            int             `json:"qty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	LineTotal      decimal.Decimal `json:"line_total"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Line is a request to bill qty units of an order item.
type Line struct {
	OrderItemID int64           `json:"order_item_id" validate:"required"`
	Qty         int             `json:"qty"`
	Discount    decimal.Decimal `json:"discount"`
	Tax         decimal.Decimal `json:"tax"`
}

func NewItem(oi orderdomain.Item, qty int) Item {
	it := Item{
		OrderItemID:    oi.ID,
		ProductName:    oi.Name,
		UnitPrice:      oi.Price,
		Qty:            qty,
		DiscountAmount: money.Zero,
		TaxAmount:      money.Zero,
	}
	it.Recalculate()
	return it
}

// ApplyDiscount sets the line discount, capped at the line gross amount.
func (it *Item) ApplyDiscount(amount decimal.Decimal) {
	it.DiscountAmount = money.Round(money.Clamp(amount, money.Zero, money.Mul(it.UnitPrice, it.Qty)))
	it.Recalculate()
}

func (it *Item) ApplyTax(amount decimal.Decimal) {
	it.TaxAmount = money.Round(money.NonNegative(amount))
	it.Recalculate()
}

func (it *Item) Recalculate() {
	it.LineTotal = money.Round(money.Mul(it.UnitPrice, it.Qty).Sub(it.DiscountAmount).Add(it.TaxAmount))
}

// GuardQty checks that billing qty more units keeps the order item within its
// ordered quantity. invoiced is what all other invoice lines already bill.
func GuardQty(ordered, invoiced, qty int) error {
	if qty < 1 {
		return apperr.Validation("invoice item qty must be at least 1")
	}
	if invoiced+qty > ordered {
		return apperr.Conflict("invoiced quantity %d exceeds ordered quantity %d", invoiced+qty, ordered)
	}
	return nil
}

// Remaining is the billable balance of one order item.
type Remaining struct {
	OrderItemID int64  `json:"order_item_id"`
	Name        string `json:"name"`
	Ordered     int    `json:"ordered"`
	Invoiced    int    `json:"invoiced"`
	Remaining   int    `json:"remaining"`
}

func NewRemaining(oi orderdomain.Item, invoiced int) Remaining {
	left := oi.Qty - invoiced
	if left < 0 {
		left = 0
	}
	return Remaining{OrderItemID: oi.ID, Name: oi.Name, Ordered: oi.Qty, Invoiced: invoiced, Remaining: left}
}
