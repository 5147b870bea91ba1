package application

import (
	"context"

	"github.com/dmehra2102/commerce-backoffice/internal/invoice/domain"
	orderdomain "github.com/dmehra2102/commerce-backoffice/internal/order/domain"
)

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type OrderView struct {
	ID       int64
	Currency string
	Items    []orderdomain.Item
}

type Repository interface {
	// LockOrder loads the order and locks its items, serialising billing of
	// the same order.
	LockOrder(ctx context.Context, orderID int64) (OrderView, error)
	Order(ctx context.Context, orderID int64) (OrderView, error)

	// Create returns a duplicate error on invoice number collision without
	// aborting the surrounding transaction.
	Create(ctx context.Context, inv *domain.Invoice) error
	Get(ctx context.Context, id int64) (domain.Invoice, error)
	Lock(ctx context.Context, id int64) (domain.Invoice, error)
	ListByOrder(ctx context.Context, orderID int64) ([]domain.Invoice, error)
	Save(ctx context.Context, inv domain.Invoice) error

	InsertItem(ctx context.Context, it *domain.Item) error
	UpdateItem(ctx context.Context, it domain.Item) error
	// InvoicedQty sums the quantity billed for an order item across every
	// invoice, leaving out the invoice item excludeID.
	InvoicedQty(ctx context.Context, orderItemID, excludeID int64) (int, error)

	PaymentInvoice(ctx context.Context, paymentID int64) (*int64, error)
	LinkPayment(ctx context.Context, paymentID, invoiceID int64) error
}
