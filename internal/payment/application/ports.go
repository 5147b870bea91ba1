package application

import (
	"context"

	"github.com/shopspring/decimal"

	orderdomain "github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	"github.com/dmehra2102/commerce-backoffice/internal/payment/domain"
)

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderView is what payments read and write on an order.
type OrderView struct {
	ID            int64
	Number        string
	Status        orderdomain.Status
	PaymentStatus orderdomain.PaymentStatus
	GrandTotal    decimal.Decimal
	Currency      string
}

type Repository interface {
	Order(ctx context.Context, orderID int64) (OrderView, error)
	LockOrder(ctx context.Context, orderID int64) (OrderView, error)
	SetOrderPaymentStatus(ctx context.Context, orderID int64, status orderdomain.PaymentStatus) error

	InsertIntent(ctx context.Context, i *domain.Intent) error
	OpenIntent(ctx context.Context, orderID int64, provider string) (domain.Intent, error)
	LockIntentByProviderID(ctx context.Context, provider, providerPaymentID string) (domain.Intent, error)
	SetIntentStatus(ctx context.Context, id int64, status domain.IntentStatus) error

	// InsertPayment returns an apperr.ErrDuplicate error when the idempotency
	// key or (provider, transaction id) already exists.
	InsertPayment(ctx context.Context, p *domain.Payment) error
	GetPayment(ctx context.Context, id int64) (domain.Payment, error)
	LockPayment(ctx context.Context, id int64) (domain.Payment, error)
	PaymentByTransaction(ctx context.Context, provider, transactionID string) (domain.Payment, error)
	LockLatestPayment(ctx context.Context, orderID int64, status domain.Status) (domain.Payment, error)
	SetPaymentStatus(ctx context.Context, id int64, status domain.Status) error
	ListPayments(ctx context.Context, orderID int64) ([]domain.Payment, error)

	InsertRefund(ctx context.Context, r *domain.Refund) error
	RefundByKey(ctx context.Context, key string) (domain.Refund, error)
	LockRefundByProviderID(ctx context.Context, providerRefundID string) (domain.Refund, error)
	LockRefund(ctx context.Context, id int64) (domain.Refund, error)
	UpdateRefund(ctx context.Context, r domain.Refund) error
	// SumRefunds adds up refund amounts for the payment in the given statuses.
	SumRefunds(ctx context.Context, paymentID int64, statuses ...domain.RefundStatus) (decimal.Decimal, error)
	ListRefunds(ctx context.Context, paymentID int64) ([]domain.Refund, error)
}
