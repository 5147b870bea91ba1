package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundSucceeded RefundStatus = "succeeded"
	RefundFailed    RefundStatus = "failed"
)

func (s RefundStatus) CanTransition(to RefundStatus) bool {
	return s == RefundPending && (to == RefundSucceeded || to == RefundFailed)
}

type Refund struct {
	ID               int64           `json:"id"`
	PaymentID        int64           `json:"payment_id"`
	OrderID          int64           `json:"order_id"`
	Amount           decimal.Decimal `json:"amount"`
	Status           RefundStatus    `json:"status"`
	Reason           string          `json:"reason,omitempty"`
	ProviderRefundID *string         `json:"provider_refund_id,omitempty"`
	IdempotencyKey   string          `json:"idempotency_key"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ValidateRefund checks a requested amount against what is left on the
// payment. committed is the sum of refunds that are pending or succeeded.
func ValidateRefund(paymentAmount, committed, requested decimal.Decimal) error {
	if !requested.IsPositive() {
		return apperr.Validation("refund amount must be greater than zero")
	}
	if committed.Add(requested).GreaterThan(paymentAmount) {
		return apperr.Conflict("refund of %s exceeds remaining balance %s",
			requested.StringFixed(2), paymentAmount.Sub(committed).StringFixed(2))
	}
	return nil
}
