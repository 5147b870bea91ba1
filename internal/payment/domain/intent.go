package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentProcessing            IntentStatus = "processing"
	IntentSucceeded             IntentStatus = "succeeded"
	IntentCanceled              IntentStatus = "canceled"
	IntentFailed                IntentStatus = "failed"
)

var intentRank = map[IntentStatus]int{
	IntentRequiresPaymentMethod: 0,
	IntentRequiresConfirmation:  1,
	IntentProcessing:            2,
	IntentSucceeded:             3,
	IntentCanceled:              3,
	IntentFailed:                3,
}

func (s IntentStatus) Valid() bool {
	_, ok := intentRank[s]
	return ok
}

func (s IntentStatus) IsTerminal() bool {
	return s == IntentSucceeded || s == IntentCanceled || s == IntentFailed
}

// CanTransition allows forward moves only. Providers may skip intermediate
// states, e.g. a card payment goes straight to succeeded.
func (s IntentStatus) CanTransition(to IntentStatus) bool {
	if s.IsTerminal() || !to.Valid() {
		return false
	}
	return intentRank[to] > intentRank[s]
}

type Intent struct {
	ID                int64           `json:"id"`
	OrderID           int64           `json:"order_id"`
	Provider          string          `json:"provider"`
	ProviderPaymentID string          `json:"provider_payment_id"`
	ClientSecret      string          `json:"-"`
	IdempotencyKey    string          `json:"idempotency_key"`
	Status            IntentStatus    `json:"status"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
