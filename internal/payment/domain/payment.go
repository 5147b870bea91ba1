package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusAuthorized Status = "authorized"
	StatusCaptured   Status = "captured"
	StatusRefunded   Status = "refunded"
	StatusFailed     Status = "failed"
)

func (s Status) IsTerminal() bool {
	return s == StatusRefunded || s == StatusFailed
}

func (s Status) CanTransition(to Status) bool {
	switch {
	case s.IsTerminal():
		return false
	case to == StatusFailed:
		return true
	case s == StatusAuthorized:
		return to == StatusCaptured
	case s == StatusCaptured:
		return to == StatusRefunded
	}
	return false
}

type Payment struct {
	ID             int64           `json:"id"`
	OrderID        int64           `json:"order_id"`
	InvoiceID      *int64          `json:"invoice_id,omitempty"`
	Provider       string          `json:"provider"`
	IdempotencyKey string          `json:"idempotency_key"`
	TransactionID  *string         `json:"transaction_id,omitempty"`
	Status         Status          `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Raw            json.RawMessage `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
