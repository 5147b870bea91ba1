// Package gateway holds the payment provider plugins. Each provider is a
// small struct behind Gateway, looked up by code in a Registry.
package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/commerce-backoffice/internal/payment/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Order is the slice of an order a provider needs to charge it.
type Order struct {
	ID       int64
	Number   string
	Amount   decimal.Decimal
	Currency string
}

type IntentResult struct {
	ProviderPaymentID string
	ClientSecret      string
	Status            domain.IntentStatus
}

type RefundResult struct {
	ProviderRefundID string
	Status           domain.RefundStatus
}

type EventKind string

const (
	EventIgnored         EventKind = "ignored"
	EventIntentSucceeded EventKind = "intent_succeeded"
	EventIntentFailed    EventKind = "intent_failed"
	EventRefundSucceeded EventKind = "refund_succeeded"
	EventRefundFailed    EventKind = "refund_failed"
)

// Event is a verified provider webhook normalized for the payment service.
type Event struct {
	Kind              EventKind
	ProviderEventID   string
	ProviderPaymentID string
	ProviderRefundID  string
	Amount            decimal.Decimal
	Currency          string
	Raw               []byte
}

type Gateway interface {
	Code() string
	// Online gateways create a provider-side intent before any payment exists.
	Online() bool
	CreateIntent(ctx context.Context, o Order, idempotencyKey string) (IntentResult, error)
	// Confirm captures an authorized payment on the provider side.
	Confirm(ctx context.Context, p domain.Payment) error
	Refund(ctx context.Context, p domain.Payment, amount decimal.Decimal, reason, idempotencyKey string) (RefundResult, error)
	OwnsWebhook(h http.Header) bool
	// HandleWebhook verifies and decodes a webhook delivery. Verification
	// failures return ErrInvalidSignature.
	HandleWebhook(payload []byte, h http.Header) (Event, error)
	FrontendPayload(intent *domain.Intent) map[string]any
}

type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Code()] = g
	}
	return r
}

func (r *Registry) Get(code string) (Gateway, error) {
	g, ok := r.gateways[code]
	if !ok {
		return nil, apperr.Validation("unknown payment provider %q", code)
	}
	return g, nil
}

func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.gateways))
	for c := range r.gateways {
		codes = append(codes, c)
	}
	return codes
}
