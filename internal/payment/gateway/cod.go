package gateway

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/commerce-backoffice/internal/payment/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

const CodeCOD = "cod"

// COD is cash on delivery: no provider, payments are authorized at start and
// captured by an operator.
type COD struct{}

func NewCOD() *COD { return &COD{} }

func (*COD) Code() string { return CodeCOD }

func (*COD) Online() bool { return false }

func (*COD) CreateIntent(context.Context, Order, string) (IntentResult, error) {
	return IntentResult{}, apperr.Conflict("cash on delivery has no payment intent")
}

func (*COD) Confirm(context.Context, domain.Payment) error { return nil }

func (*COD) Refund(context.Context, domain.Payment, decimal.Decimal, string, string) (RefundResult, error) {
	return RefundResult{Status: domain.RefundSucceeded}, nil
}

func (*COD) OwnsWebhook(http.Header) bool { return false }

func (*COD) HandleWebhook([]byte, http.Header) (Event, error) {
	return Event{Kind: EventIgnored}, nil
}

func (*COD) FrontendPayload(*domain.Intent) map[string]any {
	return map[string]any{
		"type":    CodeCOD,
		"message": "You will pay on delivery.",
	}
}
