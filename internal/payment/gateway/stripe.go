package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/dmehra2102/commerce-backoffice/internal/payment/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
	"github.com/dmehra2102/commerce-backoffice/pkg/money"
)

const (
	CodeStripe      = "stripe"
	SignatureHeader = "Stripe-Signature"
)

// StripeAPI is the part of the Stripe client the gateway calls.
type StripeAPI interface {
	NewPaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	NewRefund(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClient struct {
	api *client.API
}

func NewStripeClient(secretKey string) StripeAPI {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &stripeClient{api: sc}
}

func (c *stripeClient) NewPaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return c.api.PaymentIntents.New(params)
}

func (c *stripeClient) NewRefund(params *stripe.RefundParams) (*stripe.Refund, error) {
	return c.api.Refunds.New(params)
}

type Stripe struct {
	log           *slog.Logger
	api           StripeAPI
	webhookSecret string
	cb            *gobreaker.CircuitBreaker
}

func NewStripe(log *slog.Logger, api StripeAPI, webhookSecret string) *Stripe {
	st := gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Stripe{log: log, api: api, webhookSecret: webhookSecret, cb: gobreaker.NewCircuitBreaker(st)}
}

func (*Stripe) Code() string { return CodeStripe }

func (*Stripe) Online() bool { return true }

func (s *Stripe) CreateIntent(ctx context.Context, o Order, idempotencyKey string) (IntentResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(money.MinorUnits(o.Amount)),
		Currency: stripe.String(strings.ToLower(o.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", strconv.FormatInt(o.ID, 10))
	params.AddMetadata("order_number", o.Number)
	params.SetIdempotencyKey(idempotencyKey)

	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.api.NewPaymentIntent(params)
	})
	if err != nil {
		return IntentResult{}, apperr.Wrap(apperr.CodeDependency, errors.Wrap(err, "stripe create payment intent"), "payment provider unavailable")
	}
	pi := res.(*stripe.PaymentIntent)
	return IntentResult{
		ProviderPaymentID: pi.ID,
		ClientSecret:      pi.ClientSecret,
		Status:            intentStatus(pi.Status),
	}, nil
}

// Confirm is a no-op: Stripe intents are confirmed client side and captured
// automatically, the outcome arrives by webhook.
func (*Stripe) Confirm(context.Context, domain.Payment) error { return nil }

func (s *Stripe) Refund(ctx context.Context, p domain.Payment, amount decimal.Decimal, reason, idempotencyKey string) (RefundResult, error) {
	if p.TransactionID == nil {
		return RefundResult{}, apperr.Conflict("payment %d has no provider transaction", p.ID)
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(*p.TransactionID),
		Amount:        stripe.Int64(money.MinorUnits(amount)),
	}
	params.Context = ctx
	params.AddMetadata("payment_id", strconv.FormatInt(p.ID, 10))
	if reason != "" {
		params.AddMetadata("reason", reason)
	}
	params.SetIdempotencyKey(idempotencyKey)

	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.api.NewRefund(params)
	})
	if err != nil {
		return RefundResult{}, apperr.Wrap(apperr.CodeDependency, errors.Wrap(err, "stripe create refund"), "payment provider unavailable")
	}
	r := res.(*stripe.Refund)
	return RefundResult{ProviderRefundID: r.ID, Status: refundStatus(r.Status)}, nil
}

func (*Stripe) OwnsWebhook(h http.Header) bool {
	return h.Get(SignatureHeader) != ""
}

func (s *Stripe) HandleWebhook(payload []byte, h http.Header) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, h.Get(SignatureHeader), s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Event{}, errors.Wrap(ErrInvalidSignature, err.Error())
	}
	out := Event{Kind: EventIgnored, ProviderEventID: ev.ID, Raw: payload}
	if ev.Data == nil {
		return out, nil
	}

	switch ev.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return Event{}, errors.Wrap(err, "decode payment intent")
		}
		out.Kind = EventIntentSucceeded
		if ev.Type == "payment_intent.payment_failed" {
			out.Kind = EventIntentFailed
		}
		out.ProviderPaymentID = pi.ID
		out.Amount = money.FromMinorUnits(pi.Amount)
		out.Currency = strings.ToUpper(string(pi.Currency))
	case "refund.updated", "charge.refund.updated":
		var r stripe.Refund
		if err := json.Unmarshal(ev.Data.Raw, &r); err != nil {
			return Event{}, errors.Wrap(err, "decode refund")
		}
		switch refundStatus(r.Status) {
		case domain.RefundSucceeded:
			out.Kind = EventRefundSucceeded
		case domain.RefundFailed:
			out.Kind = EventRefundFailed
		}
		out.ProviderRefundID = r.ID
		out.Amount = money.FromMinorUnits(r.Amount)
		if r.PaymentIntent != nil {
			out.ProviderPaymentID = r.PaymentIntent.ID
		}
	}
	return out, nil
}

func (*Stripe) FrontendPayload(intent *domain.Intent) map[string]any {
	if intent == nil {
		return map[string]any{"type": CodeStripe}
	}
	return map[string]any{
		"type":          CodeStripe,
		"client_secret": intent.ClientSecret,
		"intent_id":     intent.ProviderPaymentID,
	}
}

func intentStatus(s stripe.PaymentIntentStatus) domain.IntentStatus {
	switch s {
	case stripe.PaymentIntentStatusRequiresConfirmation:
		return domain.IntentRequiresConfirmation
	case stripe.PaymentIntentStatusProcessing:
		return domain.IntentProcessing
	case stripe.PaymentIntentStatusSucceeded:
		return domain.IntentSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return domain.IntentCanceled
	default:
		return domain.IntentRequiresPaymentMethod
	}
}

func refundStatus(s stripe.RefundStatus) domain.RefundStatus {
	switch s {
	case stripe.RefundStatusSucceeded:
		return domain.RefundSucceeded
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		return domain.RefundFailed
	default:
		return domain.RefundPending
	}
}
