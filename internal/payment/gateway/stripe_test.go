package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"github.com/dmehra2102/commerce-backoffice/internal/payment/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

const testSecret = "whsec_test"

type fakeStripe struct {
	intentParams *stripe.PaymentIntentParams
	refundParams *stripe.RefundParams
	err          error
}

func (f *fakeStripe) NewPaymentIntent(p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.intentParams = p
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.PaymentIntent{ID: "pi_123", ClientSecret: "pi_123_secret", Status: stripe.PaymentIntentStatusRequiresPaymentMethod}, nil
}

func (f *fakeStripe) NewRefund(p *stripe.RefundParams) (*stripe.Refund, error) {
	f.refundParams = p
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.Refund{ID: "re_1", Status: stripe.RefundStatusSucceeded}, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeCreateIntent(t *testing.T) {
	api := &fakeStripe{}
	g := NewStripe(discard(), api, testSecret)

	res, err := g.CreateIntent(context.Background(), Order{ID: 7, Number: "ORD-1", Amount: decimal.RequireFromString("112.50"), Currency: "USD"}, "intent-key")
	require.NoError(t, err)
	assert.Equal(t, "pi_123", res.ProviderPaymentID)
	assert.Equal(t, domain.IntentRequiresPaymentMethod, res.Status)

	require.NotNil(t, api.intentParams)
	assert.Equal(t, int64(11250), *api.intentParams.Amount)
	assert.Equal(t, "usd", *api.intentParams.Currency)
	assert.Equal(t, "7", api.intentParams.Metadata["order_id"])
	assert.Equal(t, "intent-key", *api.intentParams.IdempotencyKey)

	payload := g.FrontendPayload(&domain.Intent{ClientSecret: "pi_123_secret"})
	assert.Equal(t, "pi_123_secret", payload["client_secret"])
}

func TestStripeProviderFailureIsDependencyError(t *testing.T) {
	g := NewStripe(discard(), &fakeStripe{err: errors.New("card network down")}, testSecret)
	_, err := g.CreateIntent(context.Background(), Order{Amount: decimal.NewFromInt(1), Currency: "USD"}, "k")
	assert.Equal(t, apperr.CodeDependency, apperr.CodeOf(err))
}

func TestStripeRefundPartial(t *testing.T) {
	api := &fakeStripe{}
	g := NewStripe(discard(), api, testSecret)
	tx := "pi_123"

	res, err := g.Refund(context.Background(), domain.Payment{ID: 3, TransactionID: &tx}, decimal.RequireFromString("40"), "damaged", "refund-key")
	require.NoError(t, err)
	assert.Equal(t, domain.RefundSucceeded, res.Status)
	assert.Equal(t, int64(4000), *api.refundParams.Amount)
	assert.Equal(t, "pi_123", *api.refundParams.PaymentIntent)

	_, err = g.Refund(context.Background(), domain.Payment{ID: 4}, decimal.NewFromInt(1), "", "k")
	assert.True(t, apperr.IsConflict(err))
}

func TestStripeWebhook(t *testing.T) {
	g := NewStripe(discard(), &fakeStripe{}, testSecret)
	payload := []byte(`{"id":"evt_1","object":"event","api_version":"2020-08-27","type":"payment_intent.succeeded",` +
		`"data":{"object":{"id":"pi_123","object":"payment_intent","amount":11250,"currency":"usd","status":"succeeded"}}}`)

	h := http.Header{}
	assert.False(t, g.OwnsWebhook(h))
	h.Set(SignatureHeader, sign(payload, testSecret, time.Now()))
	assert.True(t, g.OwnsWebhook(h))

	ev, err := g.HandleWebhook(payload, h)
	require.NoError(t, err)
	assert.Equal(t, EventIntentSucceeded, ev.Kind)
	assert.Equal(t, "pi_123", ev.ProviderPaymentID)
	assert.Equal(t, "evt_1", ev.ProviderEventID)
	assert.True(t, ev.Amount.Equal(decimal.RequireFromString("112.50")))
	assert.Equal(t, "USD", ev.Currency)

	bad := http.Header{}
	bad.Set(SignatureHeader, sign(payload, "whsec_other", time.Now()))
	_, err = g.HandleWebhook(payload, bad)
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestStripeWebhookUnhandledTypeIsIgnored(t *testing.T) {
	g := NewStripe(discard(), &fakeStripe{}, testSecret)
	payload := []byte(`{"id":"evt_2","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)
	h := http.Header{}
	h.Set(SignatureHeader, sign(payload, testSecret, time.Now()))

	ev, err := g.HandleWebhook(payload, h)
	require.NoError(t, err)
	assert.Equal(t, EventIgnored, ev.Kind)
}

func TestStripeRefundWebhooks(t *testing.T) {
	g := NewStripe(discard(), &fakeStripe{}, testSecret)
	deliver := func(eventType, status string) Event {
		t.Helper()
		payload := []byte(`{"id":"evt_r","object":"event","type":"` + eventType + `",` +
			`"data":{"object":{"id":"re_9","object":"refund","amount":2500,"payment_intent":"pi_123","status":"` + status + `"}}}`)
		h := http.Header{}
		h.Set(SignatureHeader, sign(payload, testSecret, time.Now()))
		ev, err := g.HandleWebhook(payload, h)
		require.NoError(t, err)
		return ev
	}

	ev := deliver("refund.updated", "succeeded")
	assert.Equal(t, EventRefundSucceeded, ev.Kind)
	assert.Equal(t, "re_9", ev.ProviderRefundID)
	assert.Equal(t, "pi_123", ev.ProviderPaymentID)
	assert.True(t, ev.Amount.Equal(decimal.RequireFromString("25")))

	ev = deliver("charge.refund.updated", "failed")
	assert.Equal(t, EventRefundFailed, ev.Kind)
	assert.Equal(t, "re_9", ev.ProviderRefundID)

	// still pending at the provider
	ev = deliver("refund.updated", "pending")
	assert.Equal(t, EventIgnored, ev.Kind)

	// carries a charge, not a refund id
	ev = deliver("charge.refunded", "succeeded")
	assert.Equal(t, EventIgnored, ev.Kind)
}

func TestRegistryAndCOD(t *testing.T) {
	r := NewRegistry(NewCOD(), NewStripe(discard(), &fakeStripe{}, testSecret))

	cod, err := r.Get(CodeCOD)
	require.NoError(t, err)
	assert.False(t, cod.Online())
	assert.False(t, cod.OwnsWebhook(http.Header{SignatureHeader: {"x"}}))
	assert.Equal(t, "You will pay on delivery.", cod.FrontendPayload(nil)["message"])

	res, err := cod.Refund(context.Background(), domain.Payment{}, decimal.NewFromInt(5), "", "k")
	require.NoError(t, err)
	assert.Equal(t, domain.RefundSucceeded, res.Status)

	_, err = r.Get("paypal")
	assert.True(t, apperr.IsValidation(err))
	assert.ElementsMatch(t, []string{CodeCOD, CodeStripe}, r.Codes())
}
