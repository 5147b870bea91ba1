package application_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderdomain "github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	"github.com/dmehra2102/commerce-backoffice/internal/payment/application"
	"github.com/dmehra2102/commerce-backoffice/internal/payment/domain"
	"github.com/dmehra2102/commerce-backoffice/internal/payment/gateway"
	"github.com/dmehra2102/commerce-backoffice/internal/storage/memory"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeCard is an online gateway whose webhooks are plain JSON signed by a
// "sig" header.
type fakeCard struct {
	intents   int
	refundErr error
	pending   bool
}

type cardEvent struct {
	Kind     gateway.EventKind `json:"kind"`
	Intent   string            `json:"intent"`
	RefundID string            `json:"refund_id"`
	Amount   string            `json:"amount"`
}

func (*fakeCard) Code() string  { return "card" }
func (*fakeCard) Online() bool { return true }

func (f *fakeCard) CreateIntent(_ context.Context, o gateway.Order, _ string) (gateway.IntentResult, error) {
	f.intents++
	return gateway.IntentResult{
		ProviderPaymentID: fmt.Sprintf("pi_%d_%d", o.ID, f.intents),
		ClientSecret:      "secret",
		Status:            domain.IntentRequiresPaymentMethod,
	}, nil
}

func (*fakeCard) Confirm(context.Context, domain.Payment) error { return nil }

func (f *fakeCard) Refund(_ context.Context, p domain.Payment, _ decimal.Decimal, _, key string) (gateway.RefundResult, error) {
	if f.refundErr != nil {
		return gateway.RefundResult{}, f.refundErr
	}
	res := gateway.RefundResult{ProviderRefundID: "re_" + key, Status: domain.RefundSucceeded}
	if f.pending {
		res.Status = domain.RefundPending
	}
	return res, nil
}

func (*fakeCard) OwnsWebhook(h http.Header) bool { return h.Get("Sig") != "" }

func (*fakeCard) HandleWebhook(payload []byte, h http.Header) (gateway.Event, error) {
	if h.Get("Sig") != "ok" {
		return gateway.Event{}, gateway.ErrInvalidSignature
	}
	var ce cardEvent
	if err := json.Unmarshal(payload, &ce); err != nil {
		return gateway.Event{}, err
	}
	ev := gateway.Event{Kind: ce.Kind, ProviderPaymentID: ce.Intent, ProviderRefundID: ce.RefundID, Raw: payload}
	if ce.Amount != "" {
		ev.Amount = dec(ce.Amount)
	}
	return ev, nil
}

func (*fakeCard) FrontendPayload(i *domain.Intent) map[string]any {
	return map[string]any{"type": "card", "client_secret": i.ClientSecret}
}

type fixture struct {
	svc    *application.Service
	card   *fakeCard
	orders *memory.OrderRepository
	outbox *memory.OutboxStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	card := &fakeCard{}
	box := memory.NewOutboxStore(store)
	return fixture{
		svc:    application.NewService(log, store, memory.NewPaymentRepository(store), gateway.NewRegistry(gateway.NewCOD(), card), box),
		card:   card,
		orders: memory.NewOrderRepository(store),
		outbox: box,
	}
}

func (f fixture) order(t *testing.T, total string) orderdomain.Order {
	t.Helper()
	now := time.Now().UTC()
	o := orderdomain.Order{
		Number:            orderdomain.NewNumber(),
		Status:            orderdomain.StatusPlaced,
		PaymentStatus:     orderdomain.PaymentUnpaid,
		FulfillmentStatus: orderdomain.FulfillmentUnfulfilled,
		Currency:          "USD",
		Subtotal:          dec(total),
		GrandTotal:        dec(total),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, f.orders.Create(context.Background(), &o))
	return o
}

func (f fixture) paymentStatus(t *testing.T, orderID int64) orderdomain.PaymentStatus {
	t.Helper()
	o, err := f.orders.Get(context.Background(), orderID)
	require.NoError(t, err)
	return o.PaymentStatus
}

func webhook(t *testing.T, ev cardEvent) ([]byte, http.Header) {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	h := http.Header{}
	h.Set("Sig", "ok")
	return b, h
}

func TestCODStartAndConfirm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.order(t, "80")

	res, err := f.svc.Start(ctx, o.ID, "cod")
	require.NoError(t, err)
	require.NotNil(t, res.Payment)
	assert.Equal(t, domain.StatusAuthorized, res.Payment.Status)
	assert.Equal(t, "You will pay on delivery.", res.Frontend["message"])
	assert.Equal(t, orderdomain.PaymentAuthorized, f.paymentStatus(t, o.ID))

	again, err := f.svc.Start(ctx, o.ID, "cod")
	require.NoError(t, err)
	assert.Equal(t, res.Payment.ID, again.Payment.ID)

	p, err := f.svc.ConfirmOffline(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCaptured, p.Status)
	assert.Equal(t, orderdomain.PaymentPaid, f.paymentStatus(t, o.ID))
	assert.Len(t, f.outbox.Events(ctx, domain.EventPaymentCaptured), 1)

	_, err = f.svc.ConfirmOffline(ctx, o.ID)
	assert.True(t, apperr.IsConflict(err))

	_, err = f.svc.Start(ctx, o.ID, "cod")
	assert.True(t, apperr.IsConflict(err))
}

func TestUnknownProvider(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, "10")
	_, err := f.svc.Start(context.Background(), o.ID, "barter")
	assert.True(t, apperr.IsValidation(err))
}

func TestOnlineStartReusesOpenIntent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.order(t, "40")

	first, err := f.svc.Start(ctx, o.ID, "card")
	require.NoError(t, err)
	require.NotNil(t, first.Intent)
	assert.Equal(t, "secret", first.Frontend["client_secret"])

	second, err := f.svc.Start(ctx, o.ID, "card")
	require.NoError(t, err)
	assert.Equal(t, first.Intent.ID, second.Intent.ID)
	assert.Equal(t, 1, f.card.intents)
}

func TestDuplicateWebhookCapturesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.order(t, "100")
	start, err := f.svc.Start(ctx, o.ID, "card")
	require.NoError(t, err)

	payload, h := webhook(t, cardEvent{Kind: gateway.EventIntentSucceeded, Intent: start.Intent.ProviderPaymentID, Amount: "100"})
	for range 2 {
		res, err := f.svc.HandleWebhook(ctx, "card", h, payload)
		require.NoError(t, err)
		assert.False(t, res.Ignored)
	}

	payments, err := f.svc.Payments(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, domain.StatusCaptured, payments[0].Status)
	require.NotNil(t, payments[0].TransactionID)
	assert.Equal(t, start.Intent.ProviderPaymentID, *payments[0].TransactionID)
	assert.Equal(t, start.Intent.IdempotencyKey, payments[0].IdempotencyKey)
	assert.Equal(t, orderdomain.PaymentPaid, f.paymentStatus(t, o.ID))
	assert.Len(t, f.outbox.Events(ctx, domain.EventPaymentCaptured), 1)
}

func TestWebhookSignatureAndOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.HandleWebhook(ctx, "card", http.Header{}, []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, res.Ignored)

	h := http.Header{}
	h.Set("Sig", "forged")
	res, err = f.svc.HandleWebhook(ctx, "card", h, []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, res.Ignored)

	_, err = f.svc.HandleWebhook(ctx, "nobody", h, []byte(`{}`))
	assert.True(t, apperr.IsNotFound(err))
}

func TestFailedIntentDoesNotDowngradePaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.order(t, "30")
	start, err := f.svc.Start(ctx, o.ID, "card")
	require.NoError(t, err)
	pi := start.Intent.ProviderPaymentID

	payload, h := webhook(t, cardEvent{Kind: gateway.EventIntentSucceeded, Intent: pi})
	_, err = f.svc.HandleWebhook(ctx, "card", h, payload)
	require.NoError(t, err)

	payload, h = webhook(t, cardEvent{Kind: gateway.EventIntentFailed, Intent: pi})
	_, err = f.svc.HandleWebhook(ctx, "card", h, payload)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.PaymentPaid, f.paymentStatus(t, o.ID))
	assert.Empty(t, f.outbox.Events(ctx, domain.EventPaymentFailed))
}

func TestFailedIntentMarksOrderFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.order(t, "30")
	start, err := f.svc.Start(ctx, o.ID, "card")
	require.NoError(t, err)

	payload, h := webhook(t, cardEvent{Kind: gateway.EventIntentFailed, Intent: start.Intent.ProviderPaymentID})
	_, err = f.svc.HandleWebhook(ctx, "card", h, payload)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.PaymentFailed, f.paymentStatus(t, o.ID))
	assert.Len(t, f.outbox.Events(ctx, domain.EventPaymentFailed), 1)
}

func capturedCOD(t *testing.T, f fixture, total string) domain.Payment {
	t.Helper()
	ctx := context.Background()
	o := f.order(t, total)
	_, err := f.svc.Start(ctx, o.ID, "cod")
	require.NoError(t, err)
	p, err := f.svc.ConfirmOffline(ctx, o.ID)
	require.NoError(t, err)
	return p
}

func TestRefundBound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := capturedCOD(t, f, "100")

	r, err := f.svc.Refund(ctx, application.RefundInput{PaymentID: p.ID, Amount: dec("60")})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundSucceeded, r.Status)

	_, err = f.svc.Refund(ctx, application.RefundInput{PaymentID: p.ID, Amount: dec("50")})
	assert.True(t, apperr.IsConflict(err))

	_, err = f.svc.Refund(ctx, application.RefundInput{PaymentID: p.ID, Amount: dec("0")})
	assert.True(t, apperr.IsValidation(err))

	_, err = f.svc.Refund(ctx, application.RefundInput{PaymentID: p.ID, Amount: dec("40")})
	require.NoError(t, err)

	refunds, err := f.svc.Refunds(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, refunds, 2)

	payments, err := f.svc.Payments(ctx, p.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, payments[0].Status)
	assert.Equal(t, orderdomain.PaymentRefunded, f.paymentStatus(t, p.OrderID))

	events := f.outbox.Events(ctx, domain.EventRefundSucceeded)
	require.Len(t, events, 2)
	var last domain.RefundSucceededEvent
	require.NoError(t, json.Unmarshal(events[1].Payload, &last))
	assert.True(t, last.Full)
}

func TestRefundReplayWithKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := capturedCOD(t, f, "50")

	in := application.RefundInput{PaymentID: p.ID, Amount: dec("10"), IdempotencyKey: "rf-1"}
	first, err := f.svc.Refund(ctx, in)
	require.NoError(t, err)
	second, err := f.svc.Refund(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other := capturedCOD(t, f, "50")
	_, err = f.svc.Refund(ctx, application.RefundInput{PaymentID: other.ID, Amount: dec("10"), IdempotencyKey: "rf-1"})
	assert.True(t, apperr.IsConflict(err))
}

func capturedCard(t *testing.T, f fixture, total string) domain.Payment {
	t.Helper()
	ctx := context.Background()
	o := f.order(t, total)
	start, err := f.svc.Start(ctx, o.ID, "card")
	require.NoError(t, err)
	payload, h := webhook(t, cardEvent{Kind: gateway.EventIntentSucceeded, Intent: start.Intent.ProviderPaymentID})
	_, err = f.svc.HandleWebhook(ctx, "card", h, payload)
	require.NoError(t, err)
	payments, err := f.svc.Payments(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	return payments[0]
}

func TestProviderErrorFailsRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := capturedCard(t, f, "20")

	f.card.refundErr = apperr.New(apperr.CodeDependency, "card network down")
	_, err := f.svc.Refund(ctx, application.RefundInput{PaymentID: p.ID, Amount: dec("20")})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeDependency, apperr.CodeOf(err))

	refunds, err := f.svc.Refunds(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, domain.RefundFailed, refunds[0].Status)

	f.card.refundErr = nil
	r, err := f.svc.Refund(ctx, application.RefundInput{PaymentID: p.ID, Amount: dec("20")})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundSucceeded, r.Status)
}

func TestPendingRefundSettledByWebhook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := capturedCard(t, f, "20")

	f.card.pending = true
	r, err := f.svc.Refund(ctx, application.RefundInput{PaymentID: p.ID, Amount: dec("15"), IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundPending, r.Status)

	_, err = f.svc.Refund(ctx, application.RefundInput{PaymentID: p.ID, Amount: dec("10")})
	assert.True(t, apperr.IsConflict(err), "pending refunds count against the balance")

	payload, h := webhook(t, cardEvent{Kind: gateway.EventRefundSucceeded, RefundID: "re_k1"})
	_, err = f.svc.HandleWebhook(ctx, "card", h, payload)
	require.NoError(t, err)

	refunds, err := f.svc.Refunds(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, domain.RefundSucceeded, refunds[0].Status)
	assert.Equal(t, orderdomain.PaymentPaid, f.paymentStatus(t, p.OrderID))
}

func TestRefundRequiresCapturedPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.order(t, "10")
	res, err := f.svc.Start(ctx, o.ID, "cod")
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, application.RefundInput{PaymentID: res.Payment.ID, Amount: dec("5")})
	assert.True(t, apperr.IsConflict(err))

	_, err = f.svc.Refund(ctx, application.RefundInput{PaymentID: 999, Amount: dec("5")})
	assert.True(t, apperr.IsNotFound(err))
}
