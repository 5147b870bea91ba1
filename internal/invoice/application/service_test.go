package application_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/commerce-backoffice/internal/invoice/application"
	"github.com/dmehra2102/commerce-backoffice/internal/invoice/domain"
	orderdomain "github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	paymentdomain "github.com/dmehra2102/commerce-backoffice/internal/payment/domain"
	"github.com/dmehra2102/commerce-backoffice/internal/storage/memory"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	svc      *application.Service
	orders   *memory.OrderRepository
	payments *memory.PaymentRepository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	return fixture{
		svc:      application.NewService(log, store, memory.NewInvoiceRepository(store)),
		orders:   memory.NewOrderRepository(store),
		payments: memory.NewPaymentRepository(store),
	}
}

// order seeds an order with 5 x Widget at 10.00 and 1 x Gadget at 20.00.
func (f fixture) order(t *testing.T) orderdomain.Order {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	o := orderdomain.Order{
		Number:     orderdomain.NewNumber(),
		Status:     orderdomain.StatusPlaced,
		Currency:   "USD",
		Subtotal:   dec("70"),
		GrandTotal: dec("70"),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, f.orders.Create(ctx, &o))
	items := []orderdomain.Item{
		{OrderID: o.ID, ProductID: 1, SKU: "W", Name: "Widget", Price: dec("10"), Qty: 5},
		{OrderID: o.ID, ProductID: 2, SKU: "G", Name: "Gadget", Price: dec("20"), Qty: 1},
	}
	require.NoError(t, f.orders.InsertItems(ctx, items))
	o, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, o.Items, 2)
	return o
}

func (f fixture) payment(t *testing.T, orderID int64) paymentdomain.Payment {
	t.Helper()
	p := paymentdomain.Payment{
		OrderID:        orderID,
		Provider:       "cod",
		IdempotencyKey: orderdomain.NewNumber(),
		Status:         paymentdomain.StatusCaptured,
		Amount:         dec("70"),
		Currency:       "USD",
	}
	require.NoError(t, f.payments.InsertPayment(context.Background(), &p))
	return p
}

func TestCreateGuardsAgainstOverBilling(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.order(t)
	widget := o.Items[0].ID

	inv, err := f.svc.CreateFromOrder(ctx, application.CreateInput{OrderID: o.ID, Lines: []domain.Line{{OrderItemID: widget, Qty: 3}}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIssued, inv.Status)
	assert.NotNil(t, inv.IssuedAt)
	assert.Regexp(t, `^INV-\d{8}-\d{6}$`, inv.Number)
	assert.True(t, dec("30").Equal(inv.GrandTotal), inv.GrandTotal.String())

	_, err = f.svc.CreateFromOrder(ctx, application.CreateInput{OrderID: o.ID, Lines: []domain.Line{{OrderItemID: widget, Qty: 3}}})
	assert.True(t, apperr.IsConflict(err))

	_, err = f.svc.CreateFromOrder(ctx, application.CreateInput{OrderID: o.ID, Lines: []domain.Line{{OrderItemID: widget, Qty: 2}}})
	require.NoError(t, err)

	remaining, err := f.svc.Invoiceable(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, 0, remaining[0].Remaining)
	assert.Equal(t, 1, remaining[1].Remaining)
}

func TestCreateValidatesLines(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.order(t)
	other := f.order(t)

	_, err := f.svc.CreateFromOrder(ctx, application.CreateInput{OrderID: o.ID, Lines: []domain.Line{{OrderItemID: o.Items[0].ID, Qty: 0}}})
	assert.True(t, apperr.IsValidation(err))

	_, err = f.svc.CreateFromOrder(ctx, application.CreateInput{OrderID: o.ID, Lines: []domain.Line{{OrderItemID: other.Items[0].ID, Qty: 1}}})
	assert.True(t, apperr.IsValidation(err))

	list, err := f.svc.ListByOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateRemainingThenNothingLeft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.order(t)

	inv, err := f.svc.CreateFromOrder(ctx, application.CreateInput{OrderID: o.ID, ShippingTotal: dec("5")})
	require.NoError(t, err)
	require.Len(t, inv.Items, 2)
	assert.True(t, dec("75").Equal(inv.GrandTotal), inv.GrandTotal.String())

	_, err = f.svc.CreateFromOrder(ctx, application.CreateInput{OrderID: o.ID})
	assert.ErrorIs(t, err, application.ErrNothingToInvoice)
}

func TestAddItemsMergesSameOrderItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.order(t)
	widget := o.Items[0].ID

	inv, err := f.svc.CreateFromOrder(ctx, application.CreateInput{OrderID: o.ID, Draft: true, Lines: []domain.Line{{OrderItemID: widget, Qty: 1}}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, inv.Status)
	assert.Nil(t, inv.IssuedAt)

	inv, err = f.svc.AddItems(ctx, inv.ID, []domain.Line{{OrderItemID: widget, Qty: 2}})
	require.NoError(t, err)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, 3, inv.Items[0].Qty)

	_, err = f.svc.AddItems(ctx, inv.ID, []domain.Line{{OrderItemID: widget, Qty: 3}})
	assert.True(t, apperr.IsConflict(err))

	inv, err = f.svc.UpdateItemQty(ctx, inv.ID, inv.Items[0].ID, 5)
	require.NoError(t, err)
	assert.True(t, dec("50").Equal(inv.GrandTotal))

	_, err = f.svc.UpdateItemQty(ctx, inv.ID, inv.Items[0].ID, 6)
	assert.True(t, apperr.IsConflict(err))
}

func TestStatusTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.order(t)

	inv, err := f.svc.CreateFromOrder(ctx, application.CreateInput{OrderID: o.ID, Draft: true})
	require.NoError(t, err)

	inv, err = f.svc.Issue(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIssued, inv.Status)

	_, err = f.svc.Issue(ctx, inv.ID)
	assert.True(t, apperr.IsConflict(err))

	p := f.payment(t, o.ID)
	inv, err = f.svc.MarkPaid(ctx, inv.ID, &p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, inv.Status)
	assert.NotNil(t, inv.PaidAt)

	_, err = f.svc.AddItems(ctx, inv.ID, []domain.Line{{OrderItemID: o.Items[0].ID, Qty: 1}})
	assert.True(t, apperr.IsConflict(err))

	_, err = f.svc.Void(ctx, inv.ID)
	assert.True(t, apperr.IsConflict(err))

	inv, err = f.svc.MarkRefunded(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, inv.Status)
}

func TestBillPaymentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.order(t)
	p := f.payment(t, o.ID)

	inv, billed, err := f.svc.BillPayment(ctx, o.ID, p.ID)
	require.NoError(t, err)
	require.True(t, billed)
	assert.Equal(t, domain.StatusPaid, inv.Status)
	assert.True(t, dec("70").Equal(inv.GrandTotal))

	_, billed, err = f.svc.BillPayment(ctx, o.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, billed)

	second := f.payment(t, o.ID)
	_, billed, err = f.svc.BillPayment(ctx, o.ID, second.ID)
	require.NoError(t, err)
	assert.False(t, billed, "nothing left on the order")

	list, err := f.svc.ListByOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	stored, err := f.payments.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.InvoiceID)
	assert.Equal(t, inv.ID, *stored.InvoiceID)
}
