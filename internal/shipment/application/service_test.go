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

	orderdomain "github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	"github.com/dmehra2102/commerce-backoffice/internal/shipment/application"
	"github.com/dmehra2102/commerce-backoffice/internal/shipment/domain"
	"github.com/dmehra2102/commerce-backoffice/internal/storage/memory"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

type fixture struct {
	svc    *application.Service
	orders *memory.OrderRepository
	outbox *memory.OutboxStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	box := memory.NewOutboxStore(store)
	return fixture{
		svc:    application.NewService(log, store, memory.NewShipmentRepository(store), box),
		orders: memory.NewOrderRepository(store),
		outbox: box,
	}
}

// order seeds an order with 2 x Boots and 1 x Laces.
func (f fixture) order(t *testing.T, status orderdomain.Status) orderdomain.Order {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	o := orderdomain.Order{
		Number:            orderdomain.NewNumber(),
		Status:            status,
		FulfillmentStatus: orderdomain.FulfillmentUnfulfilled,
		Currency:          "USD",
		GrandTotal:        decimal.NewFromInt(130),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, f.orders.Create(ctx, &o))
	require.NoError(t, f.orders.InsertItems(ctx, []orderdomain.Item{
		{OrderID: o.ID, ProductID: 1, SKU: "BOOT", Name: "Boots", Price: decimal.NewFromInt(60), Qty: 2},
		{OrderID: o.ID, ProductID: 2, SKU: "LACE", Name: "Laces", Price: decimal.NewFromInt(10), Qty: 1},
	}))
	o, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	return o
}

func (f fixture) fulfillment(t *testing.T, orderID int64) orderdomain.FulfillmentStatus {
	t.Helper()
	o, err := f.orders.Get(context.Background(), orderID)
	require.NoError(t, err)
	return o.FulfillmentStatus
}

func TestCreateGuardsShippedQuantity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.order(t, orderdomain.StatusProcessing)
	boots := o.Items[0].ID

	_, err := f.svc.Create(ctx, application.CreateInput{OrderID: o.ID, Items: []application.ItemInput{{OrderItemID: boots, Qty: 3}}})
	assert.True(t, apperr.IsConflict(err))

	sh, err := f.svc.Create(ctx, application.CreateInput{OrderID: o.ID, Items: []application.ItemInput{{OrderItemID: boots, Qty: 2}}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLabelCreated, sh.Status)
	require.NotNil(t, sh.TrackingNumber)
	assert.Regexp(t, `^INT-\d{8}-[0-9A-F]{6}$`, *sh.TrackingNumber)
	require.Len(t, sh.Items, 1)
	assert.Equal(t, "Boots", sh.Items[0].ProductName)

	_, err = f.svc.Create(ctx, application.CreateInput{OrderID: o.ID, Items: []application.ItemInput{{OrderItemID: boots, Qty: 1}}})
	assert.True(t, apperr.IsConflict(err))

	list, err := f.svc.ListByOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateRejectsCancelledOrderAndForeignItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cancelled := f.order(t, orderdomain.StatusCancelled)
	_, err := f.svc.Create(ctx, application.CreateInput{OrderID: cancelled.ID})
	assert.True(t, apperr.IsConflict(err))

	o := f.order(t, orderdomain.StatusProcessing)
	_, err = f.svc.Create(ctx, application.CreateInput{OrderID: o.ID, Items: []application.ItemInput{{OrderItemID: cancelled.Items[0].ID, Qty: 1}}})
	assert.True(t, apperr.IsValidation(err))
}

func TestDuplicateCarrierTracking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.order(t, orderdomain.StatusProcessing)
	carrier := int64(4)

	_, err := f.svc.Create(ctx, application.CreateInput{OrderID: o.ID, CarrierID: &carrier, TrackingNumber: "1Z999"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, application.CreateInput{OrderID: o.ID, CarrierID: &carrier, TrackingNumber: "1Z999"})
	assert.True(t, apperr.IsDuplicate(err))

	other := int64(5)
	_, err = f.svc.Create(ctx, application.CreateInput{OrderID: o.ID, CarrierID: &other, TrackingNumber: "1Z999"})
	require.NoError(t, err)
}

func TestEventsDriveStatusAndFulfillment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.order(t, orderdomain.StatusProcessing)

	sh, err := f.svc.Create(ctx, application.CreateInput{OrderID: o.ID, Items: []application.ItemInput{{OrderItemID: o.Items[0].ID, Qty: 2}}})
	require.NoError(t, err)
	assert.Equal(t, orderdomain.FulfillmentUnfulfilled, f.fulfillment(t, o.ID))

	sh, err = f.svc.RecordEvent(ctx, sh.ID, application.EventInput{Code: "PICKUP", Location: "Depot"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInTransit, sh.Status)
	assert.NotNil(t, sh.ShippedAt)
	assert.Equal(t, orderdomain.FulfillmentPartial, f.fulfillment(t, o.ID))

	sh, err = f.svc.RecordEvent(ctx, sh.ID, application.EventInput{Code: "hub_scan"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInTransit, sh.Status)

	sh, err = f.svc.AddItem(ctx, sh.ID, o.Items[1].ID, 1)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.FulfillmentFulfilled, f.fulfillment(t, o.ID))

	_, err = f.svc.RecordEvent(ctx, sh.ID, application.EventInput{Code: "teleported"})
	assert.True(t, apperr.IsValidation(err))

	_, err = f.svc.RecordEvent(ctx, sh.ID, application.EventInput{Code: "label_created"})
	assert.True(t, apperr.IsConflict(err))

	sh, err = f.svc.Transition(ctx, sh.ID, domain.StatusOutForDelivery, "")
	require.NoError(t, err)
	sh, err = f.svc.RecordEvent(ctx, sh.ID, application.EventInput{Code: "delivered"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, sh.Status)
	assert.NotNil(t, sh.DeliveredAt)

	_, err = f.svc.AddItem(ctx, sh.ID, o.Items[1].ID, 1)
	assert.True(t, apperr.IsConflict(err))

	events, err := f.svc.Events(ctx, sh.ID)
	require.NoError(t, err)
	assert.Len(t, events, 4)
	assert.Len(t, f.outbox.Events(ctx, domain.EventShipmentStatusChanged), 3)
}

func TestReturnedShipmentFreesQuantity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.order(t, orderdomain.StatusProcessing)
	laces := o.Items[1].ID

	sh, err := f.svc.Create(ctx, application.CreateInput{OrderID: o.ID, Items: []application.ItemInput{{OrderItemID: laces, Qty: 1}}})
	require.NoError(t, err)
	_, err = f.svc.RecordEvent(ctx, sh.ID, application.EventInput{Code: "in_transit"})
	require.NoError(t, err)
	sh, err = f.svc.RecordEvent(ctx, sh.ID, application.EventInput{Code: "returned", Description: "refused"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReturned, sh.Status)
	require.NotNil(t, sh.FailureReason)
	assert.Equal(t, "refused", *sh.FailureReason)
	assert.Equal(t, orderdomain.FulfillmentUnfulfilled, f.fulfillment(t, o.ID))

	_, err = f.svc.Create(ctx, application.CreateInput{OrderID: o.ID, Items: []application.ItemInput{{OrderItemID: laces, Qty: 1}}})
	require.NoError(t, err)
}

func TestEditItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.order(t, orderdomain.StatusProcessing)
	boots := o.Items[0].ID

	sh, err := f.svc.Create(ctx, application.CreateInput{OrderID: o.ID, Items: []application.ItemInput{{OrderItemID: boots, Qty: 1}}})
	require.NoError(t, err)

	sh, err = f.svc.AddItem(ctx, sh.ID, boots, 1)
	require.NoError(t, err)
	require.Len(t, sh.Items, 1)
	assert.Equal(t, 2, sh.Items[0].Qty)

	_, err = f.svc.UpdateItemQty(ctx, sh.ID, sh.Items[0].ID, 3)
	assert.True(t, apperr.IsConflict(err))

	sh, err = f.svc.UpdateItemQty(ctx, sh.ID, sh.Items[0].ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, sh.Items[0].Qty)

	sh, err = f.svc.RemoveItem(ctx, sh.ID, sh.Items[0].ID)
	require.NoError(t, err)
	assert.Empty(t, sh.Items)

	_, err = f.svc.RemoveItem(ctx, sh.ID, 999)
	assert.True(t, apperr.IsNotFound(err))
}
