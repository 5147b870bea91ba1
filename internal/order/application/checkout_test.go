package application_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartapp "github.com/dmehra2102/commerce-backoffice/internal/cart/application"
	cartdomain "github.com/dmehra2102/commerce-backoffice/internal/cart/domain"
	couponapp "github.com/dmehra2102/commerce-backoffice/internal/coupon/application"
	coupondomain "github.com/dmehra2102/commerce-backoffice/internal/coupon/domain"
	inventoryapp "github.com/dmehra2102/commerce-backoffice/internal/inventory/application"
	inventorydomain "github.com/dmehra2102/commerce-backoffice/internal/inventory/domain"
	"github.com/dmehra2102/commerce-backoffice/internal/order/application"
	"github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	"github.com/dmehra2102/commerce-backoffice/internal/storage/memory"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type defaults struct{}

func (defaults) Int(_ context.Context, _ string, def int) int          { return def }
func (defaults) String(_ context.Context, _ string, def string) string { return def }

type world struct {
	store     *memory.Store
	catalog   *memory.CatalogRepository
	carts     *cartapp.Service
	coupons   *couponapp.Service
	inventory *inventoryapp.Service
	outbox    *memory.OutboxStore
	checkout  *application.Checkout
	orders    *application.Service
}

func newWorld(t *testing.T) world {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	catalog := memory.NewCatalogRepository(store)
	cartRepo := memory.NewCartRepository(store)
	orderRepo := memory.NewOrderRepository(store)
	box := memory.NewOutboxStore(store)

	coupons := couponapp.NewService(log, memory.NewCouponRepository(store))
	inventory := inventoryapp.NewService(log, store, memory.NewInventoryRepository(store))
	return world{
		store:     store,
		catalog:   catalog,
		carts:     cartapp.NewService(log, store, cartRepo, catalog, coupons, defaults{}),
		coupons:   coupons,
		inventory: inventory,
		outbox:    box,
		checkout:  application.NewCheckout(log, store, orderRepo, cartRepo, coupons, inventory, box),
		orders:    application.NewService(log, store, orderRepo, inventory, box),
	}
}

var shipTo = domain.Address{
	FirstName: "Ada",
	LastName:  "Lovelace",
	Country:   "GB",
	City:      "London",
	Zip:       "N1",
	Address1:  "12 Analytical Row",
}

// cartWithCoupon builds a 125.00 cart (2 x 50 + 1 x 25) with a 10% coupon.
func (w world) cartWithCoupon(t *testing.T, userID *int64) (cartdomain.Cart, cartdomain.Product) {
	t.Helper()
	ctx := context.Background()
	shirt := w.catalog.AddProduct(ctx, "Shirt", "SH-1", dec("50"), 10)
	socks := w.catalog.AddProduct(ctx, "Socks", "SO-1", dec("25"), 10)
	_, err := w.coupons.Create(ctx, coupondomain.Coupon{Code: "SAVE10", Type: coupondomain.TypePercent, Value: dec("10"), IsActive: true})
	require.NoError(t, err)

	c, err := w.carts.GetOrCreate(ctx, userID, "")
	require.NoError(t, err)
	_, err = w.carts.AddItem(ctx, c.ID, shirt.ID, nil, 2)
	require.NoError(t, err)
	_, err = w.carts.AddItem(ctx, c.ID, socks.ID, nil, 1)
	require.NoError(t, err)
	c, err = w.carts.ApplyCoupon(ctx, c.ID, "SAVE10", userID)
	require.NoError(t, err)
	return c, shirt
}

func (w world) movements(t *testing.T, orderID int64, reason inventorydomain.Reason) []inventorydomain.Movement {
	t.Helper()
	ref := inventorydomain.OrderRef(orderID)
	ms, err := w.inventory.Movements(context.Background(), inventorydomain.MovementFilter{Ref: &ref, Reason: reason})
	require.NoError(t, err)
	return ms
}

func TestPlaceOrder(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	userID := int64(42)
	c, _ := w.cartWithCoupon(t, &userID)

	o, err := w.checkout.PlaceOrder(ctx, application.PlaceOrderInput{
		CartID:                c.ID,
		ActorID:               &userID,
		Shipping:              shipTo,
		BillingSameAsShipping: true,
		PaymentProvider:       "cod",
	})
	require.NoError(t, err)

	assert.Regexp(t, `^ORD-[A-Z0-9]{8}$`, o.Number)
	assert.Equal(t, domain.StatusPlaced, o.Status)
	assert.Equal(t, domain.PaymentUnpaid, o.PaymentStatus)
	assert.Equal(t, domain.FulfillmentUnfulfilled, o.FulfillmentStatus)
	assert.True(t, dec("125").Equal(o.Subtotal), o.Subtotal.String())
	assert.True(t, dec("12.50").Equal(o.DiscountTotal), o.DiscountTotal.String())
	assert.True(t, dec("112.50").Equal(o.GrandTotal), o.GrandTotal.String())
	require.Len(t, o.Items, 2)
	require.Len(t, o.Addresses, 2)
	require.NotNil(t, o.Coupon)
	assert.Equal(t, "SAVE10", o.Coupon.Code)

	reserved := w.movements(t, o.ID, inventorydomain.ReasonOrderReserved)
	require.Len(t, reserved, 2)
	total := 0
	for _, m := range reserved {
		total += m.Change
	}
	assert.Equal(t, -3, total)

	cart, err := w.carts.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, cartdomain.StatusConverted, cart.Status)

	placed := w.outbox.Events(ctx, domain.EventOrderPlaced)
	require.Len(t, placed, 1)
	assert.Equal(t, "order", placed[0].AggregateType)

	timeline, err := w.orders.Timeline(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, domain.StatusPlaced, timeline[0].Status)
}

func TestPlaceOrderRollsBackWhenRedemptionFails(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	c, _ := w.cartWithCoupon(t, nil)

	w.store.FailNext("coupon.insert_redemption", errors.New("redemption table unavailable"))
	_, err := w.checkout.PlaceOrder(ctx, application.PlaceOrderInput{CartID: c.ID, Shipping: shipTo, PaymentProvider: "cod"})
	require.Error(t, err)

	_, err = w.orders.Get(ctx, 1)
	assert.True(t, apperr.IsNotFound(err))
	assert.Empty(t, w.movements(t, 1, ""))
	assert.Empty(t, w.outbox.Events(ctx, ""))

	cart, err := w.carts.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, cartdomain.StatusActive, cart.Status)

	o, err := w.checkout.PlaceOrder(ctx, application.PlaceOrderInput{CartID: c.ID, Shipping: shipTo, PaymentProvider: "cod"})
	require.NoError(t, err)
	assert.True(t, dec("112.50").Equal(o.GrandTotal))
}

func TestPlaceOrderRejectsConvertedOrEmptyCart(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)

	empty, err := w.carts.GetOrCreate(ctx, nil, "")
	require.NoError(t, err)
	_, err = w.checkout.PlaceOrder(ctx, application.PlaceOrderInput{CartID: empty.ID, Shipping: shipTo})
	assert.True(t, apperr.IsValidation(err))

	c, _ := w.cartWithCoupon(t, nil)
	_, err = w.checkout.PlaceOrder(ctx, application.PlaceOrderInput{CartID: c.ID, Shipping: domain.Address{}})
	assert.True(t, apperr.IsValidation(err))

	_, err = w.checkout.PlaceOrder(ctx, application.PlaceOrderInput{CartID: c.ID, Shipping: shipTo})
	require.NoError(t, err)
	_, err = w.checkout.PlaceOrder(ctx, application.PlaceOrderInput{CartID: c.ID, Shipping: shipTo})
	assert.True(t, apperr.IsConflict(err))
}

func TestCouponUsageCapAtCheckout(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	p := w.catalog.AddProduct(ctx, "Lamp", "LMP", dec("30"), 10)
	one := 1
	_, err := w.coupons.Create(ctx, coupondomain.Coupon{Code: "ONCE", Type: coupondomain.TypeAmount, Value: dec("5"), MaxUses: &one, IsActive: true})
	require.NoError(t, err)

	fill := func(session string) int64 {
		c, err := w.carts.GetOrCreate(ctx, nil, session)
		require.NoError(t, err)
		_, err = w.carts.AddItem(ctx, c.ID, p.ID, nil, 1)
		require.NoError(t, err)
		_, err = w.carts.ApplyCoupon(ctx, c.ID, "ONCE", nil)
		require.NoError(t, err)
		return c.ID
	}
	first, second := fill("a"), fill("b")

	_, err = w.checkout.PlaceOrder(ctx, application.PlaceOrderInput{CartID: first, Shipping: shipTo})
	require.NoError(t, err)
	_, err = w.checkout.PlaceOrder(ctx, application.PlaceOrderInput{CartID: second, Shipping: shipTo})
	assert.True(t, apperr.IsConflict(err))
}

func TestReserveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	c, _ := w.cartWithCoupon(t, nil)
	o, err := w.checkout.PlaceOrder(ctx, application.PlaceOrderInput{CartID: c.ID, Shipping: shipTo})
	require.NoError(t, err)

	require.NoError(t, w.inventory.Reserve(ctx, o.ID))
	assert.Len(t, w.movements(t, o.ID, inventorydomain.ReasonOrderReserved), 2)
}

func TestCancelReleasesOnce(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	c, shirt := w.cartWithCoupon(t, nil)
	o, err := w.checkout.PlaceOrder(ctx, application.PlaceOrderInput{CartID: c.ID, Shipping: shipTo})
	require.NoError(t, err)

	before, err := w.inventory.Availability(ctx, shirt.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, before.Outstanding)

	o, err = w.orders.Cancel(ctx, o.ID, "customer request", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, o.Status)

	_, err = w.orders.Cancel(ctx, o.ID, "again", nil)
	require.NoError(t, err)

	released := w.movements(t, o.ID, inventorydomain.ReasonOrderCancelled)
	require.Len(t, released, 2)
	byProduct := map[int64]int{}
	for _, m := range released {
		byProduct[m.ProductID] += m.Change
	}
	assert.Equal(t, 2, byProduct[shirt.ID])

	after, err := w.inventory.Availability(ctx, shirt.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, after.Outstanding)

	timeline, err := w.orders.Timeline(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, timeline, 2)
	assert.Len(t, w.outbox.Events(ctx, domain.EventOrderStatusChanged), 1)
}

func TestStatusMachine(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	c, _ := w.cartWithCoupon(t, nil)
	o, err := w.checkout.PlaceOrder(ctx, application.PlaceOrderInput{CartID: c.ID, Shipping: shipTo})
	require.NoError(t, err)

	_, err = w.orders.Transition(ctx, o.ID, domain.StatusDelivered, "", nil)
	assert.True(t, apperr.IsConflict(err))

	_, err = w.orders.Transition(ctx, o.ID, "shipped-ish", "", nil)
	assert.True(t, apperr.IsValidation(err))

	for _, to := range []domain.Status{domain.StatusAccepted, domain.StatusProcessing, domain.StatusOnTheWay, domain.StatusDelivered} {
		o, err = w.orders.Transition(ctx, o.ID, to, "", nil)
		require.NoError(t, err)
		assert.Equal(t, to, o.Status)
	}

	_, err = w.orders.Cancel(ctx, o.ID, "", nil)
	assert.True(t, apperr.IsConflict(err))
}

func TestUpdateAddressesKeepsOneRowPerType(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	c, _ := w.cartWithCoupon(t, nil)
	o, err := w.checkout.PlaceOrder(ctx, application.PlaceOrderInput{CartID: c.ID, Shipping: shipTo})
	require.NoError(t, err)

	bill := shipTo
	bill.City = "Bath"
	in := application.AddressInput{Shipping: shipTo, Billing: &bill}
	_, err = w.orders.UpdateAddresses(ctx, o.ID, in)
	require.NoError(t, err)
	o, err = w.orders.UpdateAddresses(ctx, o.ID, in)
	require.NoError(t, err)

	require.Len(t, o.Addresses, 2)
	for _, a := range o.Addresses {
		if a.Type == domain.AddressBilling {
			assert.Equal(t, "Bath", a.City)
		} else {
			assert.Equal(t, "London", a.City)
		}
	}
}
