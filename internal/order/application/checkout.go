package application

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cartdomain "github.com/dmehra2102/commerce-backoffice/internal/cart/domain"
	coupondomain "github.com/dmehra2102/commerce-backoffice/internal/coupon/domain"
	"github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
	"github.com/dmehra2102/commerce-backoffice/pkg/money"
	"github.com/dmehra2102/commerce-backoffice/pkg/outbox"
	"github.com/dmehra2102/commerce-backoffice/pkg/tracing"
)

const numberAttempts = 5

type PlaceOrderInput struct {
	CartID                int64
	ActorID               *int64
	Shipping              domain.Address
	Billing               *domain.Address
	BillingSameAsShipping bool
	PaymentProvider       string
}

// Checkout turns an active cart into an order inside one transaction.
type Checkout struct {
	log       *slog.Logger
	tx        Transactor
	orders    OrderRepository
	carts     Carts
	coupons   Coupons
	inventory Inventory
	events    outbox.Recorder
	placed    metric.Int64Counter
	now       func() time.Time
}

func NewCheckout(log *slog.Logger, tx Transactor, orders OrderRepository, carts Carts, coupons Coupons, inventory Inventory, events outbox.Recorder) *Checkout {
	placed, err := otel.Meter("order-checkout").Int64Counter("orders_placed_total")
	if err != nil {
		log.Warn("orders_placed_total counter unavailable", "err", err)
	}
	return &Checkout{
		log:       log,
		tx:        tx,
		orders:    orders,
		carts:     carts,
		coupons:   coupons,
		inventory: inventory,
		events:    events,
		placed:    placed,
		now:       time.Now,
	}
}

func (c *Checkout) PlaceOrder(ctx context.Context, in PlaceOrderInput) (domain.Order, error) {
	var orderID int64
	err := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		cart, err := c.carts.Lock(ctx, in.CartID)
		if err != nil {
			return err
		}
		if cart.Status != cartdomain.StatusActive {
			return apperr.Conflict("cart %d is %s", cart.ID, cart.Status)
		}
		if len(cart.Items) == 0 {
			return apperr.Validation("cart is empty")
		}

		now := c.now().UTC()
		items, subtotal, itemDiscount, count := snapshotItems(cart.Items)

		var coupon *coupondomain.Coupon
		if cart.CouponID != nil {
			basket := coupondomain.Basket{Subtotal: subtotal, ItemCount: count}
			locked, err := c.coupons.LockForCheckout(ctx, *cart.CouponID, basket, cart.UserID)
			if err != nil {
				return err
			}
			coupon = &locked
		}

		o := domain.Order{
			UserID:            cart.UserID,
			CartID:            &cart.ID,
			Status:            domain.StatusPlaced,
			PaymentStatus:     domain.PaymentUnpaid,
			FulfillmentStatus: domain.FulfillmentUnfulfilled,
			PaymentProvider:   in.PaymentProvider,
			Currency:          cart.Currency,
			Subtotal:          subtotal,
			DiscountTotal:     itemDiscount,
			ShippingTotal:     cart.ShippingTotal,
			TaxTotal:          cart.TaxTotal,
			GrandTotal:        money.Zero,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := c.createWithNumber(ctx, &o); err != nil {
			return err
		}

		for i := range items {
			items[i].OrderID = o.ID
		}
		if err := c.orders.InsertItems(ctx, items); err != nil {
			return err
		}
		o.Items = items

		addresses, err := domain.AddressPair(o.ID, in.Shipping, in.Billing, in.BillingSameAsShipping)
		if err != nil {
			return err
		}
		for i := range addresses {
			if err := c.orders.UpsertAddress(ctx, &addresses[i]); err != nil {
				return err
			}
		}

		couponDiscount := money.Zero
		if coupon != nil {
			couponDiscount = o.ApplyCoupon(*coupon)
		}
		o.RecalculateGrandTotal()
		if err := c.orders.Update(ctx, o); err != nil {
			return err
		}

		if err := c.inventory.Reserve(ctx, o.ID); err != nil {
			return err
		}

		if coupon != nil {
			if _, err := c.coupons.RecordOrderRedemption(ctx, *coupon, cart.UserID, o.ID, couponDiscount); err != nil {
				return err
			}
		}

		cart.Status = cartdomain.StatusConverted
		cart.UpdatedAt = now
		if err := c.carts.Save(ctx, cart); err != nil {
			return err
		}
		if err := c.orders.AppendStatusEvent(ctx, &domain.StatusEvent{
			OrderID:    o.ID,
			Status:     domain.StatusPlaced,
			ActorID:    in.ActorID,
			HappenedAt: now,
		}); err != nil {
			return err
		}
		if err := record(ctx, c.events, o.ID, domain.EventOrderPlaced, domain.OrderPlaced{
			OrderID:    o.ID,
			Number:     o.Number,
			UserID:     o.UserID,
			GrandTotal: o.GrandTotal.StringFixed(2),
			Currency:   o.Currency,
			ItemCount:  count,
		}); err != nil {
			return err
		}
		orderID = o.ID
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if c.placed != nil {
		c.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", in.PaymentProvider)))
	}
	c.log.Info("order placed", "order_id", orderID, "cart_id", in.CartID)
	return c.orders.Get(ctx, orderID)
}

func (c *Checkout) createWithNumber(ctx context.Context, o *domain.Order) error {
	for range numberAttempts {
		o.Number = domain.NewNumber()
		err := c.orders.Create(ctx, o)
		if apperr.IsDuplicate(err) {
			c.log.Warn("order number collision, retrying", "number", o.Number)
			continue
		}
		return err
	}
	return apperr.Conflict("could not allocate a unique order number")
}

// snapshotItems copies cart lines into order lines and derives subtotal and
// item discount from the lines themselves rather than the cached cart totals.
func snapshotItems(lines []cartdomain.Item) ([]domain.Item, decimal.Decimal, decimal.Decimal, int) {
	items := make([]domain.Item, 0, len(lines))
	subtotal, discount := money.Zero, money.Zero
	count := 0
	for _, l := range lines {
		l.Recalculate()
		items = append(items, domain.Item{
			ProductID:    l.ProductID,
			VariantID:    l.VariantID,
			SKU:          l.SKU,
			Name:         l.Name,
			Price:        l.Price,
			Qty:          l.Qty,
			LineSubtotal: l.LineSubtotal,
			LineDiscount: l.LineDiscount,
			LineTotal:    l.LineTotal,
		})
		subtotal = subtotal.Add(l.LineSubtotal)
		discount = discount.Add(l.LineDiscount)
		count += l.Qty
	}
	return items, subtotal, discount, count
}

func record(ctx context.Context, events outbox.Recorder, orderID int64, eventType string, payload any) error {
	e, err := outbox.NewEvent("order", strconv.FormatInt(orderID, 10), eventType, payload)
	if err != nil {
		return err
	}
	e.Traceparent = tracing.Traceparent(ctx)
	return events.Record(ctx, e)
}
