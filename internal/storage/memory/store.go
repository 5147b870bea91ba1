// Package memory keeps every repository in process maps. Transactions take
// the store lock and snapshot all tables, restoring them when the function
// fails, so tests observe the same all-or-nothing behaviour as Postgres.
package memory

import (
	"context"
	"maps"
	"sync"

	cartdomain "github.com/dmehra2102/commerce-backoffice/internal/cart/domain"
	coupondomain "github.com/dmehra2102/commerce-backoffice/internal/coupon/domain"
	inventorydomain "github.com/dmehra2102/commerce-backoffice/internal/inventory/domain"
	invoicedomain "github.com/dmehra2102/commerce-backoffice/internal/invoice/domain"
	orderdomain "github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	paymentdomain "github.com/dmehra2102/commerce-backoffice/internal/payment/domain"
	shipmentdomain "github.com/dmehra2102/commerce-backoffice/internal/shipment/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/outbox"
)

type product struct {
	cartdomain.Product
	Stock int
}

type tables struct {
	seq map[string]int64

	settings map[string]string
	products map[int64]product
	variants map[int64]cartdomain.Variant

	carts     map[int64]cartdomain.Cart
	cartItems map[int64]cartdomain.Item

	coupons     map[int64]coupondomain.Coupon
	redemptions map[int64]coupondomain.Redemption

	orders       map[int64]orderdomain.Order
	orderItems   map[int64]orderdomain.Item
	addresses    map[int64]orderdomain.Address
	statusEvents map[int64]orderdomain.StatusEvent

	movements map[int64]inventorydomain.Movement

	intents  map[int64]paymentdomain.Intent
	payments map[int64]paymentdomain.Payment
	refunds  map[int64]paymentdomain.Refund

	invoices     map[int64]invoicedomain.Invoice
	invoiceItems map[int64]invoicedomain.Item

	shipments      map[int64]shipmentdomain.Shipment
	shipmentItems  map[int64]shipmentdomain.Item
	shipmentEvents map[int64]shipmentdomain.Event

	outbox map[int64]outbox.Event
}

func newTables() *tables {
	return &tables{
		seq:            map[string]int64{},
		settings:       map[string]string{},
		products:       map[int64]product{},
		variants:       map[int64]cartdomain.Variant{},
		carts:          map[int64]cartdomain.Cart{},
		cartItems:      map[int64]cartdomain.Item{},
		coupons:        map[int64]coupondomain.Coupon{},
		redemptions:    map[int64]coupondomain.Redemption{},
		orders:         map[int64]orderdomain.Order{},
		orderItems:     map[int64]orderdomain.Item{},
		addresses:      map[int64]orderdomain.Address{},
		statusEvents:   map[int64]orderdomain.StatusEvent{},
		movements:      map[int64]inventorydomain.Movement{},
		intents:        map[int64]paymentdomain.Intent{},
		payments:       map[int64]paymentdomain.Payment{},
		refunds:        map[int64]paymentdomain.Refund{},
		invoices:       map[int64]invoicedomain.Invoice{},
		invoiceItems:   map[int64]invoicedomain.Item{},
		shipments:      map[int64]shipmentdomain.Shipment{},
		shipmentItems:  map[int64]shipmentdomain.Item{},
		shipmentEvents: map[int64]shipmentdomain.Event{},
		outbox:         map[int64]outbox.Event{},
	}
}

// clone copies every table. Rows are values and are replaced, never mutated
// in place, so a shallow copy of each map is a full snapshot.
func (t *tables) clone() *tables {
	return &tables{
		seq:            maps.Clone(t.seq),
		settings:       maps.Clone(t.settings),
		products:       maps.Clone(t.products),
		variants:       maps.Clone(t.variants),
		carts:          maps.Clone(t.carts),
		cartItems:      maps.Clone(t.cartItems),
		coupons:        maps.Clone(t.coupons),
		redemptions:    maps.Clone(t.redemptions),
		orders:         maps.Clone(t.orders),
		orderItems:     maps.Clone(t.orderItems),
		addresses:      maps.Clone(t.addresses),
		statusEvents:   maps.Clone(t.statusEvents),
		movements:      maps.Clone(t.movements),
		intents:        maps.Clone(t.intents),
		payments:       maps.Clone(t.payments),
		refunds:        maps.Clone(t.refunds),
		invoices:       maps.Clone(t.invoices),
		invoiceItems:   maps.Clone(t.invoiceItems),
		shipments:      maps.Clone(t.shipments),
		shipmentItems:  maps.Clone(t.shipmentItems),
		shipmentEvents: maps.Clone(t.shipmentEvents),
		outbox:         maps.Clone(t.outbox),
	}
}

func (t *tables) next(table string) int64 {
	t.seq[table]++
	return t.seq[table]
}

type Store struct {
	mu   sync.Mutex
	data *tables

	faultMu sync.Mutex
	faults  map[string]error
}

func NewStore() *Store {
	return &Store{data: newTables(), faults: map[string]error{}}
}

type txKey struct{}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// WithinTx runs fn holding the store lock. A nested call joins the outer
// transaction. When fn fails every table is restored.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// read runs fn against the tables, taking the lock unless the caller is
// already inside a transaction.
func (s *Store) read(ctx context.Context, fn func(t *tables) error) error {
	if !inTx(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.data)
}

// write is read plus fault injection for the named operation.
func (s *Store) write(ctx context.Context, op string, fn func(t *tables) error) error {
	if err := s.fault(op); err != nil {
		return err
	}
	return s.read(ctx, fn)
}

// FailNext makes the next write named op return err. Used by tests to break
// a transaction part way through.
func (s *Store) FailNext(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	err, ok := s.faults[op]
	if !ok {
		return nil
	}
	delete(s.faults, op)
	return err
}

func sameVariant(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func ptr[T any](v T) *T { return &v }
