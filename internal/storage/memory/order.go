package memory

import (
	"cmp"
	"context"
	"slices"

	orderdomain "github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

type OrderRepository struct{ s *Store }

func NewOrderRepository(s *Store) *OrderRepository { return &OrderRepository{s: s} }

func (r *OrderRepository) Create(ctx context.Context, o *orderdomain.Order) error {
	return r.s.write(ctx, "order.create", func(t *tables) error {
		for _, existing := range t.orders {
			if existing.Number == o.Number {
				return apperr.Duplicate("order number")
			}
		}
		o.ID = t.next("orders")
		row := *o
		row.Items, row.Addresses = nil, nil
		t.orders[o.ID] = row
		return nil
	})
}

func (r *OrderRepository) InsertItems(ctx context.Context, items []orderdomain.Item) error {
	return r.s.write(ctx, "order.insert_items", func(t *tables) error {
		for i := range items {
			items[i].ID = t.next("order_items")
			t.orderItems[items[i].ID] = items[i]
		}
		return nil
	})
}

func (r *OrderRepository) UpsertAddress(ctx context.Context, a *orderdomain.Address) error {
	return r.s.write(ctx, "order.upsert_address", func(t *tables) error {
		for id, existing := range t.addresses {
			if existing.OrderID == a.OrderID && existing.Type == a.Type {
				a.ID = id
				t.addresses[id] = *a
				return nil
			}
		}
		a.ID = t.next("order_addresses")
		t.addresses[a.ID] = *a
		return nil
	})
}

func (r *OrderRepository) Update(ctx context.Context, o orderdomain.Order) error {
	return r.s.write(ctx, "order.update", func(t *tables) error {
		if _, ok := t.orders[o.ID]; !ok {
			return apperr.NotFound("order")
		}
		o.Items, o.Addresses = nil, nil
		t.orders[o.ID] = o
		return nil
	})
}

func (r *OrderRepository) Get(ctx context.Context, id int64) (orderdomain.Order, error) {
	var out orderdomain.Order
	err := r.s.read(ctx, func(t *tables) error {
		o, ok := t.orders[id]
		if !ok {
			return apperr.NotFound("order")
		}
		out = loadOrder(t, o)
		return nil
	})
	return out, err
}

func (r *OrderRepository) Lock(ctx context.Context, id int64) (orderdomain.Order, error) {
	return r.Get(ctx, id)
}

func (r *OrderRepository) AppendStatusEvent(ctx context.Context, e *orderdomain.StatusEvent) error {
	return r.s.write(ctx, "order.append_status_event", func(t *tables) error {
		e.ID = t.next("order_status_events")
		t.statusEvents[e.ID] = *e
		return nil
	})
}

func (r *OrderRepository) Timeline(ctx context.Context, orderID int64) ([]orderdomain.StatusEvent, error) {
	var out []orderdomain.StatusEvent
	err := r.s.read(ctx, func(t *tables) error {
		for _, e := range t.statusEvents {
			if e.OrderID == orderID {
				out = append(out, e)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b orderdomain.StatusEvent) int { return cmp.Compare(a.ID, b.ID) })
	return out, err
}

func loadOrder(t *tables, o orderdomain.Order) orderdomain.Order {
	o.Items = orderItems(t, o.ID)
	o.Addresses = nil
	for _, a := range t.addresses {
		if a.OrderID == o.ID {
			o.Addresses = append(o.Addresses, a)
		}
	}
	slices.SortFunc(o.Addresses, func(a, b orderdomain.Address) int { return cmp.Compare(a.Type, b.Type) })
	return o
}

func orderItems(t *tables, orderID int64) []orderdomain.Item {
	var items []orderdomain.Item
	for _, it := range t.orderItems {
		if it.OrderID == orderID {
			items = append(items, it)
		}
	}
	slices.SortFunc(items, func(a, b orderdomain.Item) int { return cmp.Compare(a.ID, b.ID) })
	return items
}
