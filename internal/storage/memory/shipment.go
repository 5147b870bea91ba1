package memory

import (
	"cmp"
	"context"
	"slices"

	orderdomain "github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	shipmentapp "github.com/dmehra2102/commerce-backoffice/internal/shipment/application"
	shipmentdomain "github.com/dmehra2102/commerce-backoffice/internal/shipment/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

type ShipmentRepository struct{ s *Store }

func NewShipmentRepository(s *Store) *ShipmentRepository { return &ShipmentRepository{s: s} }

func (r *ShipmentRepository) Order(ctx context.Context, orderID int64) (shipmentapp.OrderView, error) {
	var out shipmentapp.OrderView
	err := r.s.read(ctx, func(t *tables) error {
		o, ok := t.orders[orderID]
		if !ok {
			return apperr.NotFound("order")
		}
		out = shipmentapp.OrderView{
			ID:                o.ID,
			Status:            o.Status,
			FulfillmentStatus: o.FulfillmentStatus,
			Items:             orderItems(t, o.ID),
		}
		return nil
	})
	return out, err
}

func (r *ShipmentRepository) LockOrder(ctx context.Context, orderID int64) (shipmentapp.OrderView, error) {
	return r.Order(ctx, orderID)
}

func (r *ShipmentRepository) SetFulfillment(ctx context.Context, orderID int64, status orderdomain.FulfillmentStatus) error {
	return r.s.write(ctx, "shipment.set_fulfillment", func(t *tables) error {
		o, ok := t.orders[orderID]
		if !ok {
			return apperr.NotFound("order")
		}
		o.FulfillmentStatus = status
		t.orders[orderID] = o
		return nil
	})
}

func (r *ShipmentRepository) Create(ctx context.Context, sh *shipmentdomain.Shipment) error {
	return r.s.write(ctx, "shipment.create", func(t *tables) error {
		if sh.CarrierID != nil && sh.TrackingNumber != nil {
			for _, existing := range t.shipments {
				if existing.CarrierID != nil && existing.TrackingNumber != nil &&
					*existing.CarrierID == *sh.CarrierID && *existing.TrackingNumber == *sh.TrackingNumber {
					return apperr.Duplicate("tracking number")
				}
			}
		}
		sh.ID = t.next("shipments")
		row := *sh
		row.Items = nil
		t.shipments[sh.ID] = row
		return nil
	})
}

func (r *ShipmentRepository) Get(ctx context.Context, id int64) (shipmentdomain.Shipment, error) {
	var out shipmentdomain.Shipment
	err := r.s.read(ctx, func(t *tables) error {
		sh, ok := t.shipments[id]
		if !ok {
			return apperr.NotFound("shipment")
		}
		out = withShipmentItems(t, sh)
		return nil
	})
	return out, err
}

func (r *ShipmentRepository) Lock(ctx context.Context, id int64) (shipmentdomain.Shipment, error) {
	return r.Get(ctx, id)
}

func (r *ShipmentRepository) ListByOrder(ctx context.Context, orderID int64) ([]shipmentdomain.Shipment, error) {
	var out []shipmentdomain.Shipment
	err := r.s.read(ctx, func(t *tables) error {
		for _, sh := range t.shipments {
			if sh.OrderID == orderID {
				out = append(out, withShipmentItems(t, sh))
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b shipmentdomain.Shipment) int { return cmp.Compare(a.ID, b.ID) })
	return out, err
}

func (r *ShipmentRepository) Save(ctx context.Context, sh shipmentdomain.Shipment) error {
	return r.s.write(ctx, "shipment.save", func(t *tables) error {
		if _, ok := t.shipments[sh.ID]; !ok {
			return apperr.NotFound("shipment")
		}
		sh.Items = nil
		t.shipments[sh.ID] = sh
		return nil
	})
}

func (r *ShipmentRepository) InsertItem(ctx context.Context, it *shipmentdomain.Item) error {
	return r.s.write(ctx, "shipment.insert_item", func(t *tables) error {
		it.ID = t.next("shipment_items")
		t.shipmentItems[it.ID] = *it
		return nil
	})
}

func (r *ShipmentRepository) UpdateItem(ctx context.Context, it shipmentdomain.Item) error {
	return r.s.write(ctx, "shipment.update_item", func(t *tables) error {
		if _, ok := t.shipmentItems[it.ID]; !ok {
			return apperr.NotFound("shipment item")
		}
		t.shipmentItems[it.ID] = it
		return nil
	})
}

func (r *ShipmentRepository) DeleteItem(ctx context.Context, shipmentID, itemID int64) error {
	return r.s.write(ctx, "shipment.delete_item", func(t *tables) error {
		it, ok := t.shipmentItems[itemID]
		if !ok || it.ShipmentID != shipmentID {
			return apperr.NotFound("shipment item")
		}
		delete(t.shipmentItems, itemID)
		return nil
	})
}

func (r *ShipmentRepository) ShippedQty(ctx context.Context, orderItemID, excludeID int64) (int, error) {
	n := 0
	err := r.s.read(ctx, func(t *tables) error {
		for _, it := range t.shipmentItems {
			if it.OrderItemID != orderItemID || it.ID == excludeID {
				continue
			}
			if t.shipments[it.ShipmentID].Status == shipmentdomain.StatusReturned {
				continue
			}
			n += it.Qty
		}
		return nil
	})
	return n, err
}

func (r *ShipmentRepository) CountableShippedQty(ctx context.Context, orderID int64) (int, error) {
	n := 0
	err := r.s.read(ctx, func(t *tables) error {
		for _, it := range t.shipmentItems {
			sh := t.shipments[it.ShipmentID]
			if sh.OrderID == orderID && sh.Status.Countable() {
				n += it.Qty
			}
		}
		return nil
	})
	return n, err
}

func (r *ShipmentRepository) InsertEvent(ctx context.Context, e *shipmentdomain.Event) error {
	return r.s.write(ctx, "shipment.insert_event", func(t *tables) error {
		e.ID = t.next("shipment_events")
		t.shipmentEvents[e.ID] = *e
		return nil
	})
}

func (r *ShipmentRepository) Events(ctx context.Context, shipmentID int64) ([]shipmentdomain.Event, error) {
	var out []shipmentdomain.Event
	err := r.s.read(ctx, func(t *tables) error {
		for _, e := range t.shipmentEvents {
			if e.ShipmentID == shipmentID {
				out = append(out, e)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b shipmentdomain.Event) int { return cmp.Compare(a.ID, b.ID) })
	return out, err
}

func withShipmentItems(t *tables, sh shipmentdomain.Shipment) shipmentdomain.Shipment {
	sh.Items = nil
	for _, it := range t.shipmentItems {
		if it.ShipmentID == sh.ID {
			sh.Items = append(sh.Items, it)
		}
	}
	slices.SortFunc(sh.Items, func(a, b shipmentdomain.Item) int { return cmp.Compare(a.ID, b.ID) })
	return sh
}
