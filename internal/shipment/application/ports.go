package application

import (
	"context"

	orderdomain "github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	"github.com/dmehra2102/commerce-backoffice/internal/shipment/domain"
)

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type OrderView struct {
	ID                int64
	Status            orderdomain.Status
	FulfillmentStatus orderdomain.FulfillmentStatus
	Items             []orderdomain.Item
}

func (o OrderView) Item(id int64) (orderdomain.Item, bool) {
	for _, it := range o.Items {
		if it.ID == id {
			return it, true
		}
	}
	return orderdomain.Item{}, false
}

type Repository interface {
	// LockOrder locks the order row so shipping of one order is serialised.
	LockOrder(ctx context.Context, orderID int64) (OrderView, error)
	Order(ctx context.Context, orderID int64) (OrderView, error)
	SetFulfillment(ctx context.Context, orderID int64, status orderdomain.FulfillmentStatus) error

	// Create returns a duplicate error when the carrier already uses the
	// tracking number.
	Create(ctx context.Context, s *domain.Shipment) error
	Get(ctx context.Context, id int64) (domain.Shipment, error)
	Lock(ctx context.Context, id int64) (domain.Shipment, error)
	ListByOrder(ctx context.Context, orderID int64) ([]domain.Shipment, error)
	Save(ctx context.Context, s domain.Shipment) error

	InsertItem(ctx context.Context, it *domain.Item) error
	UpdateItem(ctx context.Context, it domain.Item) error
	DeleteItem(ctx context.Context, shipmentID, itemID int64) error
	// ShippedQty sums an order item's quantity over non-returned shipments,
	// leaving out the shipment item excludeID.
	ShippedQty(ctx context.Context, orderItemID, excludeID int64) (int, error)
	// CountableShippedQty sums quantities over the order's in-transit,
	// out-for-delivery and delivered shipments.
	CountableShippedQty(ctx context.Context, orderID int64) (int, error)

	InsertEvent(ctx context.Context, e *domain.Event) error
	Events(ctx context.Context, shipmentID int64) ([]domain.Event, error)
}
