package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	orderdomain "github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	shipmentapp "github.com/dmehra2102/commerce-backoffice/internal/shipment/application"
	shipmentdomain "github.com/dmehra2102/commerce-backoffice/internal/shipment/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

type ShipmentRepository struct{ db *DB }

func NewShipmentRepository(db *DB) *ShipmentRepository { return &ShipmentRepository{db: db} }

const shipmentColumns = `id, order_id, carrier_id, tracking_number, status, shipped_at, delivered_at,
	failure_reason, created_at, updated_at`

func scanShipment(row pgx.Row) (shipmentdomain.Shipment, error) {
	var sh shipmentdomain.Shipment
	err := row.Scan(&sh.ID, &sh.OrderID, &sh.CarrierID, &sh.TrackingNumber, &sh.Status, &sh.ShippedAt,
		&sh.DeliveredAt, &sh.FailureReason, &sh.CreatedAt, &sh.UpdatedAt)
	return sh, translate(err, "shipment")
}

func (r *ShipmentRepository) Order(ctx context.Context, orderID int64) (shipmentapp.OrderView, error) {
	return r.order(ctx, `SELECT id, status, fulfillment_status FROM orders WHERE id=$1`, orderID)
}

func (r *ShipmentRepository) LockOrder(ctx context.Context, orderID int64) (shipmentapp.OrderView, error) {
	return r.order(ctx, r.db.forUpdate(ctx, `SELECT id, status, fulfillment_status FROM orders WHERE id=$1`), orderID)
}

func (r *ShipmentRepository) order(ctx context.Context, sql string, orderID int64) (shipmentapp.OrderView, error) {
	var o shipmentapp.OrderView
	if err := r.db.q(ctx).QueryRow(ctx, sql, orderID).Scan(&o.ID, &o.Status, &o.FulfillmentStatus); err != nil {
		return o, translate(err, "order")
	}
	items, err := orderItems(ctx, r.db, orderID, false)
	if err != nil {
		return o, err
	}
	o.Items = items
	return o, nil
}

func (r *ShipmentRepository) SetFulfillment(ctx context.Context, orderID int64, status orderdomain.FulfillmentStatus) error {
	return r.db.exec(ctx, "order", `UPDATE orders SET fulfillment_status=$2, updated_at=now() WHERE id=$1`, orderID, status)
}

// Create relies on the (carrier_id, tracking_number) unique key, which only
// bites when both are set.
func (r *ShipmentRepository) Create(ctx context.Context, sh *shipmentdomain.Shipment) error {
	err := r.db.q(ctx).QueryRow(ctx, `
		INSERT INTO shipments (order_id, carrier_id, tracking_number, status, shipped_at, delivered_at,
			failure_reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT DO NOTHING
		RETURNING id`,
		sh.OrderID, sh.CarrierID, sh.TrackingNumber, sh.Status, sh.ShippedAt, sh.DeliveredAt, sh.FailureReason,
		sh.CreatedAt, sh.UpdatedAt,
	).Scan(&sh.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Duplicate("tracking number")
	}
	return translate(err, "shipment")
}

func (r *ShipmentRepository) Get(ctx context.Context, id int64) (shipmentdomain.Shipment, error) {
	sh, err := scanShipment(r.db.q(ctx).QueryRow(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id=$1`, id))
	if err != nil {
		return sh, err
	}
	return r.withItems(ctx, sh)
}

func (r *ShipmentRepository) Lock(ctx context.Context, id int64) (shipmentdomain.Shipment, error) {
	sh, err := scanShipment(r.db.q(ctx).QueryRow(ctx, r.db.forUpdate(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id=$1`), id))
	if err != nil {
		return sh, err
	}
	return r.withItems(ctx, sh)
}

func (r *ShipmentRepository) ListByOrder(ctx context.Context, orderID int64) ([]shipmentdomain.Shipment, error) {
	rows, err := r.db.q(ctx).Query(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, translate(err, "shipments")
	}
	shipments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shipmentdomain.Shipment, error) { return scanShipment(row) })
	if err != nil {
		return nil, err
	}
	for i := range shipments {
		if shipments[i], err = r.withItems(ctx, shipments[i]); err != nil {
			return nil, err
		}
	}
	return shipments, nil
}

// withItems loads the shipment lines with the ordered product's name and sku.
func (r *ShipmentRepository) withItems(ctx context.Context, sh shipmentdomain.Shipment) (shipmentdomain.Shipment, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT si.id, si.shipment_id, si.order_item_id, si.qty, oi.name, oi.sku, si.created_at, si.updated_at
		FROM shipment_items si JOIN order_items oi ON oi.id = si.order_item_id
		WHERE si.shipment_id=$1 ORDER BY si.id`, sh.ID)
	if err != nil {
		return shipmentdomain.Shipment{}, translate(err, "shipment items")
	}
	sh.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (shipmentdomain.Item, error) {
		var it shipmentdomain.Item
		err := row.Scan(&it.ID, &it.ShipmentID, &it.OrderItemID, &it.Qty, &it.ProductName, &it.SKU, &it.CreatedAt, &it.UpdatedAt)
		return it, err
	})
	return sh, translate(err, "shipment items")
}

func (r *ShipmentRepository) Save(ctx context.Context, sh shipmentdomain.Shipment) error {
	return r.db.exec(ctx, "shipment", `
		UPDATE shipments SET carrier_id=$2, tracking_number=$3, status=$4, shipped_at=$5, delivered_at=$6,
			failure_reason=$7, updated_at=$8
		WHERE id=$1`,
		sh.ID, sh.CarrierID, sh.TrackingNumber, sh.Status, sh.ShippedAt, sh.DeliveredAt, sh.FailureReason, sh.UpdatedAt)
}

func (r *ShipmentRepository) InsertItem(ctx context.Context, it *shipmentdomain.Item) error {
	err := r.db.q(ctx).QueryRow(ctx, `
		INSERT INTO shipment_items (shipment_id, order_item_id, qty, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (shipment_id, order_item_id) DO NOTHING
		RETURNING id`,
		it.ShipmentID, it.OrderItemID, it.Qty, it.CreatedAt, it.UpdatedAt,
	).Scan(&it.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Duplicate("shipment item")
	}
	return translate(err, "shipment item")
}

func (r *ShipmentRepository) UpdateItem(ctx context.Context, it shipmentdomain.Item) error {
	return r.db.exec(ctx, "shipment item", `UPDATE shipment_items SET qty=$2, updated_at=$3 WHERE id=$1`,
		it.ID, it.Qty, it.UpdatedAt)
}

func (r *ShipmentRepository) DeleteItem(ctx context.Context, shipmentID, itemID int64) error {
	return r.db.exec(ctx, "shipment item", `DELETE FROM shipment_items WHERE id=$1 AND shipment_id=$2`, itemID, shipmentID)
}

func (r *ShipmentRepository) ShippedQty(ctx context.Context, orderItemID, excludeID int64) (int, error) {
	var n int
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(si.qty), 0)
		FROM shipment_items si JOIN shipments s ON s.id = si.shipment_id
		WHERE si.order_item_id=$1 AND si.id <> $2 AND s.status <> $3`,
		orderItemID, excludeID, shipmentdomain.StatusReturned).Scan(&n)
	return n, translate(err, "shipment items")
}

func (r *ShipmentRepository) CountableShippedQty(ctx context.Context, orderID int64) (int, error) {
	var n int
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(si.qty), 0)
		FROM shipment_items si JOIN shipments s ON s.id = si.shipment_id
		WHERE s.order_id=$1 AND s.status IN ($2, $3, $4)`,
		orderID, shipmentdomain.StatusInTransit, shipmentdomain.StatusOutForDelivery, shipmentdomain.StatusDelivered).Scan(&n)
	return n, translate(err, "shipment items")
}

func (r *ShipmentRepository) InsertEvent(ctx context.Context, e *shipmentdomain.Event) error {
	err := r.db.q(ctx).QueryRow(ctx, `
		INSERT INTO shipment_events (shipment_id, code, description, location, happened_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		e.ShipmentID, e.Code, e.Description, e.Location, e.HappenedAt, e.CreatedAt).Scan(&e.ID)
	return translate(err, "shipment event")
}

func (r *ShipmentRepository) Events(ctx context.Context, shipmentID int64) ([]shipmentdomain.Event, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT id, shipment_id, code, description, location, happened_at, created_at FROM shipment_events
		WHERE shipment_id=$1 ORDER BY happened_at, id`, shipmentID)
	if err != nil {
		return nil, translate(err, "shipment events")
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shipmentdomain.Event, error) {
		var e shipmentdomain.Event
		err := row.Scan(&e.ID, &e.ShipmentID, &e.Code, &e.Description, &e.Location, &e.HappenedAt, &e.CreatedAt)
		return e, err
	})
	return events, translate(err, "shipment events")
}
