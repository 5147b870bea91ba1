package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	orderdomain "github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

type OrderRepository struct{ db *DB }

func NewOrderRepository(db *DB) *OrderRepository { return &OrderRepository{db: db} }

const orderColumns = `id, number, user_id, cart_id, status, payment_status, fulfillment_status, payment_provider,
	currency, subtotal, discount_total, shipping_total, tax_total, grand_total, coupon_id, coupon, created_at, updated_at`

const orderItemColumns = `id, order_id, product_id, variant_id, sku, name, price, qty, line_subtotal,
	line_discount, line_total`

const addressColumns = `id, order_id, type, first_name, last_name, company, country, state, city, zip,
	address1, address2, phone, email`

func scanOrder(row pgx.Row) (orderdomain.Order, error) {
	var o orderdomain.Order
	err := row.Scan(&o.ID, &o.Number, &o.UserID, &o.CartID, &o.Status, &o.PaymentStatus, &o.FulfillmentStatus,
		&o.PaymentProvider, &o.Currency, &o.Subtotal, &o.DiscountTotal, &o.ShippingTotal, &o.TaxTotal,
		&o.GrandTotal, &o.CouponID, &o.Coupon, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// orderItems loads an order's lines; lock adds FOR UPDATE inside a
// transaction.
func orderItems(ctx context.Context, db *DB, orderID int64, lock bool) ([]orderdomain.Item, error) {
	sql := `SELECT ` + orderItemColumns + ` FROM order_items WHERE order_id=$1 ORDER BY id`
	if lock {
		sql = db.forUpdate(ctx, sql)
	}
	rows, err := db.q(ctx).Query(ctx, sql, orderID)
	if err != nil {
		return nil, translate(err, "order items")
	}
	defer rows.Close()

	var items []orderdomain.Item
	for rows.Next() {
		var it orderdomain.Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.SKU, &it.Name, &it.Price,
			&it.Qty, &it.LineSubtotal, &it.LineDiscount, &it.LineTotal); err != nil {
			return nil, translate(err, "order items")
		}
		items = append(items, it)
	}
	return items, translate(rows.Err(), "order items")
}

// Create uses ON CONFLICT so a number collision leaves the transaction usable
// for a retry with a fresh number.
func (r *OrderRepository) Create(ctx context.Context, o *orderdomain.Order) error {
	err := r.db.q(ctx).QueryRow(ctx, `
		INSERT INTO orders (number, user_id, cart_id, status, payment_status, fulfillment_status, payment_provider,
			currency, subtotal, discount_total, shipping_total, tax_total, grand_total, coupon_id, coupon,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (number) DO NOTHING
		RETURNING id`,
		o.Number, o.UserID, o.CartID, o.Status, o.PaymentStatus, o.FulfillmentStatus, o.PaymentProvider,
		o.Currency, o.Subtotal, o.DiscountTotal, o.ShippingTotal, o.TaxTotal, o.GrandTotal, o.CouponID, o.Coupon,
		o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Duplicate("order number")
	}
	return translate(err, "order")
}

func (r *OrderRepository) InsertItems(ctx context.Context, items []orderdomain.Item) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, variant_id, sku, name, price, qty, line_subtotal,
				line_discount, line_total)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			RETURNING id`,
			it.OrderID, it.ProductID, it.VariantID, it.SKU, it.Name, it.Price, it.Qty, it.LineSubtotal,
			it.LineDiscount, it.LineTotal)
	}
	results := r.db.q(ctx).SendBatch(ctx, batch)
	for i := range items {
		if err := results.QueryRow().Scan(&items[i].ID); err != nil {
			_ = results.Close()
			return translate(err, "order item")
		}
	}
	return translate(results.Close(), "order items")
}

func (r *OrderRepository) UpsertAddress(ctx context.Context, a *orderdomain.Address) error {
	err := r.db.q(ctx).QueryRow(ctx, `
		INSERT INTO order_addresses (order_id, type, first_name, last_name, company, country, state, city, zip,
			address1, address2, phone, email)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (order_id, type) DO UPDATE SET first_name=EXCLUDED.first_name, last_name=EXCLUDED.last_name,
			company=EXCLUDED.company, country=EXCLUDED.country, state=EXCLUDED.state, city=EXCLUDED.city,
			zip=EXCLUDED.zip, address1=EXCLUDED.address1, address2=EXCLUDED.address2, phone=EXCLUDED.phone,
			email=EXCLUDED.email
		RETURNING id`,
		a.OrderID, a.Type, a.FirstName, a.LastName, a.Company, a.Country, a.State, a.City, a.Zip,
		a.Address1, a.Address2, a.Phone, a.Email,
	).Scan(&a.ID)
	return translate(err, "order address")
}

func (r *OrderRepository) Update(ctx context.Context, o orderdomain.Order) error {
	tag, err := r.db.q(ctx).Exec(ctx, `
		UPDATE orders SET status=$2, payment_status=$3, fulfillment_status=$4, payment_provider=$5, subtotal=$6,
			discount_total=$7, shipping_total=$8, tax_total=$9, grand_total=$10, coupon_id=$11, coupon=$12,
			updated_at=$13
		WHERE id=$1`,
		o.ID, o.Status, o.PaymentStatus, o.FulfillmentStatus, o.PaymentProvider, o.Subtotal, o.DiscountTotal,
		o.ShippingTotal, o.TaxTotal, o.GrandTotal, o.CouponID, o.Coupon, o.UpdatedAt)
	if err != nil {
		return translate(err, "order")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("order")
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id int64) (orderdomain.Order, error) {
	return r.load(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (r *OrderRepository) Lock(ctx context.Context, id int64) (orderdomain.Order, error) {
	return r.load(ctx, r.db.forUpdate(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`), id)
}

func (r *OrderRepository) load(ctx context.Context, sql string, id int64) (orderdomain.Order, error) {
	o, err := scanOrder(r.db.q(ctx).QueryRow(ctx, sql, id))
	if err != nil {
		return orderdomain.Order{}, translate(err, "order")
	}
	if o.Items, err = orderItems(ctx, r.db, o.ID, false); err != nil {
		return orderdomain.Order{}, err
	}

	rows, err := r.db.q(ctx).Query(ctx, `SELECT `+addressColumns+` FROM order_addresses WHERE order_id=$1 ORDER BY type`, o.ID)
	if err != nil {
		return orderdomain.Order{}, translate(err, "order addresses")
	}
	defer rows.Close()
	for rows.Next() {
		var a orderdomain.Address
		if err := rows.Scan(&a.ID, &a.OrderID, &a.Type, &a.FirstName, &a.LastName, &a.Company, &a.Country,
			&a.State, &a.City, &a.Zip, &a.Address1, &a.Address2, &a.Phone, &a.Email); err != nil {
			return orderdomain.Order{}, translate(err, "order addresses")
		}
		o.Addresses = append(o.Addresses, a)
	}
	return o, translate(rows.Err(), "order addresses")
}

func (r *OrderRepository) AppendStatusEvent(ctx context.Context, e *orderdomain.StatusEvent) error {
	err := r.db.q(ctx).QueryRow(ctx, `
		INSERT INTO order_status_events (order_id, status, note, actor_id, happened_at)
		VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		e.OrderID, e.Status, e.Note, e.ActorID, e.HappenedAt).Scan(&e.ID)
	return translate(err, "order status event")
}

func (r *OrderRepository) Timeline(ctx context.Context, orderID int64) ([]orderdomain.StatusEvent, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT id, order_id, status, note, actor_id, happened_at FROM order_status_events
		WHERE order_id=$1 ORDER BY happened_at, id`, orderID)
	if err != nil {
		return nil, translate(err, "order timeline")
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (orderdomain.StatusEvent, error) {
		var e orderdomain.StatusEvent
		err := row.Scan(&e.ID, &e.OrderID, &e.Status, &e.Note, &e.ActorID, &e.HappenedAt)
		return e, err
	})
	return events, translate(err, "order timeline")
}
