package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	cartdomain "github.com/dmehra2102/commerce-backoffice/internal/cart/domain"
)

type CartRepository struct{ db *DB }

func NewCartRepository(db *DB) *CartRepository { return &CartRepository{db: db} }

const cartColumns = `id, user_id, session_id, coupon_id, currency, status, item_count, subtotal, item_discount,
	coupon_discount, discount_total, shipping_total, tax_total, grand_total, expires_at, created_at, updated_at`

const cartItemColumns = `id, cart_id, product_id, variant_id, sku, name, price, qty, line_subtotal, line_discount,
	line_total, created_at, updated_at`

func scanCart(row pgx.Row) (cartdomain.Cart, error) {
	var c cartdomain.Cart
	err := row.Scan(&c.ID, &c.UserID, &c.SessionID, &c.CouponID, &c.Currency, &c.Status, &c.ItemCount,
		&c.Subtotal, &c.ItemDiscount, &c.CouponDiscount, &c.DiscountTotal, &c.ShippingTotal, &c.TaxTotal,
		&c.GrandTotal, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func scanCartItem(row pgx.Row) (cartdomain.Item, error) {
	var it cartdomain.Item
	err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.VariantID, &it.SKU, &it.Name, &it.Price, &it.Qty,
		&it.LineSubtotal, &it.LineDiscount, &it.LineTotal, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

func (r *CartRepository) FindActiveByUser(ctx context.Context, userID int64) (cartdomain.Cart, error) {
	return r.one(ctx, `SELECT `+cartColumns+` FROM carts WHERE user_id=$1 AND status='active' ORDER BY id DESC LIMIT 1`, userID)
}

func (r *CartRepository) FindActiveBySession(ctx context.Context, sessionID string) (cartdomain.Cart, error) {
	return r.one(ctx, `SELECT `+cartColumns+` FROM carts WHERE session_id=$1 AND status='active' ORDER BY id DESC LIMIT 1`, sessionID)
}

func (r *CartRepository) Get(ctx context.Context, id int64) (cartdomain.Cart, error) {
	return r.one(ctx, `SELECT `+cartColumns+` FROM carts WHERE id=$1`, id)
}

func (r *CartRepository) Lock(ctx context.Context, id int64) (cartdomain.Cart, error) {
	return r.one(ctx, r.db.forUpdate(ctx, `SELECT `+cartColumns+` FROM carts WHERE id=$1`), id)
}

func (r *CartRepository) one(ctx context.Context, sql string, args ...any) (cartdomain.Cart, error) {
	c, err := scanCart(r.db.q(ctx).QueryRow(ctx, sql, args...))
	if err != nil {
		return cartdomain.Cart{}, translate(err, "cart")
	}
	c.Items, err = r.items(ctx, c.ID)
	if err != nil {
		return cartdomain.Cart{}, err
	}
	return c, nil
}

func (r *CartRepository) items(ctx context.Context, cartID int64) ([]cartdomain.Item, error) {
	rows, err := r.db.q(ctx).Query(ctx, `SELECT `+cartItemColumns+` FROM cart_items WHERE cart_id=$1 ORDER BY id`, cartID)
	if err != nil {
		return nil, translate(err, "cart items")
	}
	defer rows.Close()

	var items []cartdomain.Item
	for rows.Next() {
		it, err := scanCartItem(rows)
		if err != nil {
			return nil, translate(err, "cart items")
		}
		items = append(items, it)
	}
	return items, translate(rows.Err(), "cart items")
}

func (r *CartRepository) Create(ctx context.Context, c *cartdomain.Cart) error {
	err := r.db.q(ctx).QueryRow(ctx, `
		INSERT INTO carts (user_id, session_id, coupon_id, currency, status, item_count, subtotal, item_discount,
			coupon_discount, discount_total, shipping_total, tax_total, grand_total, expires_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING id`,
		c.UserID, c.SessionID, c.CouponID, c.Currency, c.Status, c.ItemCount, c.Subtotal, c.ItemDiscount,
		c.CouponDiscount, c.DiscountTotal, c.ShippingTotal, c.TaxTotal, c.GrandTotal, c.ExpiresAt, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	return translate(err, "cart")
}

func (r *CartRepository) Save(ctx context.Context, c cartdomain.Cart) error {
	tag, err := r.db.q(ctx).Exec(ctx, `
		UPDATE carts SET user_id=$2, session_id=$3, coupon_id=$4, currency=$5, status=$6, item_count=$7, subtotal=$8,
			item_discount=$9, coupon_discount=$10, discount_total=$11, shipping_total=$12, tax_total=$13,
			grand_total=$14, expires_at=$15, updated_at=$16
		WHERE id=$1`,
		c.ID, c.UserID, c.SessionID, c.CouponID, c.Currency, c.Status, c.ItemCount, c.Subtotal, c.ItemDiscount,
		c.CouponDiscount, c.DiscountTotal, c.ShippingTotal, c.TaxTotal, c.GrandTotal, c.ExpiresAt, c.UpdatedAt)
	if err != nil {
		return translate(err, "cart")
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "cart")
	}
	return nil
}

func (r *CartRepository) LockItem(ctx context.Context, cartID, productID int64, variantID *int64) (cartdomain.Item, error) {
	it, err := scanCartItem(r.db.q(ctx).QueryRow(ctx, r.db.forUpdate(ctx, `
		SELECT `+cartItemColumns+` FROM cart_items
		WHERE cart_id=$1 AND product_id=$2 AND COALESCE(variant_id, 0)=COALESCE($3::bigint, 0)`),
		cartID, productID, variantID))
	return it, translate(err, "cart item")
}

// InsertItem upserts on the (cart, product, variant) index so a concurrent
// add of the same line adds quantities instead of failing.
func (r *CartRepository) InsertItem(ctx context.Context, it *cartdomain.Item) error {
	merged, err := scanCartItem(r.db.q(ctx).QueryRow(ctx, `
		INSERT INTO cart_items (cart_id, product_id, variant_id, sku, name, price, qty, line_subtotal, line_discount,
			line_total, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (cart_id, product_id, (COALESCE(variant_id, 0))) DO UPDATE
			SET qty = cart_items.qty + EXCLUDED.qty, price = EXCLUDED.price, name = EXCLUDED.name,
				sku = EXCLUDED.sku, updated_at = EXCLUDED.updated_at
		RETURNING `+cartItemColumns,
		it.CartID, it.ProductID, it.VariantID, it.SKU, it.Name, it.Price, it.Qty, it.LineSubtotal, it.LineDiscount,
		it.LineTotal, it.CreatedAt, it.UpdatedAt))
	if err != nil {
		return translate(err, "cart item")
	}
	if merged.Qty != it.Qty {
		merged.Recalculate()
		if err := r.UpdateItem(ctx, merged); err != nil {
			return err
		}
	}
	*it = merged
	return nil
}

func (r *CartRepository) UpdateItem(ctx context.Context, it cartdomain.Item) error {
	tag, err := r.db.q(ctx).Exec(ctx, `
		UPDATE cart_items SET sku=$2, name=$3, price=$4, qty=$5, line_subtotal=$6, line_discount=$7, line_total=$8,
			updated_at=$9
		WHERE id=$1`,
		it.ID, it.SKU, it.Name, it.Price, it.Qty, it.LineSubtotal, it.LineDiscount, it.LineTotal, it.UpdatedAt)
	if err != nil {
		return translate(err, "cart item")
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "cart item")
	}
	return nil
}

func (r *CartRepository) DeleteItem(ctx context.Context, cartID, itemID int64) error {
	tag, err := r.db.q(ctx).Exec(ctx, `DELETE FROM cart_items WHERE id=$1 AND cart_id=$2`, itemID, cartID)
	if err != nil {
		return translate(err, "cart item")
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "cart item")
	}
	return nil
}

func (r *CartRepository) DeleteItems(ctx context.Context, cartID int64) error {
	_, err := r.db.q(ctx).Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID)
	return translate(err, "cart items")
}

func (r *CartRepository) ExpiredActive(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT id FROM carts WHERE status='active' AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY id LIMIT $2`, now, limit)
	if err != nil {
		return nil, translate(err, "carts")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	return ids, translate(err, "carts")
}
