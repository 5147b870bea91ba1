package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	invoiceapp "github.com/dmehra2102/commerce-backoffice/internal/invoice/application"
	invoicedomain "github.com/dmehra2102/commerce-backoffice/internal/invoice/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

type InvoiceRepository struct{ db *DB }

func NewInvoiceRepository(db *DB) *InvoiceRepository { return &InvoiceRepository{db: db} }

const invoiceColumns = `id, order_id, invoice_no, status, currency, subtotal, discount_total, tax_total,
	shipping_total, grand_total, notes, due_at, issued_at, paid_at, created_at, updated_at`

const invoiceItemColumns = `id, invoice_id, order_item_id, product_name, unit_price, qty, discount_amount,
	tax_amount, line_total, created_at, updated_at`

func scanInvoice(row pgx.Row) (invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := row.Scan(&inv.ID, &inv.OrderID, &inv.Number, &inv.Status, &inv.Currency, &inv.Subtotal,
		&inv.DiscountTotal, &inv.TaxTotal, &inv.ShippingTotal, &inv.GrandTotal, &inv.Notes, &inv.DueAt,
		&inv.IssuedAt, &inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt)
	return inv, translate(err, "invoice")
}

func scanInvoiceItem(row pgx.Row) (invoicedomain.Item, error) {
	var it invoicedomain.Item
	err := row.Scan(&it.ID, &it.InvoiceID, &it.OrderItemID, &it.ProductName, &it.UnitPrice, &it.Qty,
		&it.DiscountAmount, &it.TaxAmount, &it.LineTotal, &it.CreatedAt, &it.UpdatedAt)
	return it, translate(err, "invoice item")
}

func (r *InvoiceRepository) Order(ctx context.Context, orderID int64) (invoiceapp.OrderView, error) {
	return r.order(ctx, orderID, false)
}

// LockOrder locks the order row and its items.
func (r *InvoiceRepository) LockOrder(ctx context.Context, orderID int64) (invoiceapp.OrderView, error) {
	return r.order(ctx, orderID, true)
}

func (r *InvoiceRepository) order(ctx context.Context, orderID int64, lock bool) (invoiceapp.OrderView, error) {
	sql := `SELECT id, currency FROM orders WHERE id=$1`
	if lock {
		sql = r.db.forUpdate(ctx, sql)
	}
	var o invoiceapp.OrderView
	if err := r.db.q(ctx).QueryRow(ctx, sql, orderID).Scan(&o.ID, &o.Currency); err != nil {
		return o, translate(err, "order")
	}
	items, err := orderItems(ctx, r.db, orderID, lock)
	if err != nil {
		return o, err
	}
	o.Items = items
	return o, nil
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *invoicedomain.Invoice) error {
	err := r.db.q(ctx).QueryRow(ctx, `
		INSERT INTO invoices (order_id, invoice_no, status, currency, subtotal, discount_total, tax_total,
			shipping_total, grand_total, notes, due_at, issued_at, paid_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (invoice_no) DO NOTHING
		RETURNING id`,
		inv.OrderID, inv.Number, inv.Status, inv.Currency, inv.Subtotal, inv.DiscountTotal, inv.TaxTotal,
		inv.ShippingTotal, inv.GrandTotal, inv.Notes, inv.DueAt, inv.IssuedAt, inv.PaidAt, inv.CreatedAt, inv.UpdatedAt,
	).Scan(&inv.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Duplicate("invoice number")
	}
	return translate(err, "invoice")
}

func (r *InvoiceRepository) Get(ctx context.Context, id int64) (invoicedomain.Invoice, error) {
	inv, err := scanInvoice(r.db.q(ctx).QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id))
	if err != nil {
		return inv, err
	}
	return r.withItems(ctx, inv)
}

func (r *InvoiceRepository) Lock(ctx context.Context, id int64) (invoicedomain.Invoice, error) {
	inv, err := scanInvoice(r.db.q(ctx).QueryRow(ctx, r.db.forUpdate(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`), id))
	if err != nil {
		return inv, err
	}
	return r.withItems(ctx, inv)
}

func (r *InvoiceRepository) ListByOrder(ctx context.Context, orderID int64) ([]invoicedomain.Invoice, error) {
	rows, err := r.db.q(ctx).Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, translate(err, "invoices")
	}
	invoices, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (invoicedomain.Invoice, error) { return scanInvoice(row) })
	if err != nil {
		return nil, err
	}
	for i := range invoices {
		if invoices[i], err = r.withItems(ctx, invoices[i]); err != nil {
			return nil, err
		}
	}
	return invoices, nil
}

func (r *InvoiceRepository) withItems(ctx context.Context, inv invoicedomain.Invoice) (invoicedomain.Invoice, error) {
	rows, err := r.db.q(ctx).Query(ctx, `SELECT `+invoiceItemColumns+` FROM invoice_items WHERE invoice_id=$1 ORDER BY id`, inv.ID)
	if err != nil {
		return invoicedomain.Invoice{}, translate(err, "invoice items")
	}
	inv.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (invoicedomain.Item, error) { return scanInvoiceItem(row) })
	return inv, err
}

func (r *InvoiceRepository) Save(ctx context.Context, inv invoicedomain.Invoice) error {
	return r.db.exec(ctx, "invoice", `
		UPDATE invoices SET status=$2, subtotal=$3, discount_total=$4, tax_total=$5, shipping_total=$6,
			grand_total=$7, notes=$8, due_at=$9, issued_at=$10, paid_at=$11, updated_at=$12
		WHERE id=$1`,
		inv.ID, inv.Status, inv.Subtotal, inv.DiscountTotal, inv.TaxTotal, inv.ShippingTotal, inv.GrandTotal,
		inv.Notes, inv.DueAt, inv.IssuedAt, inv.PaidAt, inv.UpdatedAt)
}

func (r *InvoiceRepository) InsertItem(ctx context.Context, it *invoicedomain.Item) error {
	err := r.db.q(ctx).QueryRow(ctx, `
		INSERT INTO invoice_items (invoice_id, order_item_id, product_name, unit_price, qty, discount_amount,
			tax_amount, line_total, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (invoice_id, order_item_id) DO NOTHING
		RETURNING id`,
		it.InvoiceID, it.OrderItemID, it.ProductName, it.UnitPrice, it.Qty, it.DiscountAmount, it.TaxAmount,
		it.LineTotal, it.CreatedAt, it.UpdatedAt,
	).Scan(&it.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Duplicate("invoice item")
	}
	return translate(err, "invoice item")
}

func (r *InvoiceRepository) UpdateItem(ctx context.Context, it invoicedomain.Item) error {
	return r.db.exec(ctx, "invoice item", `
		UPDATE invoice_items SET product_name=$2, unit_price=$3, qty=$4, discount_amount=$5, tax_amount=$6,
			line_total=$7, updated_at=$8
		WHERE id=$1`,
		it.ID, it.ProductName, it.UnitPrice, it.Qty, it.DiscountAmount, it.TaxAmount, it.LineTotal, it.UpdatedAt)
}

func (r *InvoiceRepository) InvoicedQty(ctx context.Context, orderItemID, excludeID int64) (int, error) {
	var n int
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(qty), 0) FROM invoice_items WHERE order_item_id=$1 AND id <> $2`,
		orderItemID, excludeID).Scan(&n)
	return n, translate(err, "invoice items")
}

func (r *InvoiceRepository) PaymentInvoice(ctx context.Context, paymentID int64) (*int64, error) {
	var id *int64
	err := r.db.q(ctx).QueryRow(ctx, `SELECT invoice_id FROM payments WHERE id=$1`, paymentID).Scan(&id)
	return id, translate(err, "payment")
}

func (r *InvoiceRepository) LinkPayment(ctx context.Context, paymentID, invoiceID int64) error {
	return r.db.exec(ctx, "payment", `UPDATE payments SET invoice_id=$2, updated_at=now() WHERE id=$1`, paymentID, invoiceID)
}
