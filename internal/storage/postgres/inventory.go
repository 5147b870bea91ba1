package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	inventorydomain "github.com/dmehra2102/commerce-backoffice/internal/inventory/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

type InventoryRepository struct{ db *DB }

func NewInventoryRepository(db *DB) *InventoryRepository { return &InventoryRepository{db: db} }

func (r *InventoryRepository) InsertMovement(ctx context.Context, m *inventorydomain.Movement) error {
	var ref *string
	if m.Ref != nil {
		s := m.Ref.String()
		ref = &s
	}
	err := r.db.q(ctx).QueryRow(ctx, `
		INSERT INTO inventory_movements (product_id, variant_id, change, reason, reference, user_id, stock_before,
			stock_after, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		m.ProductID, m.VariantID, m.Change, m.Reason, ref, m.UserID, m.StockBefore, m.StockAfter, m.Note, m.CreatedAt,
	).Scan(&m.ID)
	return translate(err, "inventory movement")
}

func (r *InventoryRepository) SumChange(ctx context.Context, ref inventorydomain.Reference, productID int64, variantID *int64, reason inventorydomain.Reason) (int, error) {
	var sum int
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(change), 0) FROM inventory_movements
		WHERE reference=$1 AND reason=$2 AND product_id=$3 AND variant_id IS NOT DISTINCT FROM $4`,
		ref.String(), reason, productID, variantID).Scan(&sum)
	return sum, translate(err, "inventory movements")
}

func (r *InventoryRepository) ListMovements(ctx context.Context, f inventorydomain.MovementFilter) ([]inventorydomain.Movement, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ProductID != nil {
		add("product_id=$%d", *f.ProductID)
	}
	if f.VariantID != nil {
		add("variant_id=$%d", *f.VariantID)
	}
	if f.Reason != "" {
		add("reason=$%d", f.Reason)
	}
	if f.Ref != nil {
		add("reference=$%d", f.Ref.String())
	}

	sql := `SELECT id, product_id, variant_id, change, reason, reference, user_id, stock_before, stock_after, note,
		created_at FROM inventory_movements`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, translate(err, "inventory movements")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventorydomain.Movement, error) {
		var (
			m   inventorydomain.Movement
			ref *string
		)
		if err := row.Scan(&m.ID, &m.ProductID, &m.VariantID, &m.Change, &m.Reason, &ref, &m.UserID,
			&m.StockBefore, &m.StockAfter, &m.Note, &m.CreatedAt); err != nil {
			return m, err
		}
		if ref != nil {
			parsed, err := inventorydomain.ParseReference(*ref)
			if err != nil {
				return m, err
			}
			m.Ref = &parsed
		}
		return m, nil
	})
	return out, translate(err, "inventory movements")
}

func (r *InventoryRepository) OrderLines(ctx context.Context, orderID int64) ([]inventorydomain.Line, error) {
	var exists bool
	if err := r.db.q(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, orderID).Scan(&exists); err != nil {
		return nil, translate(err, "order")
	}
	if !exists {
		return nil, apperr.NotFound("order")
	}
	items, err := orderItems(ctx, r.db, orderID, false)
	if err != nil {
		return nil, err
	}
	lines := make([]inventorydomain.Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, inventorydomain.Line{ProductID: it.ProductID, VariantID: it.VariantID, Qty: it.Qty})
	}
	return lines, nil
}

func (r *InventoryRepository) LockVariant(ctx context.Context, variantID int64) (inventorydomain.VariantStock, error) {
	var v inventorydomain.VariantStock
	err := r.db.q(ctx).QueryRow(ctx, r.db.forUpdate(ctx, `SELECT id, product_id, stock FROM product_variants WHERE id=$1`), variantID).
		Scan(&v.VariantID, &v.ProductID, &v.Stock)
	return v, translate(err, "variant")
}

func (r *InventoryRepository) SetVariantStock(ctx context.Context, variantID int64, stock int) error {
	tag, err := r.db.q(ctx).Exec(ctx, `UPDATE product_variants SET stock=$2 WHERE id=$1`, variantID, stock)
	if err != nil {
		return translate(err, "variant")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("variant")
	}
	return nil
}

func (r *InventoryRepository) OnHand(ctx context.Context, productID int64, variantID *int64) (int, error) {
	var n int
	if variantID != nil {
		err := r.db.q(ctx).QueryRow(ctx, `SELECT stock FROM product_variants WHERE id=$1 AND product_id=$2`, *variantID, productID).Scan(&n)
		return n, translate(err, "variant")
	}
	err := r.db.q(ctx).QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&n)
	return n, translate(err, "product")
}

func (r *InventoryRepository) ReservationBalance(ctx context.Context, productID int64, variantID *int64) (int, error) {
	var sum int
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(change), 0) FROM inventory_movements
		WHERE product_id=$1 AND variant_id IS NOT DISTINCT FROM $2 AND reason IN ($3, $4)`,
		productID, variantID, inventorydomain.ReasonOrderReserved, inventorydomain.ReasonOrderCancelled).Scan(&sum)
	return sum, translate(err, "inventory movements")
}
