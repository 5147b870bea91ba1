package memory

import (
	"cmp"
	"context"
	"slices"

	inventorydomain "github.com/dmehra2102/commerce-backoffice/internal/inventory/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

type InventoryRepository struct{ s *Store }

func NewInventoryRepository(s *Store) *InventoryRepository { return &InventoryRepository{s: s} }

func (r *InventoryRepository) InsertMovement(ctx context.Context, m *inventorydomain.Movement) error {
	return r.s.write(ctx, "inventory.insert_movement", func(t *tables) error {
		m.ID = t.next("inventory_movements")
		t.movements[m.ID] = *m
		return nil
	})
}

func (r *InventoryRepository) SumChange(ctx context.Context, ref inventorydomain.Reference, productID int64, variantID *int64, reason inventorydomain.Reason) (int, error) {
	sum := 0
	err := r.s.read(ctx, func(t *tables) error {
		for _, m := range t.movements {
			if m.Reason == reason && m.ProductID == productID && sameVariant(m.VariantID, variantID) &&
				m.Ref != nil && *m.Ref == ref {
				sum += m.Change
			}
		}
		return nil
	})
	return sum, err
}

func (r *InventoryRepository) ListMovements(ctx context.Context, f inventorydomain.MovementFilter) ([]inventorydomain.Movement, error) {
	var out []inventorydomain.Movement
	err := r.s.read(ctx, func(t *tables) error {
		for _, m := range t.movements {
			if f.ProductID != nil && m.ProductID != *f.ProductID {
				continue
			}
			if f.VariantID != nil && (m.VariantID == nil || *m.VariantID != *f.VariantID) {
				continue
			}
			if f.Reason != "" && m.Reason != f.Reason {
				continue
			}
			if f.Ref != nil && (m.Ref == nil || *m.Ref != *f.Ref) {
				continue
			}
			out = append(out, m)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b inventorydomain.Movement) int { return cmp.Compare(b.ID, a.ID) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, err
}

func (r *InventoryRepository) OrderLines(ctx context.Context, orderID int64) ([]inventorydomain.Line, error) {
	var out []inventorydomain.Line
	err := r.s.read(ctx, func(t *tables) error {
		if _, ok := t.orders[orderID]; !ok {
			return apperr.NotFound("order")
		}
		for _, it := range orderItems(t, orderID) {
			out = append(out, inventorydomain.Line{ProductID: it.ProductID, VariantID: it.VariantID, Qty: it.Qty})
		}
		return nil
	})
	return out, err
}

func (r *InventoryRepository) LockVariant(ctx context.Context, variantID int64) (inventorydomain.VariantStock, error) {
	var out inventorydomain.VariantStock
	err := r.s.read(ctx, func(t *tables) error {
		v, ok := t.variants[variantID]
		if !ok {
			return apperr.NotFound("variant")
		}
		out = inventorydomain.VariantStock{VariantID: v.ID, ProductID: v.ProductID, Stock: v.Stock}
		return nil
	})
	return out, err
}

func (r *InventoryRepository) SetVariantStock(ctx context.Context, variantID int64, stock int) error {
	return r.s.write(ctx, "inventory.set_variant_stock", func(t *tables) error {
		v, ok := t.variants[variantID]
		if !ok {
			return apperr.NotFound("variant")
		}
		v.Stock = stock
		t.variants[variantID] = v
		return nil
	})
}

func (r *InventoryRepository) OnHand(ctx context.Context, productID int64, variantID *int64) (int, error) {
	n := 0
	err := r.s.read(ctx, func(t *tables) error {
		if variantID != nil {
			v, ok := t.variants[*variantID]
			if !ok || v.ProductID != productID {
				return apperr.NotFound("variant")
			}
			n = v.Stock
			return nil
		}
		p, ok := t.products[productID]
		if !ok {
			return apperr.NotFound("product")
		}
		n = p.Stock
		return nil
	})
	return n, err
}

func (r *InventoryRepository) ReservationBalance(ctx context.Context, productID int64, variantID *int64) (int, error) {
	sum := 0
	err := r.s.read(ctx, func(t *tables) error {
		for _, m := range t.movements {
			if m.ProductID != productID || !sameVariant(m.VariantID, variantID) {
				continue
			}
			if m.Reason == inventorydomain.ReasonOrderReserved || m.Reason == inventorydomain.ReasonOrderCancelled {
				sum += m.Change
			}
		}
		return nil
	})
	return sum, err
}
