package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	cartdomain "github.com/dmehra2102/commerce-backoffice/internal/cart/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

type CartRepository struct{ s *Store }

func NewCartRepository(s *Store) *CartRepository { return &CartRepository{s: s} }

func (r *CartRepository) FindActiveByUser(ctx context.Context, userID int64) (cartdomain.Cart, error) {
	return r.find(ctx, func(c cartdomain.Cart) bool { return c.UserID != nil && *c.UserID == userID })
}

func (r *CartRepository) FindActiveBySession(ctx context.Context, sessionID string) (cartdomain.Cart, error) {
	return r.find(ctx, func(c cartdomain.Cart) bool { return c.SessionID != nil && *c.SessionID == sessionID })
}

func (r *CartRepository) find(ctx context.Context, match func(cartdomain.Cart) bool) (cartdomain.Cart, error) {
	var out cartdomain.Cart
	err := r.s.read(ctx, func(t *tables) error {
		var best *cartdomain.Cart
		for _, c := range t.carts {
			if c.Status != cartdomain.StatusActive || !match(c) {
				continue
			}
			if best == nil || c.ID > best.ID {
				cp := c
				best = &cp
			}
		}
		if best == nil {
			return apperr.NotFound("cart")
		}
		out = withCartItems(t, *best)
		return nil
	})
	return out, err
}

func (r *CartRepository) Get(ctx context.Context, id int64) (cartdomain.Cart, error) {
	var out cartdomain.Cart
	err := r.s.read(ctx, func(t *tables) error {
		c, ok := t.carts[id]
		if !ok {
			return apperr.NotFound("cart")
		}
		out = withCartItems(t, c)
		return nil
	})
	return out, err
}

func (r *CartRepository) Lock(ctx context.Context, id int64) (cartdomain.Cart, error) {
	return r.Get(ctx, id)
}

func (r *CartRepository) Create(ctx context.Context, c *cartdomain.Cart) error {
	return r.s.write(ctx, "cart.create", func(t *tables) error {
		c.ID = t.next("carts")
		row := *c
		row.Items = nil
		t.carts[c.ID] = row
		return nil
	})
}

func (r *CartRepository) Save(ctx context.Context, c cartdomain.Cart) error {
	return r.s.write(ctx, "cart.save", func(t *tables) error {
		if _, ok := t.carts[c.ID]; !ok {
			return apperr.NotFound("cart")
		}
		c.Items = nil
		t.carts[c.ID] = c
		return nil
	})
}

func (r *CartRepository) LockItem(ctx context.Context, cartID, productID int64, variantID *int64) (cartdomain.Item, error) {
	var out cartdomain.Item
	err := r.s.read(ctx, func(t *tables) error {
		for _, it := range t.cartItems {
			if it.CartID == cartID && it.Matches(productID, variantID) {
				out = it
				return nil
			}
		}
		return apperr.NotFound("cart item")
	})
	return out, err
}

func (r *CartRepository) InsertItem(ctx context.Context, it *cartdomain.Item) error {
	return r.s.write(ctx, "cart.insert_item", func(t *tables) error {
		for id, existing := range t.cartItems {
			if existing.CartID != it.CartID || !existing.Matches(it.ProductID, it.VariantID) {
				continue
			}
			existing.Qty += it.Qty
			existing.Price, existing.Name, existing.SKU = it.Price, it.Name, it.SKU
			existing.UpdatedAt = it.UpdatedAt
			existing.Recalculate()
			t.cartItems[id] = existing
			*it = existing
			return nil
		}
		it.ID = t.next("cart_items")
		t.cartItems[it.ID] = *it
		return nil
	})
}

func (r *CartRepository) UpdateItem(ctx context.Context, it cartdomain.Item) error {
	return r.s.write(ctx, "cart.update_item", func(t *tables) error {
		if _, ok := t.cartItems[it.ID]; !ok {
			return apperr.NotFound("cart item")
		}
		t.cartItems[it.ID] = it
		return nil
	})
}

func (r *CartRepository) DeleteItem(ctx context.Context, cartID, itemID int64) error {
	return r.s.write(ctx, "cart.delete_item", func(t *tables) error {
		it, ok := t.cartItems[itemID]
		if !ok || it.CartID != cartID {
			return apperr.NotFound("cart item")
		}
		delete(t.cartItems, itemID)
		return nil
	})
}

func (r *CartRepository) DeleteItems(ctx context.Context, cartID int64) error {
	return r.s.write(ctx, "cart.delete_items", func(t *tables) error {
		for id, it := range t.cartItems {
			if it.CartID == cartID {
				delete(t.cartItems, id)
			}
		}
		return nil
	})
}

func (r *CartRepository) ExpiredActive(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := r.s.read(ctx, func(t *tables) error {
		for _, c := range t.carts {
			if c.Status == cartdomain.StatusActive && c.IsExpired(now) {
				ids = append(ids, c.ID)
			}
		}
		return nil
	})
	slices.Sort(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, err
}

func withCartItems(t *tables, c cartdomain.Cart) cartdomain.Cart {
	c.Items = nil
	for _, it := range t.cartItems {
		if it.CartID == c.ID {
			c.Items = append(c.Items, it)
		}
	}
	slices.SortFunc(c.Items, func(a, b cartdomain.Item) int { return cmp.Compare(a.ID, b.ID) })
	return c
}
