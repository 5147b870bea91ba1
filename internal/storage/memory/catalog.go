package memory

import (
	"context"

	"github.com/shopspring/decimal"

	cartdomain "github.com/dmehra2102/commerce-backoffice/internal/cart/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

// CatalogRepository serves products and variants; tests seed it directly.
type CatalogRepository struct{ s *Store }

func NewCatalogRepository(s *Store) *CatalogRepository { return &CatalogRepository{s: s} }

func (r *CatalogRepository) AddProduct(ctx context.Context, name, sku string, price decimal.Decimal, stock int) cartdomain.Product {
	var p cartdomain.Product
	_ = r.s.read(ctx, func(t *tables) error {
		p = cartdomain.Product{ID: t.next("products"), Name: name, SKU: sku, Price: price, IsActive: true}
		t.products[p.ID] = product{Product: p, Stock: stock}
		return nil
	})
	return p
}

func (r *CatalogRepository) AddVariant(ctx context.Context, productID int64, sku string, price *decimal.Decimal, stock int) cartdomain.Variant {
	var v cartdomain.Variant
	_ = r.s.read(ctx, func(t *tables) error {
		v = cartdomain.Variant{ID: t.next("variants"), ProductID: productID, Stock: stock}
		if sku != "" {
			v.SKU = &sku
		}
		if price != nil {
			v.Price = decimal.NewNullDecimal(*price)
		}
		t.variants[v.ID] = v
		return nil
	})
	return v
}

func (r *CatalogRepository) Product(ctx context.Context, id int64) (cartdomain.Product, error) {
	var p cartdomain.Product
	err := r.s.read(ctx, func(t *tables) error {
		row, ok := t.products[id]
		if !ok {
			return apperr.NotFound("product")
		}
		p = row.Product
		return nil
	})
	return p, err
}

func (r *CatalogRepository) Variant(ctx context.Context, id int64) (cartdomain.Variant, error) {
	var v cartdomain.Variant
	err := r.s.read(ctx, func(t *tables) error {
		row, ok := t.variants[id]
		if !ok {
			return apperr.NotFound("variant")
		}
		v = row
		return nil
	})
	return v, err
}

type SettingsRepository struct{ s *Store }

func NewSettingsRepository(s *Store) *SettingsRepository { return &SettingsRepository{s: s} }

func (r *SettingsRepository) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := r.s.read(ctx, func(t *tables) error {
		val, ok := t.settings[key]
		if !ok {
			return apperr.NotFound("setting")
		}
		v = val
		return nil
	})
	return v, err
}

func (r *SettingsRepository) SetSetting(ctx context.Context, key, value string) error {
	return r.s.write(ctx, "settings.set", func(t *tables) error {
		t.settings[key] = value
		return nil
	})
}
