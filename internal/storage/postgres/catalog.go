package postgres

import (
	"context"

	cartdomain "github.com/dmehra2102/commerce-backoffice/internal/cart/domain"
)

type CatalogRepository struct{ db *DB }

func NewCatalogRepository(db *DB) *CatalogRepository { return &CatalogRepository{db: db} }

func (r *CatalogRepository) Product(ctx context.Context, id int64) (cartdomain.Product, error) {
	var p cartdomain.Product
	err := r.db.q(ctx).QueryRow(ctx, `SELECT id, name, sku, price, is_active FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.IsActive)
	return p, translate(err, "product")
}

func (r *CatalogRepository) Variant(ctx context.Context, id int64) (cartdomain.Variant, error) {
	var v cartdomain.Variant
	err := r.db.q(ctx).QueryRow(ctx, `SELECT id, product_id, sku, price, stock FROM product_variants WHERE id=$1`, id).
		Scan(&v.ID, &v.ProductID, &v.SKU, &v.Price, &v.Stock)
	return v, translate(err, "variant")
}

type SettingsRepository struct{ db *DB }

func NewSettingsRepository(db *DB) *SettingsRepository { return &SettingsRepository{db: db} }

func (r *SettingsRepository) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := r.db.q(ctx).QueryRow(ctx, `SELECT value FROM settings WHERE key=$1`, key).Scan(&v)
	return v, translate(err, "setting")
}

func (r *SettingsRepository) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, key, value)
	return translate(err, "setting")
}
