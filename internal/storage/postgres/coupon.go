package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	coupondomain "github.com/dmehra2102/commerce-backoffice/internal/coupon/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
	"github.com/pkg/errors"
)

type CouponRepository struct{ db *DB }

func NewCouponRepository(db *DB) *CouponRepository { return &CouponRepository{db: db} }

const couponColumns = `id, code, type, value, max_discount, min_cart_total, min_items_count, max_uses,
	max_uses_per_user, start_at, end_at, is_active, created_at, updated_at`

func scanCoupon(row pgx.Row) (coupondomain.Coupon, error) {
	var c coupondomain.Coupon
	err := row.Scan(&c.ID, &c.Code, &c.Type, &c.Value, &c.MaxDiscount, &c.MinCartTotal, &c.MinItemsCount,
		&c.MaxUses, &c.MaxUsesPerUser, &c.StartAt, &c.EndAt, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, translate(err, "coupon")
}

func (r *CouponRepository) Create(ctx context.Context, c *coupondomain.Coupon) error {
	err := r.db.q(ctx).QueryRow(ctx, `
		INSERT INTO coupons (code, type, value, max_discount, min_cart_total, min_items_count, max_uses,
			max_uses_per_user, start_at, end_at, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (code) DO NOTHING
		RETURNING id`,
		c.Code, c.Type, c.Value, c.MaxDiscount, c.MinCartTotal, c.MinItemsCount, c.MaxUses, c.MaxUsesPerUser,
		c.StartAt, c.EndAt, c.IsActive, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Duplicate("coupon code")
	}
	return translate(err, "coupon")
}

func (r *CouponRepository) Get(ctx context.Context, id int64) (coupondomain.Coupon, error) {
	return scanCoupon(r.db.q(ctx).QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id=$1`, id))
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (coupondomain.Coupon, error) {
	return scanCoupon(r.db.q(ctx).QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code=$1`, code))
}

func (r *CouponRepository) Lock(ctx context.Context, id int64) (coupondomain.Coupon, error) {
	return scanCoupon(r.db.q(ctx).QueryRow(ctx, r.db.forUpdate(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id=$1`), id))
}

func (r *CouponRepository) CountOrderRedemptions(ctx context.Context, couponID int64, userID *int64) (int, error) {
	var n int
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT count(*) FROM coupon_redemptions
		WHERE coupon_id=$1 AND order_id IS NOT NULL AND ($2::bigint IS NULL OR user_id=$2)`,
		couponID, userID).Scan(&n)
	return n, translate(err, "coupon redemptions")
}

func (r *CouponRepository) InsertRedemption(ctx context.Context, red *coupondomain.Redemption) error {
	if err := red.Validate(); err != nil {
		return err
	}
	err := r.db.q(ctx).QueryRow(ctx, `
		INSERT INTO coupon_redemptions (coupon_id, user_id, cart_id, order_id, amount, used_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT DO NOTHING
		RETURNING id`,
		red.CouponID, red.UserID, red.CartID, red.OrderID, red.Amount, red.UsedAt, red.CreatedAt,
	).Scan(&red.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Duplicate("coupon redemption")
	}
	return translate(err, "coupon redemption")
}
