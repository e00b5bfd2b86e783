package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopcart/internal/domain/coupon"
)

const couponColumns = `id, shop_id, code, description, discount_type, discount_value,
		min_order_amount, max_discount_amount, start_date, end_date, is_active, usage_limit, used_count`

const (
	findValidCouponSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE shop_id = $1 AND code = $2 AND is_active
		AND start_date <= $3 AND end_date >= $3`

	getCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE shop_id = $1 AND id = $2`

	incrementCouponUsageSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`

	upsertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (shop_id, code) DO UPDATE SET
			description = EXCLUDED.description, discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value, min_order_amount = EXCLUDED.min_order_amount,
			max_discount_amount = EXCLUDED.max_discount_amount, start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date, is_active = EXCLUDED.is_active,
			usage_limit = EXCLUDED.usage_limit`

	insertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (shop_id, code) DO NOTHING`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL. Codes
// are stored normalized so lookups compare them directly.
type CouponRepository struct {
	q querier
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{q: pool}
}

// FindValid returns the active coupon of the shop whose window contains now.
func (r *CouponRepository) FindValid(ctx context.Context, shopID, code string, now time.Time) (*coupon.Coupon, error) {
	return r.one(ctx, findValidCouponSQL, shopID, coupon.NormalizeCode(code), now)
}

// GetByID returns a coupon regardless of its state.
func (r *CouponRepository) GetByID(ctx context.Context, shopID, id string) (*coupon.Coupon, error) {
	return r.one(ctx, getCouponSQL, shopID, id)
}

func (r *CouponRepository) one(ctx context.Context, sql string, args ...any) (*coupon.Coupon, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, conflictOr(err, "get coupon")
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, conflictOr(err, "get coupon")
	}
	return &c, nil
}

// IncrementUsage adds one use while the usage limit allows it.
func (r *CouponRepository) IncrementUsage(ctx context.Context, id string) (bool, error) {
	tag, err := r.q.Exec(ctx, incrementCouponUsageSQL, id)
	if err != nil {
		return false, conflictOr(err, "increment coupon usage")
	}
	return tag.RowsAffected() == 1, nil
}

// Upsert inserts a coupon or updates the one with the same shop and code.
// The usage counter of an existing coupon is kept.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	if _, err := r.q.Exec(ctx, upsertCouponSQL, couponArgs(c)...); err != nil {
		return errors.Wrapf(err, "upsert coupon %q", c.Code)
	}
	return nil
}

// InsertBatch inserts coupons in one round trip, skipping codes the shop
// already has, and returns how many rows were written.
func (r *CouponRepository) InsertBatch(ctx context.Context, coupons []coupon.Coupon) (int, error) {
	b := &pgx.Batch{}
	for i := range coupons {
		b.Queue(insertCouponSQL, couponArgs(&coupons[i])...)
	}

	br := r.q.SendBatch(ctx, b)
	defer func() { _ = br.Close() }()

	var inserted int
	for i := range coupons {
		tag, err := br.Exec()
		if err != nil {
			return inserted, errors.Wrapf(err, "insert coupon %q", coupons[i].Code)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, br.Close()
}

func couponArgs(c *coupon.Coupon) []any {
	return []any{
		c.ID, c.ShopID, coupon.NormalizeCode(c.Code), c.Description, string(c.DiscountType), c.DiscountValue,
		c.MinOrderAmount, c.MaxDiscountAmount, c.StartDate, c.EndDate, c.IsActive, c.UsageLimit, c.UsedCount,
	}
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		maxDiscount  *decimal.Decimal
		usageLimit   *int32
	)
	err := row.Scan(
		&c.ID, &c.ShopID, &c.Code, &c.Description, &discountType, &c.DiscountValue,
		&c.MinOrderAmount, &maxDiscount, &c.StartDate, &c.EndDate, &c.IsActive, &usageLimit, &c.UsedCount,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	c.MaxDiscountAmount = maxDiscount
	if usageLimit != nil {
		n := int(*usageLimit)
		c.UsageLimit = &n
	}
	return c, err
}
