package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopcart/internal/domain/cart"
	"github.com/xenking/shopcart/internal/domain/txn"
)

const (
	findActiveCartSQL = `SELECT id, shop_id, session_id, user_id, items, coupon_id, discount_amount,
		status, version, created_at, updated_at
		FROM carts WHERE shop_id = $1 AND session_id = $2 AND status = 'active'`

	insertCartSQL = `INSERT INTO carts (id, shop_id, session_id, user_id, items, coupon_id,
		discount_amount, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)`

	updateCartSQL = `UPDATE carts SET user_id = $3, items = $4, coupon_id = $5, discount_amount = $6,
		status = $7, updated_at = $8, version = version + 1
		WHERE id = $1 AND version = $2`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. The
// version column is the compare-and-swap token; the partial unique index on
// active carts prevents two carts for one session.
type CartRepository struct {
	q querier
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{q: pool}
}

// FindActive returns the active cart of a session, or nil when there is none.
func (r *CartRepository) FindActive(ctx context.Context, shopID, sessionID string) (*cart.Cart, error) {
	rows, err := r.q.Query(ctx, findActiveCartSQL, shopID, sessionID)
	if err != nil {
		return nil, conflictOr(err, "find active cart")
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, conflictOr(err, "find active cart")
	}
	return &c, nil
}

// Save inserts or updates c and advances its version.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	items, err := json.Marshal(c.Items)
	if err != nil {
		return errors.Wrap(err, "marshal cart items")
	}

	if c.Version == 0 {
		_, err := r.q.Exec(ctx, insertCartSQL,
			c.ID, c.ShopID, c.SessionID, c.UserID, items, nullString(c.CouponID),
			c.DiscountAmount, string(c.Status), c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			if pgCode(err) == codeUniqueViolation {
				return errors.Wrap(txn.ErrConflict, "insert cart")
			}
			return conflictOr(err, "insert cart")
		}
		c.Version = 1
		return nil
	}

	tag, err := r.q.Exec(ctx, updateCartSQL,
		c.ID, c.Version, c.UserID, items, nullString(c.CouponID),
		c.DiscountAmount, string(c.Status), c.UpdatedAt,
	)
	if err != nil {
		return conflictOr(err, "update cart")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(txn.ErrConflict, "cart %q changed", c.ID)
	}
	c.Version++
	return nil
}

func scanCart(row pgx.CollectableRow) (cart.Cart, error) {
	var (
		c        cart.Cart
		items    []byte
		couponID *string
		status   string
	)
	if err := row.Scan(
		&c.ID, &c.ShopID, &c.SessionID, &c.UserID, &items, &couponID, &c.DiscountAmount,
		&status, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return c, err
	}
	if err := json.Unmarshal(items, &c.Items); err != nil {
		return c, errors.Wrap(err, "unmarshal cart items")
	}
	c.CouponID = fromNullString(couponID)
	c.Status = cart.Status(status)
	return c, nil
}
