package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopcart/internal/domain/order"
)

const orderColumns = `id, shop_id, session_id, user_id, items, billing, shipping, payment_id, payment_name,
		subtotal, discount, tax, shipping_cost, total, coupon_id, status, created_at, updated_at`

// orderFilterSQL is shared by the count and page queries of List.
const orderFilterSQL = ` FROM orders WHERE shop_id = $1
		AND ($2 = '' OR status = $2)
		AND ($3::timestamptz IS NULL OR created_at >= $3)
		AND ($4::timestamptz IS NULL OR created_at <= $4)`

const (
	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE shop_id = $1 AND id = $2`

	countOrdersSQL = `SELECT count(*)` + orderFilterSQL

	listOrdersSQL = `SELECT ` + orderColumns + orderFilterSQL + `
		ORDER BY created_at DESC, id
		LIMIT NULLIF($5::int, 0) OFFSET $6`

	updateOrderStatusSQL = `UPDATE orders SET status = $4, updated_at = $5
		WHERE shop_id = $1 AND id = $2 AND status = $3`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Line
// items and addresses are stored as JSONB snapshots.
type OrderRepository struct {
	q querier
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{q: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}
	billing, err := json.Marshal(o.Billing)
	if err != nil {
		return errors.Wrap(err, "marshal billing address")
	}
	shipping, err := json.Marshal(o.Shipping)
	if err != nil {
		return errors.Wrap(err, "marshal shipping address")
	}

	_, err = r.q.Exec(ctx, insertOrderSQL,
		o.ID, o.ShopID, o.SessionID, o.UserID, items, billing, shipping, o.PaymentID, o.PaymentName,
		o.Subtotal, o.Discount, o.Tax, o.ShippingCost, o.Total, nullString(o.CouponID), string(o.Status),
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return conflictOr(err, "create order")
	}
	return nil
}

// Delete removes an order.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.q.Exec(ctx, deleteOrderSQL, id); err != nil {
		return conflictOr(err, "delete order")
	}
	return nil
}

// GetByID returns an order of the shop.
func (r *OrderRepository) GetByID(ctx context.Context, shopID, id string) (*order.Order, error) {
	rows, err := r.q.Query(ctx, getOrderSQL, shopID, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return &o, nil
}

// List returns a page of orders newest first along with the number of
// orders matching the filter. Both queries go out in one batch.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, int, error) {
	args := []any{f.ShopID, string(f.Status), nullTime(f.From), nullTime(f.To)}

	b := &pgx.Batch{}
	b.Queue(countOrdersSQL, args...)
	b.Queue(listOrdersSQL, append(args, f.Limit, max(f.Offset(), 0))...)

	br := r.q.SendBatch(ctx, b)
	defer func() { _ = br.Close() }()

	var total int
	if err := br.QueryRow().Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}
	rows, err := br.Query()
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	return orders, total, nil
}

// UpdateStatus moves the order to next while its status is still from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, shopID, id string, from, next order.Status, now time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, updateOrderStatusSQL, shopID, id, string(from), string(next), now)
	if err != nil {
		return false, errors.Wrapf(err, "update order %q status", id)
	}
	return tag.RowsAffected() == 1, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                        order.Order
		items, billing, shipping []byte
		couponID                 *string
		status                   string
	)
	if err := row.Scan(
		&o.ID, &o.ShopID, &o.SessionID, &o.UserID, &items, &billing, &shipping, &o.PaymentID, &o.PaymentName,
		&o.Subtotal, &o.Discount, &o.Tax, &o.ShippingCost, &o.Total, &couponID, &status,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return o, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, errors.Wrap(err, "unmarshal order items")
	}
	if err := json.Unmarshal(billing, &o.Billing); err != nil {
		return o, errors.Wrap(err, "unmarshal billing address")
	}
	if err := json.Unmarshal(shipping, &o.Shipping); err != nil {
		return o, errors.Wrap(err, "unmarshal shipping address")
	}
	o.CouponID = fromNullString(couponID)
	o.Status = order.Status(status)
	return o, nil
}
