package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopcart/internal/domain/payment"
)

const (
	getActivePaymentTypeSQL = `SELECT id, shop_id, name, description, is_active
		FROM payment_types WHERE shop_id = $1 AND id = $2 AND is_active`

	upsertPaymentTypeSQL = `INSERT INTO payment_types (id, shop_id, name, description, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description, is_active = EXCLUDED.is_active`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	q querier
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{q: pool}
}

// GetActive returns an enabled payment type of the shop.
func (r *PaymentRepository) GetActive(ctx context.Context, shopID, id string) (*payment.PaymentType, error) {
	rows, err := r.q.Query(ctx, getActivePaymentTypeSQL, shopID, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get payment type %q", id)
	}
	pt, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[payment.PaymentType])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get payment type %q", id)
	}
	return &pt, nil
}

// Upsert inserts or replaces a payment type.
func (r *PaymentRepository) Upsert(ctx context.Context, pt *payment.PaymentType) error {
	if _, err := r.q.Exec(ctx, upsertPaymentTypeSQL, pt.ID, pt.ShopID, pt.Name, pt.Description, pt.IsActive); err != nil {
		return errors.Wrapf(err, "upsert payment type %q", pt.ID)
	}
	return nil
}
