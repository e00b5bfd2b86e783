package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopcart/internal/domain/checkout"
	"github.com/xenking/shopcart/internal/domain/txn"
)

var _ checkout.Transactor = (*Transactor)(nil)

// Transactor runs checkout writes in one serializable transaction.
type Transactor struct {
	pool *pgxpool.Pool
}

// NewTransactor returns a Transactor that uses the given pool.
func NewTransactor(pool *pgxpool.Pool) *Transactor {
	return &Transactor{pool: pool}
}

// InTx begins a serializable transaction, hands fn repositories bound to it
// and commits when fn succeeds. Serialization failures, including those
// reported at commit, surface as txn.ErrConflict.
func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context, st checkout.Stores) error) (rerr error) {
	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if rerr != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	st := checkout.Stores{
		Products: &ProductRepository{q: tx},
		Carts:    &CartRepository{q: tx},
		Coupons:  &CouponRepository{q: tx},
		Orders:   &OrderRepository{q: tx},
	}
	if err := fn(ctx, st); err != nil {
		if isConflict(err) && !errors.Is(err, txn.ErrConflict) {
			return errors.Wrap(txn.ErrConflict, err.Error())
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return conflictOr(err, "commit transaction")
	}
	return nil
}
