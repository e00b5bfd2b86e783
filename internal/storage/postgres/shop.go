package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

const upsertShopSQL = `INSERT INTO shops (id, name) VALUES ($1, $2)
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

// ShopRepository writes shop rows. Everything else in the schema references
// a shop, so seeding starts here.
type ShopRepository struct {
	q querier
}

// NewShopRepository returns a ShopRepository that uses the given pool.
func NewShopRepository(pool *pgxpool.Pool) *ShopRepository {
	return &ShopRepository{q: pool}
}

// Upsert inserts or renames a shop.
func (r *ShopRepository) Upsert(ctx context.Context, id, name string) error {
	if _, err := r.q.Exec(ctx, upsertShopSQL, id, name); err != nil {
		return errors.Wrapf(err, "upsert shop %q", id)
	}
	return nil
}
