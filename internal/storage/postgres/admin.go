package postgres

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopcart/internal/domain/auth"
)

const (
	getAdminByEmailSQL = `SELECT id, shop_id, email, password_hash, role, is_active
		FROM admins WHERE shop_id = $1 AND email = $2`

	getAdminByIDSQL = `SELECT id, shop_id, email, password_hash, role, is_active
		FROM admins WHERE id = $1`

	upsertAdminSQL = `INSERT INTO admins (id, shop_id, email, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (shop_id, email) DO UPDATE SET
			password_hash = EXCLUDED.password_hash, role = EXCLUDED.role, is_active = EXCLUDED.is_active`
)

var _ auth.AdminRepository = (*AdminRepository)(nil)

// AdminRepository implements auth.AdminRepository backed by PostgreSQL.
type AdminRepository struct {
	q querier
}

// NewAdminRepository returns an AdminRepository that uses the given pool.
func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{q: pool}
}

func (r *AdminRepository) GetByEmail(ctx context.Context, shopID, email string) (*auth.Admin, error) {
	return r.one(ctx, getAdminByEmailSQL, shopID, strings.ToLower(email))
}

func (r *AdminRepository) GetByID(ctx context.Context, id string) (*auth.Admin, error) {
	return r.one(ctx, getAdminByIDSQL, id)
}

func (r *AdminRepository) one(ctx context.Context, sql string, args ...any) (*auth.Admin, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "get admin")
	}
	a, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[auth.Admin])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrAdminNotFound
		}
		return nil, errors.Wrap(err, "get admin")
	}
	return &a, nil
}

// Upsert inserts an admin or updates the one with the same shop and email.
func (r *AdminRepository) Upsert(ctx context.Context, a *auth.Admin) error {
	_, err := r.q.Exec(ctx, upsertAdminSQL, a.ID, a.ShopID, strings.ToLower(a.Email), a.PasswordHash, a.Role, a.IsActive)
	if err != nil {
		return errors.Wrapf(err, "upsert admin %q", a.Email)
	}
	return nil
}
