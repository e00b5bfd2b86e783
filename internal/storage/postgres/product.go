package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopcart/internal/domain/product"
)

const (
	getProductSQL = `SELECT id, shop_id, name, price, quantity, status
		FROM products WHERE id = $1 AND shop_id = $2 AND status = 'active'`

	listVariantOptionsSQL = `SELECT variant_name, option_name, price_adjustment, quantity, sku
		FROM variant_options WHERE product_id = $1
		ORDER BY variant_position, option_position`

	decrementProductStockSQL = `UPDATE products SET quantity = quantity - $2
		WHERE id = $1 AND quantity >= $2`

	decrementOptionStockSQL = `UPDATE variant_options SET quantity = quantity - $4
		WHERE product_id = $1 AND variant_name = $2 AND option_name = $3 AND quantity >= $4`

	upsertProductSQL = `INSERT INTO products (id, shop_id, name, price, quantity, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			shop_id = EXCLUDED.shop_id, name = EXCLUDED.name, price = EXCLUDED.price,
			quantity = EXCLUDED.quantity, status = EXCLUDED.status`

	deleteVariantOptionsSQL = `DELETE FROM variant_options WHERE product_id = $1`

	insertVariantOptionSQL = `INSERT INTO variant_options
		(product_id, variant_name, variant_position, option_name, option_position, price_adjustment, quantity, sku)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
// Variant options live in their own table so stock can be decremented per
// option with a single conditional update.
type ProductRepository struct {
	q querier
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{q: pool}
}

// GetByID returns an active product of the shop together with its variants.
func (r *ProductRepository) GetByID(ctx context.Context, shopID, id string) (*product.Product, error) {
	rows, err := r.q.Query(ctx, getProductSQL, id, shopID)
	if err != nil {
		return nil, conflictOr(err, "get product")
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, conflictOr(err, "get product")
	}

	rows, err = r.q.Query(ctx, listVariantOptionsSQL, id)
	if err != nil {
		return nil, conflictOr(err, "list variant options")
	}
	opts, err := pgx.CollectRows(rows, scanVariantOption)
	if err != nil {
		return nil, conflictOr(err, "list variant options")
	}
	for _, o := range opts {
		if n := len(p.Variants); n == 0 || p.Variants[n-1].Name != o.variant {
			p.Variants = append(p.Variants, product.Variant{Name: o.variant})
		}
		v := &p.Variants[len(p.Variants)-1]
		v.Options = append(v.Options, o.Option)
	}
	return &p, nil
}

// DecrementStock lowers the stock of the product, or of one option when
// variant is set, only if enough units remain.
func (r *ProductRepository) DecrementStock(ctx context.Context, productID, variant, option string, qty int) (bool, error) {
	var (
		sql  = decrementProductStockSQL
		args = []any{productID, qty}
	)
	if variant != "" {
		sql = decrementOptionStockSQL
		args = []any{productID, variant, option, qty}
	}
	tag, err := r.q.Exec(ctx, sql, args...)
	if err != nil {
		return false, conflictOr(err, "decrement stock")
	}
	return tag.RowsAffected() == 1, nil
}

// Upsert inserts or replaces a product and all of its variant options.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	b := &pgx.Batch{}
	b.Queue(upsertProductSQL, p.ID, p.ShopID, p.Name, p.Price, p.Quantity, string(p.Status))
	b.Queue(deleteVariantOptionsSQL, p.ID)
	for vi, v := range p.Variants {
		for oi, o := range v.Options {
			b.Queue(insertVariantOptionSQL, p.ID, v.Name, vi, o.Name, oi, o.PriceAdjustment, o.Quantity, o.SKU)
		}
	}
	if err := r.q.SendBatch(ctx, b).Close(); err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p      product.Product
		price  decimal.Decimal
		status string
	)
	err := row.Scan(&p.ID, &p.ShopID, &p.Name, &price, &p.Quantity, &status)
	p.Price = price
	p.Status = product.Status(status)
	return p, err
}

type variantOption struct {
	product.Option
	variant string
}

func scanVariantOption(row pgx.CollectableRow) (variantOption, error) {
	var o variantOption
	err := row.Scan(&o.variant, &o.Name, &o.PriceAdjustment, &o.Quantity, &o.SKU)
	return o, err
}
