package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/shopcart/internal/domain/auth"
	"github.com/xenking/shopcart/internal/domain/cart"
	"github.com/xenking/shopcart/internal/domain/checkout"
	"github.com/xenking/shopcart/internal/domain/coupon"
	"github.com/xenking/shopcart/internal/domain/order"
	"github.com/xenking/shopcart/internal/domain/payment"
	"github.com/xenking/shopcart/internal/domain/product"
	"github.com/xenking/shopcart/internal/seed"
	"github.com/xenking/shopcart/internal/storage/memory"
	"github.com/xenking/shopcart/internal/storage/postgres"
	"github.com/xenking/shopcart/pkg/health"
)

// storage is one backend's set of stores.
type storage struct {
	tx       checkout.Transactor
	products product.Repository
	carts    cart.Repository
	coupons  coupon.Repository
	orders   order.Repository
	payments payment.Repository
	admins   auth.AdminRepository
	sessions auth.SessionStore
	close    func()
}

func openStorage(ctx context.Context, lg *zap.Logger, cfg *Config, h *health.Health) (*storage, error) {
	if cfg.Storage == StorageMemory {
		return openMemory(lg, cfg.SeedCatalog, time.Now())
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	h.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool.Ping))

	return &storage{
		tx:       postgres.NewTransactor(pool),
		products: postgres.NewProductRepository(pool),
		carts:    postgres.NewCartRepository(pool),
		coupons:  postgres.NewCouponRepository(pool),
		orders:   postgres.NewOrderRepository(pool),
		payments: postgres.NewPaymentRepository(pool),
		admins:   postgres.NewAdminRepository(pool),
		// Guest sessions need Redis with this backend; without it they live
		// in process memory and do not survive restarts.
		sessions: memory.New().Sessions(),
		close:    pool.Close,
	}, nil
}

// openMemory builds the in-process backend and loads a catalog into it, since
// nothing else can populate it.
func openMemory(lg *zap.Logger, catalog string, now time.Time) (*storage, error) {
	c, err := seed.Load(catalog)
	if err != nil {
		return nil, errors.Wrap(err, "load catalog")
	}
	data, err := c.Resolve(now)
	if err != nil {
		return nil, errors.Wrap(err, "resolve catalog")
	}

	s := memory.New()
	for _, p := range data.Products {
		s.Products().Put(p)
	}
	for _, cp := range data.Coupons {
		s.Coupons().Put(cp)
	}
	for _, pt := range data.PaymentTypes {
		s.Payments().Put(pt)
	}
	for _, a := range data.Admins {
		s.Admins().Put(a)
	}
	lg.Info("Loaded catalog into memory",
		zap.String("shop_id", data.ShopID),
		zap.Int("products", len(data.Products)),
		zap.Int("coupons", len(data.Coupons)),
	)

	return &storage{
		tx:       s,
		products: s.Products(),
		carts:    s.Carts(),
		coupons:  s.Coupons(),
		orders:   s.Orders(),
		payments: s.Payments(),
		admins:   s.Admins(),
		sessions: s.Sessions(),
		close:    func() {},
	}, nil
}
