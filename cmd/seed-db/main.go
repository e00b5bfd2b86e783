// Command seed-db loads a shop catalog (products with variants, coupons,
// payment types and admins) into PostgreSQL. Rows are upserted, so running
// it twice is harmless.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/shopcart/internal/seed"
	"github.com/xenking/shopcart/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		catalogFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog", "", "path to a catalog YAML file; empty seeds the demo shop")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile string) error {
	catalog, err := seed.Load(catalogFile)
	if err != nil {
		return err
	}
	data, err := catalog.Resolve(time.Now())
	if err != nil {
		return errors.Wrap(err, "resolve catalog")
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Every other row references the shop.
	if err := postgres.NewShopRepository(pool).Upsert(ctx, data.ShopID, data.ShopName); err != nil {
		return err
	}
	slog.Info("upserted shop", slog.String("id", data.ShopID), slog.String("name", data.ShopName))

	return seedEntities(ctx, pool, data)
}

// seedEntities upserts the independent entity kinds concurrently.
func seedEntities(ctx context.Context, pool *pgxpool.Pool, data *seed.Data) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		repo := postgres.NewProductRepository(pool)
		for _, p := range data.Products {
			if err := repo.Upsert(ctx, p); err != nil {
				return err
			}
			slog.Info("upserted product", slog.String("id", p.ID), slog.Int("variants", len(p.Variants)))
		}
		return nil
	})
	g.Go(func() error {
		repo := postgres.NewCouponRepository(pool)
		for _, c := range data.Coupons {
			if err := repo.Upsert(ctx, c); err != nil {
				return err
			}
			slog.Info("upserted coupon", slog.String("code", c.Code), slog.Time("end_date", c.EndDate))
		}
		return nil
	})
	g.Go(func() error {
		repo := postgres.NewPaymentRepository(pool)
		for _, pt := range data.PaymentTypes {
			if err := repo.Upsert(ctx, pt); err != nil {
				return err
			}
			slog.Info("upserted payment type", slog.String("id", pt.ID), slog.String("name", pt.Name))
		}
		return nil
	})
	g.Go(func() error {
		repo := postgres.NewAdminRepository(pool)
		for _, a := range data.Admins {
			if err := repo.Upsert(ctx, a); err != nil {
				return err
			}
			slog.Info("upserted admin", slog.String("email", a.Email), slog.String("role", a.Role))
		}
		return nil
	})

	return g.Wait()
}
