// Command coupon-ingest turns gzip-compressed code lists from partner
// campaigns into single-use coupons of one shop. A code becomes a coupon only
// when it appears in at least --min-files of the lists.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopcart/internal/domain/coupon"
	"github.com/xenking/shopcart/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		shopID      string
		minFiles    int
		capacity    uint
		batchSize   int
		tmpl        template
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing the code lists")
	flag.StringVar(&pattern, "pattern", "*.gz", "glob of code list files inside --data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&shopID, "shop-id", "", "shop the coupons are issued for")
	flag.IntVar(&minFiles, "min-files", 2, "number of lists a code must appear in")
	flag.UintVar(&capacity, "capacity", 10_000_000, "expected codes per list, sizes the bloom filters")
	flag.IntVar(&batchSize, "batch", 1000, "coupons inserted per round trip")
	flag.StringVar(&tmpl.kind, "type", string(coupon.DiscountPercentage), "discount type: percentage or fixed")
	flag.StringVar(&tmpl.value, "value", "10", "discount value")
	flag.StringVar(&tmpl.minOrder, "min-order", "0", "minimum order subtotal")
	flag.StringVar(&tmpl.maxDiscount, "max-discount", "", "discount cap; empty means none")
	flag.IntVar(&tmpl.validDays, "valid-days", 30, "days the coupons stay valid")
	flag.StringVar(&tmpl.description, "description", "Partner promo code", "coupon description")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if shopID == "" {
		slog.Error("--shop-id is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, config{
		pattern:     filepath.Join(dataDir, pattern),
		databaseURL: databaseURL,
		shopID:      shopID,
		minFiles:    minFiles,
		capacity:    capacity,
		batchSize:   max(batchSize, 1),
		template:    tmpl,
	}); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

type config struct {
	pattern     string
	databaseURL string
	shopID      string
	minFiles    int
	capacity    uint
	batchSize   int
	template    template
}

func run(ctx context.Context, cfg config) error {
	files, err := filepath.Glob(cfg.pattern)
	if err != nil {
		return errors.Wrap(err, "match files")
	}
	if cfg.minFiles < 1 || cfg.minFiles > len(files) {
		return errors.Errorf("--min-files %d out of range: %d files match %q", cfg.minFiles, len(files), cfg.pattern)
	}

	now := time.Now()
	// Build the template before scanning so bad flags fail fast.
	if _, err := cfg.template.build(cfg.shopID, "PROBE", now); err != nil {
		return errors.Wrap(err, "coupon template")
	}

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))
	filters, err := buildFilters(ctx, files, cfg.capacity)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding codes shared by lists", slog.Int("min_files", cfg.minFiles))
	codes, err := sharedCodes(ctx, files, filters, cfg.minFiles)
	if err != nil {
		return errors.Wrap(err, "find shared codes")
	}
	slog.Info("shared codes found", slog.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, cfg.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writeCoupons(ctx, postgres.NewCouponRepository(pool), cfg, codes, now)
}

// batchInserter is satisfied by postgres.CouponRepository.
type batchInserter interface {
	InsertBatch(ctx context.Context, coupons []coupon.Coupon) (int, error)
}

func writeCoupons(ctx context.Context, repo batchInserter, cfg config, codes []string, now time.Time) error {
	var inserted, seen int
	batch := make([]coupon.Coupon, 0, cfg.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := repo.InsertBatch(ctx, batch)
		if err != nil {
			return errors.Wrap(err, "insert coupons")
		}
		inserted += n
		seen += len(batch)
		batch = batch[:0]
		slog.Info("write progress", slog.Int("written", seen), slog.Int("total", len(codes)))
		return nil
	}

	for _, code := range codes {
		c, err := cfg.template.build(cfg.shopID, code, now)
		if err != nil {
			return err
		}
		batch = append(batch, *c)
		if len(batch) == cfg.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	slog.Info("coupons written",
		slog.Int("inserted", inserted),
		slog.Int("skipped_existing", len(codes)-inserted),
	)
	return nil
}

// template describes the coupon created for every accepted code.
type template struct {
	kind        string
	value       string
	minOrder    string
	maxDiscount string
	validDays   int
	description string
}

func (t template) build(shopID, code string, now time.Time) (*coupon.Coupon, error) {
	kind := coupon.DiscountType(t.kind)
	if kind != coupon.DiscountPercentage && kind != coupon.DiscountFixed {
		return nil, errors.Errorf("unknown discount type %q", t.kind)
	}
	value, err := decimal.NewFromString(t.value)
	if err != nil {
		return nil, errors.Wrap(err, "parse --value")
	}
	minOrder, err := decimal.NewFromString(t.minOrder)
	if err != nil {
		return nil, errors.Wrap(err, "parse --min-order")
	}
	one := 1
	c := &coupon.Coupon{
		ID:             uuid.NewString(),
		ShopID:         shopID,
		Code:           code,
		Description:    t.description,
		DiscountType:   kind,
		DiscountValue:  value,
		MinOrderAmount: minOrder,
		StartDate:      now,
		EndDate:        now.AddDate(0, 0, max(t.validDays, 1)),
		IsActive:       true,
		UsageLimit:     &one,
	}
	if t.maxDiscount != "" {
		capAmount, err := decimal.NewFromString(t.maxDiscount)
		if err != nil {
			return nil, errors.Wrap(err, "parse --max-discount")
		}
		c.MaxDiscountAmount = &capAmount
	}
	return c, nil
}
