package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/db"
	"github.com/xenking/kart-storefront/internal/storage/memory"
	"github.com/xenking/kart-storefront/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		seedFile    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedFile, "seed-file", "", "catalog seed JSON; defaults to the embedded demo catalog")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, seedFile); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed successfully")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, seedFile string) error {
	data := db.SeedCatalog
	if seedFile != "" {
		lg.Info("Reading seed file", zap.String("path", seedFile))
		var err error
		if data, err = os.ReadFile(seedFile); err != nil {
			return errors.Wrap(err, "read seed file")
		}
	}
	seed, err := memory.ParseSeed(data)
	if err != nil {
		return err
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products := postgres.NewProductRepository(pool)
	for _, p := range seed.Products {
		if err := products.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		lg.Info("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name))
	}

	coupons := postgres.NewCouponRepository(pool)
	for _, c := range seed.Coupons {
		if err := coupons.Upsert(ctx, c.Rule()); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		lg.Info("Upserted coupon", zap.String("code", c.Code), zap.String("description", c.Description))
	}
	return nil
}
