package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/ingest"
	"github.com/xenking/kart-storefront/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		opts        ingest.Options
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.gz coupon files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&opts.MinFiles, "min-files", 2, "number of files a code must appear in")
	flag.UintVar(&opts.Capacity, "capacity", 1_000_000, "expected codes per file")
	flag.IntVar(&opts.Writers, "writers", 8, "concurrent database upserts")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()
	opts.Logger = lg

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, dataDir, databaseURL, opts); err != nil {
		lg.Fatal("Coupon ingest failed", zap.Error(err))
	}
	lg.Info("Coupon ingest completed successfully")
}

func run(ctx context.Context, lg *zap.Logger, dataDir, databaseURL string, opts ingest.Options) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list input files")
	}
	lg.Info("Ingesting coupon files", zap.Strings("files", files))

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	stats, err := ingest.Run(ctx, files, postgres.NewCouponRepository(pool), opts)
	if err != nil {
		return err
	}
	lg.Info("Ingest stats",
		zap.Int64("lines", stats.Lines),
		zap.Int64("malformed", stats.Malformed),
		zap.Int("accepted", stats.Accepted),
	)
	return nil
}
