package app

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-storefront/db"
	"github.com/xenking/kart-storefront/internal/catalog"
	"github.com/xenking/kart-storefront/internal/coupon"
	"github.com/xenking/kart-storefront/internal/httpapi"
	"github.com/xenking/kart-storefront/internal/kv"
	"github.com/xenking/kart-storefront/internal/persist"
	"github.com/xenking/kart-storefront/internal/session"
	"github.com/xenking/kart-storefront/internal/storage/memory"
	"github.com/xenking/kart-storefront/internal/storage/postgres"
	redisstore "github.com/xenking/kart-storefront/internal/storage/redis"
	"github.com/xenking/kart-storefront/pkg/health"
	"github.com/xenking/kart-storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Backend),
	)
	freeShipping, err := cfg.FreeShipping()
	if err != nil {
		return err
	}
	hl := health.New()

	// PostgreSQL pool + migrations, when configured.
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		hl.Register(health.Readiness, "postgres", 5*time.Second, pool.Ping)
	}

	store, closeStore, err := openStore(ctx, cfg, pool)
	if err != nil {
		return err
	}
	defer closeStore()
	if p, ok := store.(kv.Pinger); ok && cfg.Storage.Backend != BackendPostgres {
		hl.Register(health.Readiness, "kv", 5*time.Second, health.PingCheck(p))
	}

	products, coupons, err := openCatalog(cfg, pool)
	if err != nil {
		return err
	}

	writer, err := persist.NewWriter(persist.WriterOptions{
		QueueSize:      cfg.Persist.QueueSize,
		MaxTries:       cfg.Persist.MaxTries,
		Timeout:        cfg.Persist.Timeout,
		Logger:         lg.Named("persist"),
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create persist writer")
	}
	writer.Start(context.WithoutCancel(ctx))
	hl.Register(health.Readiness, "persist", time.Second, health.BacklogCheck(writer.Pending, cfg.Persist.BacklogLimit))
	hl.Register(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))

	sessions := session.NewManager(store, writer, session.Options{
		IdleTTL:       cfg.Session.IdleTTL,
		Logger:        lg.Named("session"),
		MeterProvider: m.MeterProvider(),
	})
	limiter := httpmiddleware.NewRateLimiter(httpmiddleware.RateLimitConfig{
		Rate:  cfg.RateLimit.Rate,
		Burst: cfg.RateLimit.Burst,
	})

	h := httpapi.NewHandler(sessions, products, coupon.NewRepoResolver(coupons), httpapi.Options{
		FreeShippingMinimum: freeShipping,
		Logger:              lg,
	})
	router := httpapi.NewRouter(h, hl, httpapi.RouterConfig{
		Session: httpmiddleware.SessionConfig{Secure: cfg.Session.CookieSecure},
		CORS: httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		},
		RateLimiter: limiter,
		Logger:      lg,
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Instrument("kart-storefront", m.TracerProvider(), m.MeterProvider()),
		),
	}

	hl.Start(ctx, 10*time.Second)
	hl.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sessions.Run(gctx) })
	g.Go(func() error { return limiter.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		hl.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		if err := writer.Flush(shutdownCtx); err != nil {
			lg.Warn("Pending writes not flushed", zap.Int("pending", writer.Pending()), zap.Error(err))
		}
		writer.Stop()
		hl.Stop()
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}

// openStore opens the configured key-value backend. The returned function
// releases it.
func openStore(ctx context.Context, cfg *Config, pool *pgxpool.Pool) (kv.Store, func(), error) {
	switch cfg.Storage.Backend {
	case BackendRedis:
		client, err := redisstore.NewClient(ctx, cfg.Storage.Redis)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect redis")
		}
		store := redisstore.New(client, redisstore.Options{
			Prefix: cfg.Storage.Redis.Prefix,
			TTL:    cfg.Storage.Redis.TTL,
		})
		return store, func() { _ = client.Close() }, nil
	case BackendPostgres:
		return postgres.NewKVStore(pool), func() {}, nil
	default:
		return kv.NewMemory(), func() {}, nil
	}
}

// openCatalog returns the product and coupon repositories: PostgreSQL when a
// pool is available, otherwise the seed catalog held in memory.
func openCatalog(cfg *Config, pool *pgxpool.Pool) (catalog.Repository, coupon.Repository, error) {
	if pool != nil {
		return postgres.NewProductRepository(pool), postgres.NewCouponRepository(pool), nil
	}

	data := db.SeedCatalog
	if cfg.SeedFile != "" {
		var err error
		if data, err = os.ReadFile(cfg.SeedFile); err != nil {
			return nil, nil, errors.Wrap(err, "read seed file")
		}
	}
	seed, err := memory.ParseSeed(data)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parse seed")
	}
	products, coupons := memory.Load(seed)
	return products, coupons, nil
}
