//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/kart-storefront/internal/catalog"
	"github.com/xenking/kart-storefront/internal/coupon"
	"github.com/xenking/kart-storefront/internal/kv"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			Env:          map[string]string{"POSTGRES_PASSWORD": "kart", "POSTGRES_USER": "kart", "POSTGRES_DB": "kart"},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://kart:kart@%s:%s/kart?sslmode=disable", host, port.Port())
}

func TestIntegration_RoundTrip(t *testing.T) {
	ctx := context.Background()
	pool, err := NewPool(ctx, startPostgres(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	require.NoError(t, RunMigrations(ctx, pool), "migrations are idempotent")

	t.Run("KV", func(t *testing.T) {
		s := NewKVStore(pool)
		require.NoError(t, s.Ping(ctx))

		_, err := s.Get(ctx, "cart")
		require.ErrorIs(t, err, kv.ErrNotFound)

		require.NoError(t, s.Set(ctx, "cart", []byte(`[1]`)))
		require.NoError(t, s.Set(ctx, "cart", []byte(`[1,2]`)))
		got, err := s.Get(ctx, "cart")
		require.NoError(t, err)
		assert.Equal(t, `[1,2]`, string(got))

		require.NoError(t, s.Remove(ctx, "cart"))
		_, err = s.Get(ctx, "cart")
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("Products", func(t *testing.T) {
		repo := NewProductRepository(pool)
		two := 2
		p := catalog.Product{
			ID: "p-tee", Name: "Tee", Price: decimal.RequireFromString("25.50"), Category: "apparel",
			Stock: 3, Weight: decimal.RequireFromString("0.2"),
			Variants: []catalog.Variant{{ID: "xl", Name: "XL", Stock: &two}},
		}
		require.NoError(t, repo.Upsert(ctx, p))

		got, err := repo.GetByID(ctx, "p-tee")
		require.NoError(t, err)
		assert.True(t, got.Price.Equal(p.Price))
		assert.True(t, got.Weight.Equal(p.Weight))
		require.Len(t, got.Variants, 1)

		list, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("Coupons", func(t *testing.T) {
		repo := NewCouponRepository(pool)
		require.NoError(t, repo.Upsert(ctx, coupon.Rule{
			Coupon: coupon.Coupon{Code: "welcome10", Kind: coupon.KindPercentage, Value: decimal.NewFromInt(10)},
		}))

		resolved, err := coupon.NewRepoResolver(repo).Resolve(ctx, "Welcome10")
		require.NoError(t, err)
		assert.Equal(t, "WELCOME10", resolved.Code)
	})
}
