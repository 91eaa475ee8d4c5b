package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/internal/kv"
)

func validConfig() Config {
	return Config{
		FreeShippingMinimum: "50000",
		Storage:             StorageConfig{Backend: BackendMemory},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "Memory", mutate: func(*Config) {}},
		{name: "Redis", mutate: func(c *Config) { c.Storage.Backend = BackendRedis }},
		{
			name:    "PostgresWithoutURL",
			mutate:  func(c *Config) { c.Storage.Backend = BackendPostgres },
			wantErr: "postgres storage requires a database URL",
		},
		{
			name: "PostgresWithURL",
			mutate: func(c *Config) {
				c.Storage.Backend = BackendPostgres
				c.DatabaseURL = "postgres://localhost/kart"
			},
		},
		{
			name:    "UnknownBackend",
			mutate:  func(c *Config) { c.Storage.Backend = "etcd" },
			wantErr: `unknown storage backend "etcd"`,
		},
		{
			name:    "BadFreeShipping",
			mutate:  func(c *Config) { c.FreeShippingMinimum = "lots" },
			wantErr: `parse free shipping minimum "lots"`,
		},
		{
			name:    "NegativeRate",
			mutate:  func(c *Config) { c.RateLimit.Rate = -1 },
			wantErr: "rate limit must not be negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_FreeShipping(t *testing.T) {
	cfg := validConfig()
	cfg.FreeShippingMinimum = "499.99"

	d, err := cfg.FreeShipping()
	require.NoError(t, err)
	assert.Equal(t, "499.99", d.String())
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/kart")
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg := Config{Addr: "0.0.0.0:8080"}
	cfg.Storage.Redis.Addr = "localhost:6379"
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://platform/kart", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
	assert.Equal(t, "redis:6379", cfg.Storage.Redis.Addr)
}

func TestOpenCatalog_EmbeddedSeed(t *testing.T) {
	cfg := validConfig()

	products, coupons, err := openCatalog(&cfg, nil)
	require.NoError(t, err)

	list, err := products.List(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, list)

	rule, err := coupons.FindByCode(context.Background(), "welcome10")
	require.NoError(t, err)
	assert.Equal(t, "WELCOME10", rule.Code)
}

func TestOpenCatalog_SeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"products":[{"id":"p1","name":"One","price":"10","stock":1}],"coupons":[]}`), 0o600))

	cfg := validConfig()
	cfg.SeedFile = path
	products, _, err := openCatalog(&cfg, nil)
	require.NoError(t, err)

	p, err := products.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "One", p.Name)

	cfg.SeedFile = filepath.Join(t.TempDir(), "missing.json")
	_, _, err = openCatalog(&cfg, nil)
	require.Error(t, err)
}

func TestOpenStore_Memory(t *testing.T) {
	cfg := validConfig()

	store, closeStore, err := openStore(context.Background(), &cfg, nil)
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &kv.Memory{}, store)
}
