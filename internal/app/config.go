package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	redisstore "github.com/xenking/kart-storefront/internal/storage/redis"
)

// Storage backends for carts and wishlists.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds the complete application configuration, loadable from
// environment variables (KART_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL; when set the catalog and coupons are read from it" flag:"database-url"`
	SeedFile    string `usage:"Catalog seed JSON used without a database; defaults to the embedded demo catalog" flag:"seed-file"`
	// FreeShippingMinimum is parsed with shopspring/decimal.
	FreeShippingMinimum string `default:"50000" usage:"Cart subtotal from which shipping is free" flag:"free-shipping-minimum"`
	Storage             StorageConfig
	Session             SessionConfig
	Persist             PersistConfig
	RateLimit           RateLimitConfig
	CORS                CORSConfig
	Graceful            GracefulConfig
}

// StorageConfig selects where carts and wishlists are persisted.
type StorageConfig struct {
	Backend string `default:"memory" usage:"Key-value backend: memory, redis or postgres"`
	Redis   redisstore.Config
}

// SessionConfig controls browsing sessions.
type SessionConfig struct {
	IdleTTL      time.Duration `default:"30m" usage:"Evict sessions idle for this long from memory" flag:"session-idle-ttl"`
	CookieSecure bool          `default:"false" usage:"Mark the session cookie Secure" flag:"session-cookie-secure"`
}

// PersistConfig controls the background persistence writer.
type PersistConfig struct {
	QueueSize    int           `default:"1024" usage:"Pending write capacity"`
	MaxTries     uint          `default:"3" usage:"Attempts per write"`
	Timeout      time.Duration `default:"5s" usage:"Timeout of a single write attempt"`
	BacklogLimit int           `default:"768" usage:"Pending writes above which the service reports not ready"`
}

// RateLimitConfig controls the per-session token bucket rate limiter.
type RateLimitConfig struct {
	Rate  float64 `default:"20" usage:"Sustained requests per second per session, 0 disables"`
	Burst int     `default:"40" usage:"Burst size"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (session cookie)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then validates it.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "KART",
		Files:     []string{"config.yaml", "/etc/kart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("postgres storage requires a database URL: set KART_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if _, err := c.FreeShipping(); err != nil {
		return err
	}
	if c.RateLimit.Rate < 0 {
		return errors.New("rate limit must not be negative")
	}
	return nil
}

// FreeShipping returns the parsed free shipping threshold.
func (c *Config) FreeShipping() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.FreeShippingMinimum)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "parse free shipping minimum %q", c.FreeShippingMinimum)
	}
	return d, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's KART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Storage.Redis.Addr == "localhost:6379" {
		if v := os.Getenv("REDIS_ADDR"); v != "" {
			c.Storage.Redis.Addr = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
