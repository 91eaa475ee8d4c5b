// Package redis implements kv.Store on top of Redis.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/kart-storefront/internal/kv"
)

// DefaultKeyPrefix namespaces the keys written by this module.
const DefaultKeyPrefix = "kart:"

var (
	_ kv.Store  = (*Store)(nil)
	_ kv.Pinger = (*Store)(nil)
)

// Store is a kv.Store backed by a Redis client. Every Set refreshes the key
// TTL, so idle carts and wishlists expire on their own.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Options configures a Store.
type Options struct {
	// Prefix is prepended to every key. Defaults to DefaultKeyPrefix.
	Prefix string
	// TTL of written keys. Zero keeps keys forever.
	TTL time.Duration
}

// New creates a Store over client.
func New(client redis.UniversalClient, opts Options) *Store {
	if opts.Prefix == "" {
		opts.Prefix = DefaultKeyPrefix
	}
	return &Store{client: client, prefix: opts.Prefix, ttl: opts.TTL}
}

// Get returns the value under key or kv.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, kv.ErrNotFound
		}
		return nil, errors.Wrap(err, "redis get")
	}
	return data, nil
}

// Set stores value under key with the configured TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "ping redis")
	}
	return nil
}

// Config holds Redis connection settings.
type Config struct {
	Addr     string        `default:"localhost:6379" usage:"Redis address"`
	Password string        `usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database number"`
	TTL      time.Duration `default:"720h" usage:"Expiry of stored carts and wishlists"`
	Prefix   string        `default:"kart:" usage:"Key prefix"`
}

// NewClient creates a Redis client and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}
