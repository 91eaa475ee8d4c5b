package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-storefront/internal/kv"
)

var (
	_ kv.Store  = (*KVStore)(nil)
	_ kv.Pinger = (*KVStore)(nil)
)

// KVStore implements kv.Store over the kv_entries table.
type KVStore struct {
	db DBTX
}

// NewKVStore returns a KVStore that uses the given connection.
func NewKVStore(db DBTX) *KVStore {
	return &KVStore{db: db}
}

// Get returns the value stored under key, or kv.ErrNotFound.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, kv.ErrNotFound
		}
		return nil, fmt.Errorf("getting kv entry %q: %w", key, err)
	}
	return value, nil
}

// Set upserts value under key.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	const query = `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

	if _, err := s.db.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("setting kv entry %q: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *KVStore) Remove(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("removing kv entry %q: %w", key, err)
	}
	return nil
}

// Ping checks the connection.
func (s *KVStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
