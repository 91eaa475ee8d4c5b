// Package kv defines the durable key-value store the cart and wishlist
// stores persist into, plus an in-memory implementation.
package kv

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("key not found")

// Store is a durable get/set/remove store addressed by string keys.
//
// Implementations may fail (quota, connectivity, serialization); callers in
// this module treat every failure as recoverable.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Pinger is implemented by stores backed by a remote system.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WithPrefix returns a Store that namespaces every key of s with prefix.
func WithPrefix(s Store, prefix string) Store {
	if prefix == "" {
		return s
	}
	return &prefixStore{store: s, prefix: prefix}
}

type prefixStore struct {
	store  Store
	prefix string
}

func (p *prefixStore) Get(ctx context.Context, key string) ([]byte, error) {
	return p.store.Get(ctx, p.prefix+key)
}

func (p *prefixStore) Set(ctx context.Context, key string, value []byte) error {
	return p.store.Set(ctx, p.prefix+key, value)
}

func (p *prefixStore) Remove(ctx context.Context, key string) error {
	return p.store.Remove(ctx, p.prefix+key)
}

// StorageError describes a failed storage or serialization operation on a
// key.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }
