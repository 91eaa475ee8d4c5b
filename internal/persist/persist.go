// Package persist dispatches store snapshots to a kv.Store as fire-and-forget
// side effects. A failed write is logged and counted, never returned: the
// in-memory state of a store is the source of truth and storage is a
// best-effort cache for the next hydration.
package persist

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/kv"
)

// Dispatcher accepts a write and returns without waiting for it.
type Dispatcher interface {
	Dispatch(store kv.Store, key string, value []byte)
}

var _ Dispatcher = (*Inline)(nil)

// Inline performs the write on the caller's goroutine. It still swallows
// failures, so callers observe the same contract as with Writer.
type Inline struct {
	lg      *zap.Logger
	timeout time.Duration
}

// NewInline creates an Inline dispatcher. A nil logger disables logging.
func NewInline(lg *zap.Logger) *Inline {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Inline{lg: lg, timeout: 5 * time.Second}
}

// Dispatch writes value under key and logs any failure.
func (i *Inline) Dispatch(store kv.Store, key string, value []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	if err := store.Set(ctx, key, value); err != nil {
		i.lg.Warn("Persist write failed", zap.String("key", key), zap.Error(err))
	}
}
