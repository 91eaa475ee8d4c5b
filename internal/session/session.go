// Package session maps browsing-session ids to their cart, wishlist,
// identity and pending notifications.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/wishlist"
	"github.com/xenking/kart-storefront/internal/identity"
	"github.com/xenking/kart-storefront/internal/kv"
	"github.com/xenking/kart-storefront/internal/notify"
	"github.com/xenking/kart-storefront/internal/persist"
)

// identityKey stores the user id of a logged-in session.
const identityKey = "identity"

// Session is one browsing context. Its stores persist under a key prefix
// unique to the session, so the keys inside are the plain "cart" and
// "wishlist_<identity>".
type Session struct {
	ID            string
	Identity      *identity.Session
	Cart          *cart.Store
	Wishlist      *wishlist.Store
	Notifications *notify.Queue

	store    kv.Store
	dispatch persist.Dispatcher
	lastSeen atomic.Int64
	unbind   func()
}

// Login switches the session to the authenticated user id. The wishlist
// re-hydrates for the new identity.
func (s *Session) Login(userID string) {
	if s.Identity.Set(identity.User(userID)) {
		s.dispatch.Dispatch(s.store, identityKey, []byte(userID))
	}
}

// Logout switches the session back to the anonymous identity.
func (s *Session) Logout() {
	if s.Identity.Set(identity.Anonymous()) {
		s.dispatch.Dispatch(s.store, identityKey, []byte{})
	}
}

func (s *Session) touch(now time.Time) { s.lastSeen.Store(now.UnixNano()) }

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

// Options configures a Manager.
type Options struct {
	// IdleTTL is how long an untouched session stays in memory. Defaults
	// to 30 minutes.
	IdleTTL       time.Duration
	Logger        *zap.Logger
	MeterProvider metric.MeterProvider
	Now           func() time.Time
	// ViewCart runs when the "View cart" action of an add-to-cart
	// notification is invoked. Defaults to a debug log line.
	ViewCart func(sessionID string)
}

func (o *Options) setDefaults() {
	if o.IdleTTL <= 0 {
		o.IdleTTL = 30 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = noop.NewMeterProvider()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.ViewCart == nil {
		lg := o.Logger
		o.ViewCart = func(id string) {
			lg.Debug("Cart view requested", zap.String("session_id", id))
		}
	}
}

// Manager owns the live sessions. Evicting a session only drops its
// in-memory state: the next request with the same id hydrates it again from
// storage.
type Manager struct {
	store    kv.Store
	dispatch persist.Dispatcher
	opts     Options
	lg       *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager persisting through dispatch into store.
func NewManager(store kv.Store, dispatch persist.Dispatcher, opts Options) *Manager {
	opts.setDefaults()
	return &Manager{
		store:    store,
		dispatch: dispatch,
		opts:     opts,
		lg:       opts.Logger,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session with id, opening and hydrating it when it is not
// in memory.
func (m *Manager) Get(ctx context.Context, id string) *Session {
	now := m.opts.Now()

	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		s.touch(now)
		return s
	}

	opened := m.open(ctx, id)
	opened.touch(now)

	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		opened.unbind()
		s.touch(now)
		return s
	}
	m.sessions[id] = opened
	m.mu.Unlock()

	m.lg.Debug("Session opened", zap.String("session_id", id))
	return opened
}

func (m *Manager) open(ctx context.Context, id string) *Session {
	lg := m.lg.With(zap.String("session_id", id))
	store := kv.WithPrefix(m.store, "session:"+id+":")

	current := identity.Anonymous()
	switch data, err := store.Get(ctx, identityKey); {
	case err == nil && len(data) > 0:
		current = identity.User(string(data))
	case err != nil && !errors.Is(err, kv.ErrNotFound):
		lg.Warn("Failed to restore session identity", zap.Error(err))
	}

	q := new(notify.Queue)
	sink := notify.NewLogSink(lg, q)
	ids := identity.NewSession(current)

	c := cart.Open(ctx, store, m.dispatch, sink, cart.Options{
		Logger:        lg,
		MeterProvider: m.opts.MeterProvider,
		Now:           m.opts.Now,
		ViewCart:      func() { m.opts.ViewCart(id) },
	})
	w := wishlist.NewStore(store, m.dispatch, sink, wishlist.Options{
		Logger:        lg,
		MeterProvider: m.opts.MeterProvider,
		Now:           m.opts.Now,
	})
	unbind := w.Bind(ctx, ids)

	return &Session{
		ID:            id,
		Identity:      ids,
		Cart:          c,
		Wishlist:      w,
		Notifications: q,
		store:         store,
		dispatch:      m.dispatch,
		unbind:        unbind,
	}
}

// Len returns the number of sessions in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Evict drops sessions idle for longer than the configured TTL and returns
// how many were dropped.
func (m *Manager) Evict(now time.Time) int {
	m.mu.Lock()
	var evicted []*Session
	for id, s := range m.sessions {
		if s.idleSince(now) >= m.opts.IdleTTL {
			delete(m.sessions, id)
			evicted = append(evicted, s)
		}
	}
	m.mu.Unlock()

	for _, s := range evicted {
		s.unbind()
	}
	if len(evicted) > 0 {
		m.lg.Debug("Evicted idle sessions", zap.Int("count", len(evicted)))
	}
	return len(evicted)
}

// Run evicts idle sessions every half TTL until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.IdleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Evict(m.opts.Now())
		}
	}
}
