// Package identity models the "current user" value the wishlist is keyed by.
// Authentication itself lives elsewhere; this package only carries its
// result and announces changes.
package identity

import "sync"

// AnonymousKey is the storage sentinel used when no user is signed in.
// Authenticated keys always carry userKeyPrefix, so no user id can map onto
// it.
const AnonymousKey = "guest"

const userKeyPrefix = "user:"

// Identity is either an authenticated user id or anonymous (zero value).
type Identity struct {
	UserID string
}

// Anonymous returns the anonymous identity.
func Anonymous() Identity { return Identity{} }

// User returns the identity of an authenticated user. An empty id yields the
// anonymous identity.
func User(id string) Identity { return Identity{UserID: id} }

// Authenticated reports whether id belongs to a signed-in user.
func (id Identity) Authenticated() bool { return id.UserID != "" }

// Key returns the value used to namespace per-identity storage: AnonymousKey
// for the anonymous identity, "user:<id>" otherwise.
func (id Identity) Key() string {
	if id.UserID == "" {
		return AnonymousKey
	}
	return userKeyPrefix + id.UserID
}

// String returns the user id, or AnonymousKey when nobody is signed in.
func (id Identity) String() string {
	if id.UserID == "" {
		return AnonymousKey
	}
	return id.UserID
}

// Provider exposes the current identity and reports changes.
type Provider interface {
	Current() Identity
	// Subscribe registers fn to be called with the new identity after every
	// change. The returned function removes the subscription.
	Subscribe(fn func(Identity)) (cancel func())
}

var _ Provider = (*Session)(nil)

// Session is a Provider whose identity is set explicitly by the host, e.g.
// on login and logout.
type Session struct {
	mu      sync.Mutex
	current Identity
	nextID  int
	subs    map[int]func(Identity)
}

// NewSession creates a Session starting at initial.
func NewSession(initial Identity) *Session {
	return &Session{current: initial, subs: make(map[int]func(Identity))}
}

// Current returns the current identity.
func (s *Session) Current() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set changes the identity. Subscribers are called synchronously, outside the
// session lock, only when the identity actually changed. It reports whether
// a change happened.
func (s *Session) Set(id Identity) bool {
	s.mu.Lock()
	if s.current == id {
		s.mu.Unlock()
		return false
	}
	s.current = id
	subs := make([]func(Identity), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(id)
	}
	return true
}

// Subscribe implements Provider.
func (s *Session) Subscribe(fn func(Identity)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}
