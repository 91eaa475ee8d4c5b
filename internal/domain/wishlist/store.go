package wishlist

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/identity"
	"github.com/xenking/kart-storefront/internal/kv"
	"github.com/xenking/kart-storefront/internal/notify"
	"github.com/xenking/kart-storefront/internal/persist"
)

const keyPrefix = "wishlist_"

// StorageKey returns the key the wishlist of id is persisted under.
func StorageKey(id identity.Identity) string {
	return keyPrefix + id.Key()
}

// Options configures a Store.
type Options struct {
	Logger        *zap.Logger
	MeterProvider metric.MeterProvider
	// Now stamps newly added items and exports. Defaults to time.Now.
	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = noop.NewMeterProvider()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Store is the wishlist command layer.
//
// The wishlist is bound to one identity at a time. Switching identity
// re-hydrates from the new identity's key while holding the store lock, so
// a command issued during the switch applies to the new wishlist, never to
// a half-loaded one.
type Store struct {
	kv       kv.Store
	dispatch persist.Dispatcher
	sink     notify.Sink
	lg       *zap.Logger
	now      func() time.Time
	commands metric.Int64Counter

	mu       sync.Mutex
	state    State
	hydrated bool
	nextSub  int
	subs     map[int]func(State)
}

// NewStore creates an empty wishlist in the loading state. Call
// SwitchIdentity or Bind to hydrate it.
func NewStore(store kv.Store, dispatch persist.Dispatcher, sink notify.Sink, opts Options) *Store {
	opts.setDefaults()
	if sink == nil {
		sink = notify.Discard
	}

	commands, err := opts.MeterProvider.Meter("kart/wishlist").Int64Counter("kart.wishlist.commands",
		metric.WithDescription("Wishlist commands applied"),
	)
	if err != nil {
		opts.Logger.Warn("Failed to create wishlist command counter", zap.Error(err))
		commands, _ = noop.NewMeterProvider().Meter("").Int64Counter("")
	}

	return &Store{
		kv:       store,
		dispatch: dispatch,
		sink:     sink,
		lg:       opts.Logger,
		now:      opts.Now,
		commands: commands,
		state:    NewState(),
		subs:     make(map[int]func(State)),
	}
}

// Open creates a Store hydrated for id.
func Open(ctx context.Context, store kv.Store, dispatch persist.Dispatcher, sink notify.Sink, id identity.Identity, opts Options) *Store {
	s := NewStore(store, dispatch, sink, opts)
	s.SwitchIdentity(ctx, id)
	return s
}

// SwitchIdentity binds the wishlist to id. When id differs from the bound
// identity, or nothing was hydrated yet, the in-memory items are discarded
// and replaced by those stored for id.
func (s *Store) SwitchIdentity(ctx context.Context, id identity.Identity) {
	s.mu.Lock()
	if s.hydrated && s.state.Identity == id {
		s.mu.Unlock()
		return
	}
	s.hydrated = true

	key := StorageKey(id)
	items, err := s.load(ctx, key)
	if err != nil {
		s.lg.Warn("Wishlist hydration failed, starting empty",
			zap.Stringer("identity", id),
			zap.Error(err),
		)
	}
	next := Reduce(s.state, Hydrate{Identity: id, Items: items})
	s.state = next
	subs := s.subscribers()
	s.mu.Unlock()

	s.commands.Add(ctx, 1, metric.WithAttributes(attribute.String("command", "hydrate")))
	for _, fn := range subs {
		fn(next)
	}
}

// Bind hydrates the wishlist for the provider's current identity and
// re-hydrates on every change it reports. The returned function stops
// following the provider.
func (s *Store) Bind(ctx context.Context, p identity.Provider) (unbind func()) {
	ctx = context.WithoutCancel(ctx)
	cancel := p.Subscribe(func(id identity.Identity) {
		s.SwitchIdentity(ctx, id)
	})
	s.SwitchIdentity(ctx, p.Current())
	return cancel
}

func (s *Store) load(ctx context.Context, key string) ([]Item, error) {
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &kv.StorageError{Op: "get", Key: key, Err: err}
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &kv.StorageError{Op: "decode", Key: key, Err: err}
	}
	return items, nil
}

func (s *Store) subscribers() []func(State) {
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}

// apply runs cmd, persists the result under the bound identity's key and
// returns the states before and after it.
func (s *Store) apply(cmd Command) (prev, next State) {
	s.mu.Lock()
	prev = s.state
	next = Reduce(prev, cmd)
	s.state = next
	s.persist(next)
	subs := s.subscribers()
	s.mu.Unlock()

	s.commands.Add(context.Background(), 1, metric.WithAttributes(attribute.String("command", cmd.command())))
	for _, fn := range subs {
		fn(next)
	}
	return prev, next
}

func (s *Store) persist(st State) {
	key := StorageKey(st.Identity)
	items := st.Items
	if items == nil {
		items = []Item{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		s.lg.Warn("Wishlist persistence skipped", zap.Error(&kv.StorageError{Op: "encode", Key: key, Err: err}))
		return
	}
	s.dispatch.Dispatch(s.kv, key, data)
}

// AddItem saves item. Saving a product twice leaves the wishlist unchanged
// and emits a warning instead.
func (s *Store) AddItem(item Item) {
	prev, _ := s.apply(AddItem{Item: item, At: s.now()})

	if _, dup := prev.Find(item.ProductID); dup {
		s.sink.Notify(notify.Notification{
			Message: fmt.Sprintf("%s is already in your wishlist", item.Name),
			Kind:    notify.KindWarning,
		})
		return
	}
	s.sink.Notify(notify.Notification{
		Message: fmt.Sprintf("%s added to wishlist", item.Name),
		Kind:    notify.KindSuccess,
	})
}

// RemoveItem deletes the item of productID.
func (s *Store) RemoveItem(productID string) {
	prev, _ := s.apply(RemoveItem{ProductID: productID})

	if it, ok := prev.Find(productID); ok {
		s.sink.Notify(notify.Notification{
			Message: fmt.Sprintf("%s removed from wishlist", it.Name),
			Kind:    notify.KindSuccess,
		})
	}
}

// Clear empties the wishlist.
func (s *Store) Clear() {
	s.apply(Clear{})
}

// Toggle removes item when it is saved and adds it otherwise.
func (s *Store) Toggle(item Item) {
	if s.IsInWishlist(item.ProductID) {
		s.RemoveItem(item.ProductID)
		return
	}
	s.AddItem(item)
}

// Refresh overwrites price and stock snapshots with fresh catalog values.
func (s *Store) Refresh(items []Item) {
	s.apply(Refresh{Items: items})
}

// MoveToCart hands the item of productID to addToCart and removes it from
// the wishlist once addToCart succeeds. When addToCart fails the item stays
// and an error notification is emitted. It reports whether the item moved.
func (s *Store) MoveToCart(productID string, addToCart func(Item) error) bool {
	it, ok := s.current().Find(productID)
	if !ok {
		return false
	}

	if err := addToCart(it); err != nil {
		s.lg.Warn("Move to cart failed, keeping wishlist item",
			zap.String("product_id", productID),
			zap.Error(err),
		)
		s.sink.Notify(notify.Notification{
			Message: fmt.Sprintf("Could not move %s to cart", it.Name),
			Kind:    notify.KindError,
		})
		return false
	}

	s.RemoveItem(productID)
	return true
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state
	st.Items = slices.Clone(st.Items)
	return st
}

// Subscribe registers fn to receive the state after every transition,
// hydrations included.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the identity the wishlist is bound to.
func (s *Store) Identity() identity.Identity { return s.current().Identity }

// IsInWishlist reports whether productID is saved.
func (s *Store) IsInWishlist(productID string) bool {
	_, ok := s.current().Find(productID)
	return ok
}

// Count returns the number of saved items.
func (s *Store) Count() int { return len(s.current().Items) }

// TotalValue returns the sum of the saved prices.
func (s *Store) TotalValue() decimal.Decimal { return TotalValue(s.current().Items) }

// RecentlyAdded returns up to limit items, newest first. A limit of zero or
// less returns nothing.
func (s *Store) RecentlyAdded(limit int) []Item { return RecentlyAdded(s.current().Items, limit) }

// GroupByCategory buckets the saved items by category.
func (s *Store) GroupByCategory() map[string][]Item { return GroupByCategory(s.current().Items) }

// AvailableItems returns the saved items that can be bought.
func (s *Store) AvailableItems() []Item { return AvailableItems(s.current().Items) }

// UnavailableItems returns the saved items that cannot be bought.
func (s *Store) UnavailableItems() []Item { return UnavailableItems(s.current().Items) }

// PriceDropItems returns the saved items that got cheaper.
func (s *Store) PriceDropItems() []Item { return PriceDropItems(s.current().Items) }

// BackInStockItems returns the saved items that were restocked.
func (s *Store) BackInStockItems() []Item { return BackInStockItems(s.current().Items) }

// Export returns a serializable snapshot of the wishlist.
func (s *Store) Export() Export { return NewExport(s.current().Items, s.now()) }
