package cart

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

	"github.com/xenking/kart-storefront/internal/coupon"
	"github.com/xenking/kart-storefront/internal/kv"
	"github.com/xenking/kart-storefront/internal/notify"
	"github.com/xenking/kart-storefront/internal/persist"
)

// StorageKey is the key the cart items are persisted under.
const StorageKey = "cart"

// Options configures a Store.
type Options struct {
	Logger        *zap.Logger
	MeterProvider metric.MeterProvider
	// Now stamps newly added items. Defaults to time.Now.
	Now func() time.Time
	// ViewCart, when set, is attached as the call to action of the
	// notification emitted by AddItem.
	ViewCart func()
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

// Store is the cart command layer. Every command runs Reduce under the store
// lock, dispatches the persisted items and then emits at most one
// notification. Commands never fail.
type Store struct {
	kv       kv.Store
	dispatch persist.Dispatcher
	sink     notify.Sink
	lg       *zap.Logger
	now      func() time.Time
	viewCart func()
	commands metric.Int64Counter

	mu       sync.Mutex
	state    State
	hydrated bool
	nextSub  int
	subs     map[int]func(State)
}

// NewStore creates an empty cart in the loading state. Call Hydrate to load
// persisted items.
func NewStore(store kv.Store, dispatch persist.Dispatcher, sink notify.Sink, opts Options) *Store {
	opts.setDefaults()
	if sink == nil {
		sink = notify.Discard
	}

	commands, err := opts.MeterProvider.Meter("kart/cart").Int64Counter("kart.cart.commands",
		metric.WithDescription("Cart commands applied"),
	)
	if err != nil {
		opts.Logger.Warn("Failed to create cart command counter", zap.Error(err))
		commands, _ = noop.NewMeterProvider().Meter("").Int64Counter("")
	}

	return &Store{
		kv:       store,
		dispatch: dispatch,
		sink:     sink,
		lg:       opts.Logger,
		now:      opts.Now,
		viewCart: opts.ViewCart,
		commands: commands,
		state:    NewState(),
		subs:     make(map[int]func(State)),
	}
}

// Open creates a Store and hydrates it.
func Open(ctx context.Context, store kv.Store, dispatch persist.Dispatcher, sink notify.Sink, opts Options) *Store {
	s := NewStore(store, dispatch, sink, opts)
	s.Hydrate(ctx)
	return s
}

// Hydrate loads the persisted items. It runs once per Store; later calls are
// no-ops. Absent or unreadable data hydrates an empty cart. The store lock is
// held through the load, so a command issued meanwhile waits and then
// applies on top of the hydrated items.
func (s *Store) Hydrate(ctx context.Context) {
	s.mu.Lock()
	if s.hydrated {
		s.mu.Unlock()
		return
	}
	s.hydrated = true

	items, err := s.load(ctx)
	if err != nil {
		s.lg.Warn("Cart hydration failed, starting empty", zap.Error(err))
	}
	next := Reduce(s.state, Hydrate{Items: items})
	s.state = next
	subs := s.subscribers()
	s.mu.Unlock()

	s.commands.Add(ctx, 1, metric.WithAttributes(attribute.String("command", "hydrate")))
	for _, fn := range subs {
		fn(next)
	}
}

func (s *Store) load(ctx context.Context) ([]Item, error) {
	data, err := s.kv.Get(ctx, StorageKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &kv.StorageError{Op: "get", Key: StorageKey, Err: err}
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &kv.StorageError{Op: "decode", Key: StorageKey, Err: err}
	}
	return items, nil
}

// apply runs cmd and returns the states before and after it. Persistence is
// dispatched under the lock so that writes leave in transition order.
func (s *Store) apply(cmd Command, save bool) (prev, next State) {
	s.mu.Lock()
	prev = s.state
	next = Reduce(prev, cmd)
	s.state = next
	if save {
		s.persist(next.Items)
	}
	subs := s.subscribers()
	s.mu.Unlock()

	s.commands.Add(context.Background(), 1, metric.WithAttributes(attribute.String("command", cmd.command())))
	for _, fn := range subs {
		fn(next)
	}
	return prev, next
}

func (s *Store) subscribers() []func(State) {
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}

func (s *Store) persist(items []Item) {
	if items == nil {
		items = []Item{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		s.lg.Warn("Cart persistence skipped", zap.Error(&kv.StorageError{Op: "encode", Key: StorageKey, Err: err}))
		return
	}
	s.dispatch.Dispatch(s.kv, StorageKey, data)
}

// AddItem adds quantity units of item, merging with an existing line of the
// same product and variant.
func (s *Store) AddItem(item Item, quantity int) {
	s.apply(AddItem{Item: item, Quantity: quantity, At: s.now()}, true)

	n := notify.Notification{
		Message: fmt.Sprintf("%s added to cart", item.Name),
		Kind:    notify.KindSuccess,
	}
	if s.viewCart != nil {
		n.Action = &notify.Action{Label: "View cart", OnClick: s.viewCart}
	}
	s.sink.Notify(n)
}

// RemoveItem deletes the line of productID and variantID.
func (s *Store) RemoveItem(productID, variantID string) {
	key := Key{ProductID: productID, VariantID: variantID}
	prev, _ := s.apply(RemoveItem{Key: key}, true)

	if it, ok := prev.Find(key); ok {
		s.sink.Notify(notify.Notification{
			Message: fmt.Sprintf("%s removed from cart", it.Name),
			Kind:    notify.KindSuccess,
		})
	}
}

// UpdateQuantity sets the quantity of a line. Zero or less removes it.
func (s *Store) UpdateQuantity(productID string, quantity int, variantID string) {
	if quantity <= 0 {
		s.RemoveItem(productID, variantID)
		return
	}
	s.apply(UpdateQuantity{
		Key:      Key{ProductID: productID, VariantID: variantID},
		Quantity: quantity,
	}, true)
}

// Clear empties the cart. The coupon and shipping selection stay.
func (s *Store) Clear() {
	s.apply(Clear{}, true)
}

// ApplyCoupon replaces the active coupon.
func (s *Store) ApplyCoupon(c coupon.Coupon) {
	s.apply(ApplyCoupon{Coupon: c}, true)
}

// RemoveCoupon clears the active coupon.
func (s *Store) RemoveCoupon() {
	s.apply(RemoveCoupon{}, true)
}

// SetShipping replaces the shipping selection.
func (s *Store) SetShipping(sh Shipping) {
	s.apply(SetShipping{Shipping: sh}, true)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state
	st.Items = slices.Clone(st.Items)
	return st
}

// Subscribe registers fn to receive the state after every transition.
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

// Totals returns the price summary of the cart.
func (s *Store) Totals() Totals { return ComputeTotals(s.current()) }

// Weight returns the total weight of the cart.
func (s *Store) Weight() decimal.Decimal { return ComputeWeight(s.current()) }

// HasFreeShipping reports whether the subtotal reaches minimum.
func (s *Store) HasFreeShipping(minimum decimal.Decimal) bool {
	return HasFreeShipping(s.current(), minimum)
}

// Validate lists stock and discontinuation findings. It never changes the
// cart.
func (s *Store) Validate() []Finding { return Validate(s.current()) }

// IsInCart reports whether a line for productID and variantID exists.
func (s *Store) IsInCart(productID, variantID string) bool {
	_, ok := s.current().Find(Key{ProductID: productID, VariantID: variantID})
	return ok
}

// ItemQuantity returns the quantity of a line, or zero.
func (s *Store) ItemQuantity(productID, variantID string) int {
	it, _ := s.current().Find(Key{ProductID: productID, VariantID: variantID})
	return it.Quantity
}
