package cart

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/kart-storefront/internal/coupon"
	"github.com/xenking/kart-storefront/internal/kv"
	"github.com/xenking/kart-storefront/internal/notify"
	"github.com/xenking/kart-storefront/internal/persist"
)

type failingStore struct{ kv.Store }

func (failingStore) Set(context.Context, string, []byte) error {
	return errors.New("quota exceeded")
}

// slowStore blocks Get until release is closed.
type slowStore struct {
	*kv.Memory
	entered chan struct{}
	release chan struct{}
}

func (s *slowStore) Get(ctx context.Context, key string) ([]byte, error) {
	close(s.entered)
	<-s.release
	return s.Memory.Get(ctx, key)
}

func openTestStore(t *testing.T, store kv.Store, opts Options) (*Store, *notify.Queue) {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return testTime }
	}
	q := new(notify.Queue)
	s := Open(context.Background(), store, persist.NewInline(nil), q, opts)
	return s, q
}

func TestStore_Hydrate(t *testing.T) {
	s := NewStore(kv.NewMemory(), persist.NewInline(nil), nil, Options{})
	assert.True(t, s.Snapshot().Loading)

	s.Hydrate(context.Background())
	assert.False(t, s.Snapshot().Loading)
	assert.Empty(t, s.Snapshot().Items)
}

func TestStore_HydrateUnreadable(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	require.NoError(t, mem.Set(ctx, StorageKey, []byte(`{not json`)))

	core, logs := observer.New(zap.WarnLevel)
	s, _ := openTestStore(t, mem, Options{Logger: zap.New(core)})

	st := s.Snapshot()
	assert.False(t, st.Loading)
	assert.Empty(t, st.Items)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Cart hydration failed, starting empty", logs.All()[0].Message)
	assert.Contains(t, logs.All()[0].ContextMap()["error"], "decode cart")
}

func TestStore_CommandDuringHydrationIsKept(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	saved, _ := openTestStore(t, mem, Options{})
	saved.AddItem(item("saved", 1000), 1)

	slow := &slowStore{Memory: mem, entered: make(chan struct{}), release: make(chan struct{})}
	s := NewStore(slow, persist.NewInline(nil), nil, Options{})

	hydrated := make(chan struct{})
	go func() {
		s.Hydrate(ctx)
		close(hydrated)
	}()
	<-slow.entered

	added := make(chan struct{})
	go func() {
		s.AddItem(item("late", 500), 1)
		close(added)
	}()

	select {
	case <-added:
		t.Fatal("command applied while hydration was loading")
	case <-time.After(20 * time.Millisecond):
	}

	close(slow.release)
	<-hydrated
	<-added

	assert.True(t, s.IsInCart("saved", ""))
	assert.True(t, s.IsInCart("late", ""))
	assert.False(t, s.Snapshot().Loading)
}

func TestStore_RoundTrip(t *testing.T) {
	mem := kv.NewMemory()
	s, _ := openTestStore(t, mem, Options{})

	heavy := item("p2", 2500)
	heavy.VariantID = "xl"
	heavy.Weight = decimal.RequireFromString("0.75")
	heavy.Discontinued = true

	s.AddItem(item("p1", 10000), 2)
	s.AddItem(heavy, 1)
	s.AddItem(item("p3", 1), 4)
	s.RemoveItem("p3", "")

	reopened, _ := openTestStore(t, mem, Options{})
	want := s.Snapshot().Items
	got := reopened.Snapshot().Items
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Key(), got[i].Key())
		assert.Equal(t, want[i].Name, got[i].Name)
		assert.Equal(t, want[i].Quantity, got[i].Quantity)
		assert.Equal(t, want[i].StockAvailable, got[i].StockAvailable)
		assert.Equal(t, want[i].Discontinued, got[i].Discontinued)
		assert.True(t, want[i].UnitPrice.Equal(got[i].UnitPrice))
		assert.True(t, want[i].Weight.Equal(got[i].Weight))
		assert.True(t, want[i].AddedAt.Equal(got[i].AddedAt))
	}
}

func TestStore_Notifications(t *testing.T) {
	var viewed bool
	s, q := openTestStore(t, kv.NewMemory(), Options{ViewCart: func() { viewed = true }})

	s.AddItem(item("p1", 100), 1)
	got := q.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, notify.KindSuccess, got[0].Kind)
	assert.Equal(t, "Product p1 added to cart", got[0].Message)
	require.NotNil(t, got[0].Action)
	got[0].Action.OnClick()
	assert.True(t, viewed)

	s.RemoveItem("missing", "")
	assert.Zero(t, q.Len(), "no notification when nothing was removed")

	s.UpdateQuantity("p1", 0, "")
	got = q.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, "Product p1 removed from cart", got[0].Message)
	assert.False(t, s.IsInCart("p1", ""))
}

func TestStore_StorageFailureKeepsState(t *testing.T) {
	s, q := openTestStore(t, failingStore{Store: kv.NewMemory()}, Options{})

	s.AddItem(item("p1", 10000), 2)
	assert.True(t, s.IsInCart("p1", ""))
	assert.Equal(t, 2, s.ItemQuantity("p1", ""))
	assert.Equal(t, 1, q.Len())
}

func TestStore_ValidateDoesNotMutate(t *testing.T) {
	s, _ := openTestStore(t, kv.NewMemory(), Options{})

	p1 := item("p1", 100)
	p1.StockAvailable = 3
	s.AddItem(p1, 5)

	findings := s.Validate()
	require.Len(t, findings, 1)
	assert.Equal(t, FindingStock, findings[0].Kind)
	assert.Equal(t, "p1", findings[0].Item.ProductID)
	assert.Equal(t, 5, s.ItemQuantity("p1", ""))
}

func TestStore_TotalsAndQueries(t *testing.T) {
	s, _ := openTestStore(t, kv.NewMemory(), Options{})
	s.AddItem(item("p1", 10000), 5)
	s.ApplyCoupon(coupon.Coupon{Code: "TEN", Kind: coupon.KindPercentage, Value: decimal.NewFromInt(10)})
	s.SetShipping(Shipping{Cost: decimal.NewFromInt(8000), Method: "courier"})

	totals := s.Totals()
	assert.True(t, totals.Total.Equal(decimal.NewFromInt(53000)))
	assert.True(t, s.HasFreeShipping(DefaultFreeShippingMinimum))
	assert.True(t, s.Weight().IsZero())

	s.RemoveCoupon()
	assert.True(t, s.Totals().Total.Equal(decimal.NewFromInt(58000)))

	s.Clear()
	st := s.Snapshot()
	assert.Empty(t, st.Items)
	require.NotNil(t, st.Shipping)
	assert.Equal(t, "courier", st.Shipping.Method)
}

func TestStore_Subscribe(t *testing.T) {
	s, _ := openTestStore(t, kv.NewMemory(), Options{})

	var seen []int
	cancel := s.Subscribe(func(st State) { seen = append(seen, len(st.Items)) })
	s.AddItem(item("p1", 1), 1)
	s.AddItem(item("p2", 1), 1)
	cancel()
	s.AddItem(item("p3", 1), 1)

	assert.Equal(t, []int{1, 2}, seen)
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s, _ := openTestStore(t, kv.NewMemory(), Options{})
	s.AddItem(item("p1", 1), 1)

	snap := s.Snapshot()
	snap.Items[0].Quantity = 99
	assert.Equal(t, 1, s.ItemQuantity("p1", ""))
}
