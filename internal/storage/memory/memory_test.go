package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/db"
	"github.com/xenking/kart-storefront/internal/catalog"
	"github.com/xenking/kart-storefront/internal/coupon"
)

func TestParseSeed_Embedded(t *testing.T) {
	seed, err := ParseSeed(db.SeedCatalog)
	require.NoError(t, err)
	require.NotEmpty(t, seed.Products)
	require.NotEmpty(t, seed.Coupons)

	products, coupons := Load(seed)
	ctx := context.Background()

	tee, err := products.GetByID(ctx, "p-tee")
	require.NoError(t, err)
	xl, ok := tee.Variant("xl")
	require.True(t, ok)
	assert.True(t, xl.Price.Equal(decimal.NewFromInt(2900)))

	rule, err := coupons.FindByCode(ctx, "welcome10")
	require.NoError(t, err)
	assert.Equal(t, "WELCOME10", rule.Code)
	assert.Equal(t, coupon.KindPercentage, rule.Kind)
}

func TestParseSeed_Invalid(t *testing.T) {
	for _, tt := range []struct {
		name string
		data string
	}{
		{name: "Syntax", data: `{`},
		{name: "EmptyID", data: `{"products":[{"name":"x"}]}`},
		{name: "DuplicateID", data: `{"products":[{"id":"a"},{"id":"a"}]}`},
		{name: "BadKind", data: `{"coupons":[{"code":"X","kind":"bogus","value":"1"}]}`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSeed([]byte(tt.data))
			require.Error(t, err)
		})
	}
}

func TestProductRepository(t *testing.T) {
	ctx := context.Background()
	r := NewProductRepository(catalog.Product{ID: "b"}, catalog.Product{ID: "a"})

	_, err := r.GetByID(ctx, "missing")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	require.NoError(t, r.Upsert(ctx, catalog.Product{ID: "c", Name: "C"}))
	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestCouponRepository_UpsertKeepsUses(t *testing.T) {
	ctx := context.Background()
	r := NewCouponRepository(coupon.Rule{Coupon: coupon.Coupon{Code: "x"}, Uses: 4})

	require.NoError(t, r.Upsert(ctx, coupon.Rule{Coupon: coupon.Coupon{Code: " X ", Kind: coupon.KindFixed}}))
	rule, err := r.FindByCode(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 4, rule.Uses)
	assert.Equal(t, coupon.KindFixed, rule.Kind)

	_, err = r.FindByCode(ctx, "nope")
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
}
