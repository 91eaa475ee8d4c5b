package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	rule     *Rule
	err      error
	lastCode string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Rule, error) {
	m.lastCode = code
	return m.rule, m.err
}

func percentRule(code string, value int64) *Rule {
	return &Rule{Coupon: Coupon{Code: code, Kind: KindPercentage, Value: decimal.NewFromInt(value)}}
}

func TestRepoResolver_Resolve(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	withWindow := func(r *Rule, from, until *time.Time) *Rule {
		r.ValidFrom, r.ValidUntil = from, until
		return r
	}
	withUses := func(r *Rule, maxUses, uses int) *Rule {
		r.MaxUses, r.Uses = maxUses, uses
		return r
	}

	tests := []struct {
		name     string
		repo     *mockCouponRepo
		code     string
		wantCode string
		wantErr  error
	}{
		{
			name:     "valid code returns coupon",
			repo:     &mockCouponRepo{rule: percentRule("SAVE10", 10)},
			code:     "SAVE10",
			wantCode: "SAVE10",
		},
		{
			name:     "code is trimmed",
			repo:     &mockCouponRepo{rule: percentRule("SAVE10", 10)},
			code:     "  SAVE10 ",
			wantCode: "SAVE10",
		},
		{
			name:    "blank code is invalid",
			repo:    &mockCouponRepo{rule: percentRule("SAVE10", 10)},
			code:    "   ",
			wantErr: ErrInvalidCoupon,
		},
		{
			name:    "unknown code returns ErrInvalidCoupon",
			repo:    &mockCouponRepo{err: ErrInvalidCoupon},
			code:    "BOGUS",
			wantErr: ErrInvalidCoupon,
		},
		{
			name:    "expired coupon",
			repo:    &mockCouponRepo{rule: withWindow(percentRule("OLD", 10), nil, &pastTime)},
			code:    "OLD",
			wantErr: ErrCouponExpired,
		},
		{
			name:    "coupon not yet valid",
			repo:    &mockCouponRepo{rule: withWindow(percentRule("SOON", 10), &futureTime, nil)},
			code:    "SOON",
			wantErr: ErrCouponExpired,
		},
		{
			name:     "coupon within window",
			repo:     &mockCouponRepo{rule: withWindow(percentRule("NOW", 10), &pastTime, &futureTime)},
			code:     "NOW",
			wantCode: "NOW",
		},
		{
			name:    "usage limit reached",
			repo:    &mockCouponRepo{rule: withUses(percentRule("LIMITED", 10), 100, 100)},
			code:    "LIMITED",
			wantErr: ErrCouponUsageLimitReached,
		},
		{
			name:     "unlimited uses",
			repo:     &mockCouponRepo{rule: withUses(percentRule("UNLIMITED", 10), 0, 9999)},
			code:     "UNLIMITED",
			wantCode: "UNLIMITED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRepoResolver(tt.repo)
			r.now = func() time.Time { return fixedNow }

			got, err := r.Resolve(context.Background(), tt.code)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantCode, tt.repo.lastCode)
		})
	}
}

func TestRepoResolver_UnsupportedKind(t *testing.T) {
	repo := &mockCouponRepo{rule: &Rule{Coupon: Coupon{Code: "X", Kind: Kind("free_lowest")}}}

	_, err := NewRepoResolver(repo).Resolve(context.Background(), "X")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported discount kind")
}

func TestRepoResolver_RepositoryError(t *testing.T) {
	repo := &mockCouponRepo{err: errors.New("db down")}

	_, err := NewRepoResolver(repo).Resolve(context.Background(), "ANY")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup coupon")
	assert.NotErrorIs(t, err, ErrInvalidCoupon)
}
