package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// Resolver turns a code typed by the user into an applicable Coupon.
type Resolver interface {
	Resolve(ctx context.Context, code string) (*Coupon, error)
}

var _ Resolver = (*RepoResolver)(nil)

// RepoResolver implements Resolver by looking up rules from a Repository and
// checking their validity window and usage limit.
type RepoResolver struct {
	repo Repository
	now  func() time.Time
}

// NewRepoResolver creates a RepoResolver backed by the given Repository.
func NewRepoResolver(repo Repository) *RepoResolver {
	return &RepoResolver{repo: repo, now: time.Now}
}

// Resolve looks up the rule for code and returns its coupon when the rule is
// currently usable.
func (r *RepoResolver) Resolve(ctx context.Context, code string) (*Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidCoupon
	}

	rule, err := r.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if !rule.Kind.Valid() {
		return nil, errors.Errorf("unsupported discount kind: %q", rule.Kind)
	}

	now := r.now()
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return nil, ErrCouponExpired
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return nil, ErrCouponExpired
	}
	if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
		return nil, ErrCouponUsageLimitReached
	}

	c := rule.Coupon
	return &c, nil
}
