package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/xenking/kart-storefront/internal/catalog"
	"github.com/xenking/kart-storefront/internal/coupon"
)

var (
	_ catalog.Repository = (*ProductRepository)(nil)
	_ coupon.Repository  = (*CouponRepository)(nil)
)

// ProductRepository is an in-memory catalog.Repository.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]catalog.Product
}

// NewProductRepository creates a repository holding products.
func NewProductRepository(products ...catalog.Product) *ProductRepository {
	r := &ProductRepository{products: make(map[string]catalog.Product, len(products))}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

// GetByID returns the product with id, or catalog.ErrNotFound.
func (r *ProductRepository) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	p.Variants = slices.Clone(p.Variants)
	return &p, nil
}

// List returns all products ordered by id.
func (r *ProductRepository) List(context.Context) ([]catalog.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]catalog.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b catalog.Product) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// Upsert stores p, replacing any product with the same id.
func (r *ProductRepository) Upsert(_ context.Context, p catalog.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
	return nil
}

// CouponRepository is an in-memory coupon.Repository. Codes match
// case-insensitively.
type CouponRepository struct {
	mu    sync.RWMutex
	rules map[string]coupon.Rule
}

// NewCouponRepository creates a repository holding rules.
func NewCouponRepository(rules ...coupon.Rule) *CouponRepository {
	r := &CouponRepository{rules: make(map[string]coupon.Rule, len(rules))}
	for _, rule := range rules {
		r.rules[normalizeCode(rule.Code)] = rule
	}
	return r
}

// FindByCode returns the rule for code, or coupon.ErrInvalidCoupon.
func (r *CouponRepository) FindByCode(_ context.Context, code string) (*coupon.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[normalizeCode(code)]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	return &rule, nil
}

// Upsert stores rule, keeping the usage counter of an existing rule.
func (r *CouponRepository) Upsert(_ context.Context, rule coupon.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := normalizeCode(rule.Code)
	rule.Code = code
	if prev, ok := r.rules[code]; ok {
		rule.Uses = prev.Uses
	}
	r.rules[code] = rule
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Load fills the repositories from seed.
func Load(seed *Seed) (*ProductRepository, *CouponRepository) {
	rules := make([]coupon.Rule, 0, len(seed.Coupons))
	for _, c := range seed.Coupons {
		rules = append(rules, c.Rule())
	}
	return NewProductRepository(seed.Products...), NewCouponRepository(rules...)
}
