// Package httpapi exposes the cart and wishlist of a browsing session as a
// JSON API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/catalog"
	"github.com/xenking/kart-storefront/internal/coupon"
	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/session"
	"github.com/xenking/kart-storefront/pkg/health"
	"github.com/xenking/kart-storefront/pkg/httpmiddleware"
)

// Options configures a Handler.
type Options struct {
	// FreeShippingMinimum defaults to cart.DefaultFreeShippingMinimum.
	FreeShippingMinimum decimal.Decimal
	Logger              *zap.Logger
	Now                 func() time.Time
}

// Handler serves the storefront API. Every request runs against the
// session resolved by httpmiddleware.SessionID.
type Handler struct {
	sessions     *session.Manager
	catalog      catalog.Repository
	coupons      coupon.Resolver
	freeShipping decimal.Decimal
	lg           *zap.Logger
	now          func() time.Time
}

// NewHandler creates a Handler.
func NewHandler(sessions *session.Manager, products catalog.Repository, coupons coupon.Resolver, opts Options) *Handler {
	if opts.FreeShippingMinimum.IsZero() {
		opts.FreeShippingMinimum = cart.DefaultFreeShippingMinimum
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		sessions:     sessions,
		catalog:      products,
		coupons:      coupons,
		freeShipping: opts.FreeShippingMinimum,
		lg:           opts.Logger,
		now:          opts.Now,
	}
}

// RouterConfig holds the middleware settings of the router.
type RouterConfig struct {
	Session     httpmiddleware.SessionConfig
	CORS        httpmiddleware.CORSConfig
	RateLimiter *httpmiddleware.RateLimiter
	Logger      *zap.Logger
	Timeout     time.Duration
}

// NewRouter mounts the API and the health probes.
func NewRouter(h *Handler, hl *health.Health, cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(httpmiddleware.InjectLogger(cfg.Logger))
	r.Use(httpmiddleware.Recovery())

	r.Get("/livez", hl.LiveEndpoint)
	r.Get("/readyz", hl.ReadyEndpoint)

	r.Route("/api", func(r chi.Router) {
		r.Use(httpmiddleware.CORS(cfg.CORS))
		r.Use(httpmiddleware.SessionID(cfg.Session))
		r.Use(httpmiddleware.InjectLogger(cfg.Logger))
		r.Use(httpmiddleware.LogRequests())
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware())
		}
		r.Use(chimw.Timeout(cfg.Timeout))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddCartItem)
			r.Patch("/items/{productId}", h.UpdateCartItem)
			r.Delete("/items/{productId}", h.RemoveCartItem)
			r.Put("/coupon", h.ApplyCoupon)
			r.Delete("/coupon", h.RemoveCoupon)
			r.Put("/shipping", h.SetShipping)
			r.Get("/validation", h.ValidateCart)
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", h.GetWishlist)
			r.Delete("/", h.ClearWishlist)
			r.Get("/views/{view}", h.WishlistView)
			r.Get("/categories", h.WishlistCategories)
			r.Get("/export", h.ExportWishlist)
			r.Post("/refresh", h.RefreshWishlist)
			r.Post("/items", h.AddWishlistItem)
			r.Delete("/items/{productId}", h.RemoveWishlistItem)
			r.Post("/items/{productId}/toggle", h.ToggleWishlistItem)
			r.Post("/items/{productId}/move-to-cart", h.MoveToCart)
		})

		r.Get("/identity", h.GetIdentity)
		r.Put("/identity", h.Login)
		r.Delete("/identity", h.Logout)
	})

	return r
}

func (h *Handler) session(r *http.Request) *session.Session {
	return h.sessions.Get(r.Context(), httpmiddleware.SessionIDFromContext(r.Context()))
}
