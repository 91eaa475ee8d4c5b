package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/coupon"
	"github.com/xenking/kart-storefront/internal/domain/cart"
)

type totalsView struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount"`
	Shipping  decimal.Decimal `json:"shipping"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"itemCount"`
}

type cartView struct {
	Items        []cart.Item     `json:"items"`
	Coupon       *coupon.Coupon  `json:"coupon"`
	Shipping     *cart.Shipping  `json:"shipping"`
	Totals       totalsView      `json:"totals"`
	Weight       decimal.Decimal `json:"weight"`
	FreeShipping bool            `json:"freeShipping"`
}

func (h *Handler) cartView(st cart.State) cartView {
	t := cart.ComputeTotals(st)
	items := st.Items
	if items == nil {
		items = []cart.Item{}
	}
	return cartView{
		Items:    items,
		Coupon:   st.Coupon,
		Shipping: st.Shipping,
		Totals: totalsView{
			Subtotal:  t.Subtotal,
			Discount:  t.Discount,
			Shipping:  t.Shipping,
			Total:     t.Total,
			ItemCount: t.ItemCount,
		},
		Weight:       cart.ComputeWeight(st),
		FreeShipping: cart.HasFreeShipping(st, h.freeShipping),
	}
}

// cartItem builds a cart line snapshot from the live catalog.
func (h *Handler) cartItem(ctx context.Context, productID, variantID string) (cart.Item, error) {
	p, err := h.catalog.GetByID(ctx, productID)
	if err != nil {
		return cart.Item{}, err
	}
	offer, err := p.Offer(variantID)
	if err != nil {
		return cart.Item{}, err
	}
	return cart.Item{
		ProductID:      p.ID,
		VariantID:      variantID,
		Name:           offer.Name,
		UnitPrice:      offer.Price,
		StockAvailable: offer.Stock,
		Weight:         p.Weight,
		Discontinued:   p.Discontinued,
	}, nil
}

// GetCart handles GET /api/cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	writeData(w, r, h.cartView(s.Cart.Snapshot()), nil)
}

type addCartItemRequest struct {
	ProductID string `json:"productId" validate:"required,max=128"`
	VariantID string `json:"variantId" validate:"max=128"`
	Quantity  int    `json:"quantity" validate:"gte=0,lte=999"`
}

// AddCartItem handles POST /api/cart/items. A missing quantity adds one unit.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	item, err := h.cartItem(r.Context(), req.ProductID, req.VariantID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s := h.session(r)
	s.Cart.AddItem(item, max(req.Quantity, 1))
	writeData(w, r, h.cartView(s.Cart.Snapshot()), s.Notifications)
}

type updateCartItemRequest struct {
	Quantity  *int   `json:"quantity" validate:"required,gte=0,lte=999"`
	VariantID string `json:"variantId" validate:"max=128"`
}

// UpdateCartItem handles PATCH /api/cart/items/{productId}. Quantity zero
// removes the line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateCartItemRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	s := h.session(r)
	s.Cart.UpdateQuantity(chi.URLParam(r, "productId"), *req.Quantity, req.VariantID)
	writeData(w, r, h.cartView(s.Cart.Snapshot()), s.Notifications)
}

// RemoveCartItem handles DELETE /api/cart/items/{productId}?variantId=.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	s.Cart.RemoveItem(chi.URLParam(r, "productId"), r.URL.Query().Get("variantId"))
	writeData(w, r, h.cartView(s.Cart.Snapshot()), s.Notifications)
}

// ClearCart handles DELETE /api/cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	s.Cart.Clear()
	writeData(w, r, h.cartView(s.Cart.Snapshot()), s.Notifications)
}

type applyCouponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// ApplyCoupon handles PUT /api/cart/coupon.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.coupons.Resolve(r.Context(), req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s := h.session(r)
	s.Cart.ApplyCoupon(*c)
	writeData(w, r, h.cartView(s.Cart.Snapshot()), s.Notifications)
}

// RemoveCoupon handles DELETE /api/cart/coupon.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	s.Cart.RemoveCoupon()
	writeData(w, r, h.cartView(s.Cart.Snapshot()), s.Notifications)
}

type setShippingRequest struct {
	Cost   *decimal.Decimal `json:"cost" validate:"required"`
	Method string           `json:"method" validate:"max=64"`
}

// SetShipping handles PUT /api/cart/shipping.
func (h *Handler) SetShipping(w http.ResponseWriter, r *http.Request) {
	var req setShippingRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Cost.IsNegative() {
		writeError(w, r, badRequest("shipping cost must not be negative"))
		return
	}

	s := h.session(r)
	s.Cart.SetShipping(cart.Shipping{Cost: *req.Cost, Method: req.Method})
	writeData(w, r, h.cartView(s.Cart.Snapshot()), s.Notifications)
}

type findingView struct {
	Kind      cart.FindingKind `json:"kind"`
	Message   string           `json:"message"`
	ProductID string           `json:"productId"`
	VariantID string           `json:"variantId,omitempty"`
}

type validationView struct {
	Valid    bool          `json:"valid"`
	Findings []findingView `json:"findings"`
}

// ValidateCart handles GET /api/cart/validation.
func (h *Handler) ValidateCart(w http.ResponseWriter, r *http.Request) {
	findings := h.session(r).Cart.Validate()

	v := validationView{Valid: len(findings) == 0, Findings: make([]findingView, len(findings))}
	for i, f := range findings {
		v.Findings[i] = findingView{
			Kind:      f.Kind,
			Message:   f.Message,
			ProductID: f.Item.ProductID,
			VariantID: f.Item.VariantID,
		}
	}
	writeData(w, r, v, nil)
}
