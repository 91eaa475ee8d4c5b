package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/catalog"
	"github.com/xenking/kart-storefront/internal/domain/wishlist"
)

type wishlistView struct {
	Identity   string          `json:"identity"`
	Items      []wishlist.Item `json:"items"`
	Count      int             `json:"count"`
	TotalValue decimal.Decimal `json:"totalValue"`
}

func newWishlistView(st wishlist.State) wishlistView {
	items := st.Items
	if items == nil {
		items = []wishlist.Item{}
	}
	return wishlistView{
		Identity:   st.Identity.String(),
		Items:      items,
		Count:      len(items),
		TotalValue: wishlist.TotalValue(items),
	}
}

func itemsOrEmpty(items []wishlist.Item) []wishlist.Item {
	if items == nil {
		return []wishlist.Item{}
	}
	return items
}

// wishlistItem builds a wishlist snapshot of the product from the live
// catalog.
func (h *Handler) wishlistItem(ctx context.Context, productID string) (wishlist.Item, error) {
	p, err := h.catalog.GetByID(ctx, productID)
	if err != nil {
		return wishlist.Item{}, err
	}
	return snapshot(p), nil
}

func snapshot(p *catalog.Product) wishlist.Item {
	stock := p.Stock
	return wishlist.Item{
		ProductID:      p.ID,
		Name:           p.Name,
		Price:          p.Price,
		Category:       p.Category,
		StockAvailable: &stock,
		Discontinued:   p.Discontinued,
	}
}

// GetWishlist handles GET /api/wishlist.
func (h *Handler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, newWishlistView(h.session(r).Wishlist.Snapshot()), nil)
}

// WishlistView handles GET /api/wishlist/views/{view}.
func (h *Handler) WishlistView(w http.ResponseWriter, r *http.Request) {
	wl := h.session(r).Wishlist

	var items []wishlist.Item
	switch view := chi.URLParam(r, "view"); view {
	case "available":
		items = wl.AvailableItems()
	case "unavailable":
		items = wl.UnavailableItems()
	case "price-drop":
		items = wl.PriceDropItems()
	case "back-in-stock":
		items = wl.BackInStockItems()
	case "recent":
		limit := wishlist.DefaultRecentLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, r, badRequest("invalid limit %q", raw))
				return
			}
			limit = n
		}
		items = wl.RecentlyAdded(limit)
	default:
		writeJSON(w, r, http.StatusNotFound, errorResponse{
			Code:    http.StatusNotFound,
			Message: "unknown wishlist view " + strconv.Quote(view),
		})
		return
	}
	writeData(w, r, itemsOrEmpty(items), nil)
}

// WishlistCategories handles GET /api/wishlist/categories.
func (h *Handler) WishlistCategories(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, h.session(r).Wishlist.GroupByCategory(), nil)
}

// ExportWishlist handles GET /api/wishlist/export and serves the export as
// a download.
func (h *Handler) ExportWishlist(w http.ResponseWriter, r *http.Request) {
	exp := h.session(r).Wishlist.Export()
	w.Header().Set("Content-Disposition",
		`attachment; filename="wishlist-`+exp.ExportDate.Format("2006-01-02")+`.json"`)
	writeJSON(w, r, http.StatusOK, exp)
}

type addWishlistItemRequest struct {
	ProductID string `json:"productId" validate:"required,max=128"`
}

// AddWishlistItem handles POST /api/wishlist/items.
func (h *Handler) AddWishlistItem(w http.ResponseWriter, r *http.Request) {
	var req addWishlistItemRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	item, err := h.wishlistItem(r.Context(), req.ProductID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s := h.session(r)
	s.Wishlist.AddItem(item)
	writeData(w, r, newWishlistView(s.Wishlist.Snapshot()), s.Notifications)
}

// RemoveWishlistItem handles DELETE /api/wishlist/items/{productId}.
func (h *Handler) RemoveWishlistItem(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	s.Wishlist.RemoveItem(chi.URLParam(r, "productId"))
	writeData(w, r, newWishlistView(s.Wishlist.Snapshot()), s.Notifications)
}

// ToggleWishlistItem handles POST /api/wishlist/items/{productId}/toggle.
// A saved item is removed even when the product left the catalog.
func (h *Handler) ToggleWishlistItem(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	productID := chi.URLParam(r, "productId")

	item, err := h.wishlistItem(r.Context(), productID)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) || !s.Wishlist.IsInWishlist(productID) {
			writeError(w, r, err)
			return
		}
		item = wishlist.Item{ProductID: productID}
	}

	s.Wishlist.Toggle(item)
	writeData(w, r, newWishlistView(s.Wishlist.Snapshot()), s.Notifications)
}

// ClearWishlist handles DELETE /api/wishlist.
func (h *Handler) ClearWishlist(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	s.Wishlist.Clear()
	writeData(w, r, newWishlistView(s.Wishlist.Snapshot()), s.Notifications)
}

// RefreshWishlist handles POST /api/wishlist/refresh. Saved items are
// re-read from the catalog; products that left it are marked discontinued.
func (h *Handler) RefreshWishlist(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	saved := s.Wishlist.Snapshot().Items

	fresh := make([]wishlist.Item, 0, len(saved))
	for _, it := range saved {
		p, err := h.catalog.GetByID(r.Context(), it.ProductID)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			it.Discontinued = true
			fresh = append(fresh, it)
		case err != nil:
			writeError(w, r, errors.Wrapf(err, "refresh %s", it.ProductID))
			return
		default:
			fresh = append(fresh, snapshot(p))
		}
	}

	s.Wishlist.Refresh(fresh)
	writeData(w, r, newWishlistView(s.Wishlist.Snapshot()), s.Notifications)
}

type moveToCartView struct {
	Moved    bool         `json:"moved"`
	Wishlist wishlistView `json:"wishlist"`
	Cart     cartView     `json:"cart"`
}

// errNotPurchasable is returned by the cart bridge for items that cannot be
// bought right now.
var errNotPurchasable = errors.New("product is not available")

// MoveToCart handles POST /api/wishlist/items/{productId}/move-to-cart. The
// item is added to the session cart at the current catalog price and leaves
// the wishlist only when that succeeds.
func (h *Handler) MoveToCart(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)

	moved := s.Wishlist.MoveToCart(chi.URLParam(r, "productId"), func(it wishlist.Item) error {
		item, err := h.cartItem(r.Context(), it.ProductID, "")
		if err != nil {
			return err
		}
		if item.Discontinued || item.StockAvailable <= 0 {
			return errNotPurchasable
		}
		s.Cart.AddItem(item, 1)
		return nil
	})

	writeData(w, r, moveToCartView{
		Moved:    moved,
		Wishlist: newWishlistView(s.Wishlist.Snapshot()),
		Cart:     h.cartView(s.Cart.Snapshot()),
	}, s.Notifications)
}
