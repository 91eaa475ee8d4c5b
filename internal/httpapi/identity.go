package httpapi

import (
	"net/http"
)

type identityView struct {
	UserID        string       `json:"userId,omitempty"`
	Authenticated bool         `json:"authenticated"`
	Wishlist      wishlistView `json:"wishlist"`
}

func (h *Handler) writeIdentity(w http.ResponseWriter, r *http.Request, withNotifications bool) {
	s := h.session(r)
	id := s.Identity.Current()
	v := identityView{
		UserID:        id.UserID,
		Authenticated: id.Authenticated(),
		Wishlist:      newWishlistView(s.Wishlist.Snapshot()),
	}
	if withNotifications {
		writeData(w, r, v, s.Notifications)
		return
	}
	writeData(w, r, v, nil)
}

// GetIdentity handles GET /api/identity.
func (h *Handler) GetIdentity(w http.ResponseWriter, r *http.Request) {
	h.writeIdentity(w, r, false)
}

type loginRequest struct {
	UserID string `json:"userId" validate:"required,max=128"`
}

// Login handles PUT /api/identity. The wishlist switches to the user's own
// list before the response is written.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.session(r).Login(req.UserID)
	h.writeIdentity(w, r, true)
}

// Logout handles DELETE /api/identity.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.session(r).Logout()
	h.writeIdentity(w, r, true)
}
