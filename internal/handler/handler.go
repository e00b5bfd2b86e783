// Package handler exposes the storefront over HTTP. Bodies are JSON and every
// response uses the {success,data} or {success,message,error} envelope.
package handler

import (
	"net/http"
	"time"

	"github.com/xenking/shopcart/internal/domain/auth"
	"github.com/xenking/shopcart/internal/domain/cart"
	"github.com/xenking/shopcart/internal/domain/checkout"
	"github.com/xenking/shopcart/internal/domain/order"
)

// Session lookup keys.
const (
	SessionCookie = "session_id"
	SessionHeader = "X-Session-ID"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Services are the domain services behind the routes.
type Services struct {
	Auth     *auth.Service
	Carts    *cart.Service
	Checkout *checkout.Service
	Orders   *order.Service
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// SecureCookie marks the session cookie Secure.
	SecureCookie bool
}

// Handler serves the API routes.
type Handler struct {
	Services
	cfg Config
	now func() time.Time
}

// New constructs a Handler.
func New(cfg Config, s Services) *Handler {
	return &Handler{Services: s, cfg: cfg, now: time.Now}
}

// Register adds all API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions/{shop_id}", h.startSession)

	mux.Handle("GET /api/cart/{shop_id}", h.session(h.getCart))
	mux.Handle("POST /api/cart/{shop_id}/apply-coupon", h.session(h.applyCoupon))
	mux.Handle("DELETE /api/cart/{shop_id}/remove-coupon", h.session(h.removeCoupon))
	mux.Handle("DELETE /api/cart/{shop_id}", h.session(h.clearCart))
	mux.Handle("POST /api/cart/{shop_id}/{product_id}", h.session(h.addItem))
	mux.Handle("PUT /api/cart/{shop_id}/{product_id}", h.session(h.updateItem))
	mux.Handle("DELETE /api/cart/{shop_id}/{product_id}", h.session(h.removeItem))

	mux.Handle("POST /api/checkout/{shop_id}", h.session(h.checkout))

	mux.HandleFunc("POST /api/admin/{shop_id}/login", h.adminLogin)
	mux.Handle("GET /api/admin/{shop_id}/orders", h.admin(h.listOrders))
	mux.Handle("PATCH /api/admin/{shop_id}/orders/{order_id}", h.admin(h.updateOrderStatus))
}
