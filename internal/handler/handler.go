// Package handler maps HTTP requests onto the domain services. The core
// stays transport-agnostic; everything HTTP-shaped (status codes, JSON
// bodies, header-derived identity) lives here.
package handler

import (
	"net/http"

	"github.com/craftedbits/storefront/internal/domain/cart"
	"github.com/craftedbits/storefront/internal/domain/order"
	"github.com/craftedbits/storefront/internal/domain/product"
)

// Handler serves the storefront API, delegating business logic to the
// injected domain services.
type Handler struct {
	products product.Repository
	carts    *cart.Service
	checkout *order.Service
}

// New constructs a Handler with the required domain dependencies.
func New(products product.Repository, carts *cart.Service, checkout *order.Service) *Handler {
	return &Handler{
		products: products,
		carts:    carts,
		checkout: checkout,
	}
}

// Routes registers all API routes on mux. Authentication wraps every route;
// admin routes additionally require the admin scope.
func (h *Handler) Routes(mux *http.ServeMux, sec *SecurityHandler) {
	authed := sec.Authenticate

	mux.Handle("GET /api/products", authed(http.HandlerFunc(h.ListProducts)))
	mux.Handle("GET /api/products/{id}", authed(http.HandlerFunc(h.GetProduct)))

	mux.Handle("GET /api/cart", authed(http.HandlerFunc(h.GetCart)))
	mux.Handle("PUT /api/cart/items", authed(http.HandlerFunc(h.UpsertCartLine)))
	mux.Handle("DELETE /api/cart", authed(http.HandlerFunc(h.ClearCart)))

	mux.Handle("POST /api/checkout", authed(http.HandlerFunc(h.PlaceOrder)))
	mux.Handle("POST /api/checkout/{id}/verify", authed(http.HandlerFunc(h.VerifyPayment)))

	mux.Handle("GET /api/orders", authed(http.HandlerFunc(h.ListOrders)))
	mux.Handle("GET /api/orders/{id}", authed(http.HandlerFunc(h.GetOrder)))

	mux.Handle("PATCH /api/admin/orders/{id}/status",
		sec.RequireScope("admin", http.HandlerFunc(h.UpdateOrderStatus)))
}
