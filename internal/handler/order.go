package handler

import (
	"net/http"
	"time"

	"github.com/craftedbits/storefront/internal/domain/order"
	"github.com/craftedbits/storefront/internal/domain/pricing"
)

type addressPayload struct {
	Name       string `json:"name"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

func (a addressPayload) valid() bool {
	return a.Name != "" && a.Street != "" && a.City != "" && a.Country != ""
}

type placeOrderRequest struct {
	ShippingAddress addressPayload `json:"shippingAddress"`
	ShippingTier    string         `json:"shippingTier"`
	DiscountCode    string         `json:"discountCode,omitempty"`
}

type placeOrderResponse struct {
	OrderID              string  `json:"orderId"`
	OrderTotal           float64 `json:"orderTotal"`
	OrderTotalMinorUnits int64   `json:"orderTotalMinorUnits"`
	PaymentReference     string  `json:"paymentReference"`
}

type verifyPaymentRequest struct {
	Reference string `json:"reference"`
}

type orderLinePayload struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
}

type orderPayload struct {
	ID               string             `json:"id"`
	Status           string             `json:"status"`
	PaymentStatus    string             `json:"paymentStatus"`
	Subtotal         float64            `json:"subtotal"`
	DiscountCode     string             `json:"discountCode,omitempty"`
	DiscountAmount   float64            `json:"discountAmount"`
	ShippingCost     float64            `json:"shippingCost"`
	TaxAmount        float64            `json:"taxAmount"`
	Total            float64            `json:"total"`
	Lines            []orderLinePayload `json:"lines,omitempty"`
	PaymentReference string             `json:"paymentReference,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
}

type verifyPaymentResponse struct {
	Order orderPayload `json:"order"`
}

func toOrderPayload(o *order.Order) orderPayload {
	p := orderPayload{
		ID:               o.ID,
		Status:           string(o.Status),
		PaymentStatus:    string(o.PaymentStatus),
		Subtotal:         o.Subtotal.InexactFloat64(),
		DiscountCode:     o.DiscountCode,
		DiscountAmount:   o.DiscountAmount.InexactFloat64(),
		ShippingCost:     o.ShippingCost.InexactFloat64(),
		TaxAmount:        o.TaxAmount.InexactFloat64(),
		Total:            o.GrandTotal.InexactFloat64(),
		PaymentReference: o.PaymentReference,
		CreatedAt:        o.CreatedAt,
	}
	for _, l := range o.Lines {
		p.Lines = append(p.Lines, orderLinePayload{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice.InexactFloat64(),
			Quantity:  l.Quantity,
		})
	}
	return p
}

// PlaceOrder converts the caller's cart into a pending order and returns the
// payment reference for the gateway redirect.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.ShippingAddress.valid() {
		writeError(w, r, http.StatusBadRequest, "shipping address incomplete")
		return
	}

	result, err := h.checkout.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserID: UserIDFromContext(r.Context()),
		ShippingAddress: order.Address{
			Name:       req.ShippingAddress.Name,
			Street:     req.ShippingAddress.Street,
			City:       req.ShippingAddress.City,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
		},
		ShippingTier: pricing.ShippingTier(req.ShippingTier),
		DiscountCode: req.DiscountCode,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, placeOrderResponse{
		OrderID:              result.OrderID,
		OrderTotal:           result.GrandTotal.GrandTotal.InexactFloat64(),
		OrderTotalMinorUnits: pricing.MinorUnits(result.GrandTotal.GrandTotal),
		PaymentReference:     result.PaymentReference,
	})
}

// VerifyPayment reconciles a gateway confirmation against the stored order.
// Safe to resubmit: a second call with the same reference is a no-op.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reference == "" {
		writeError(w, r, http.StatusBadRequest, "reference required")
		return
	}

	o, err := h.checkout.VerifyPayment(r.Context(),
		r.PathValue("id"), UserIDFromContext(r.Context()), req.Reference)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, verifyPaymentResponse{Order: toOrderPayload(o)})
}

// GetOrder returns one of the caller's orders with its line snapshots.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.checkout.GetOrder(r.Context(), r.PathValue("id"), UserIDFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderPayload(o))
}

// ListOrders returns the caller's order history, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.checkout.ListOrders(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := make([]orderPayload, len(orders))
	for i := range orders {
		resp[i] = toOrderPayload(&orders[i])
	}
	writeJSON(w, r, http.StatusOK, resp)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus applies an admin fulfillment transition.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.checkout.UpdateStatus(r.Context(), r.PathValue("id"), order.Status(req.Status))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
