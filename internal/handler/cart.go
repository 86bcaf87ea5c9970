package handler

import (
	"net/http"
)

type cartLineResponse struct {
	ProductID    string  `json:"productId"`
	Name         string  `json:"name"`
	UnitPrice    float64 `json:"unitPrice"`
	Quantity     int     `json:"quantity"`
	LineSubtotal float64 `json:"lineSubtotal"`
}

type cartResponse struct {
	Lines    []cartLineResponse `json:"lines"`
	Subtotal float64            `json:"subtotal"`
}

type upsertCartLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// GetCart returns the caller's cart with live prices.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.Load(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := cartResponse{
		Lines:    make([]cartLineResponse, len(view.Lines)),
		Subtotal: view.Subtotal.InexactFloat64(),
	}
	for i, l := range view.Lines {
		resp.Lines[i] = cartLineResponse{
			ProductID:    l.ProductID,
			Name:         l.Product.Name,
			UnitPrice:    l.Product.Price.InexactFloat64(),
			Quantity:     l.Quantity,
			LineSubtotal: l.Subtotal.InexactFloat64(),
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// UpsertCartLine sets a line quantity; zero or negative removes the line.
func (h *Handler) UpsertCartLine(w http.ResponseWriter, r *http.Request) {
	var req upsertCartLineRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		writeError(w, r, http.StatusBadRequest, "productId required")
		return
	}

	err := h.carts.UpsertLine(r.Context(), UserIDFromContext(r.Context()), req.ProductID, req.Quantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearCart deletes every line in the caller's cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), UserIDFromContext(r.Context())); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
