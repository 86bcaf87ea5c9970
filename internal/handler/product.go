package handler

import (
	"net/http"

	"github.com/craftedbits/storefront/internal/domain/product"
)

type productResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	AvailableStock int     `json:"availableStock"`
	Category       string  `json:"category"`
	Brand          string  `json:"brand"`
}

func toProductResponse(p product.Product) productResponse {
	return productResponse{
		ID:             p.ID,
		Name:           p.Name,
		Price:          p.Price.InexactFloat64(),
		AvailableStock: p.AvailableStock,
		Category:       p.Category,
		Brand:          p.Brand,
	}
}

// ListProducts returns the full catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// GetProduct returns a single product by id.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toProductResponse(*p))
}
