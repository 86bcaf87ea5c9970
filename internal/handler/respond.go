package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/craftedbits/storefront/internal/domain/cart"
	"github.com/craftedbits/storefront/internal/domain/discount"
	"github.com/craftedbits/storefront/internal/domain/order"
	"github.com/craftedbits/storefront/internal/domain/product"
	"github.com/craftedbits/storefront/internal/payment"
)

// maxBodyBytes bounds request bodies; the largest legitimate payload here is
// a checkout request with an address.
const maxBodyBytes = 1 << 20

// errorBody is the uniform error response shape.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, errorBody{Code: status, Message: message})
}

// writeDomainError maps a domain error to an HTTP response. Caller errors
// get their message verbatim; infrastructure failures are logged and hidden
// behind a generic 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var ise *order.InsufficientStockError
	switch {
	case errors.Is(err, order.ErrNotFound), errors.Is(err, product.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.As(err, &ise),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrInvalidShippingTier),
		errors.Is(err, order.ErrPaymentNotCompleted),
		errors.Is(err, order.ErrAmountMismatch),
		errors.Is(err, order.ErrAlreadyPaid),
		errors.Is(err, order.ErrOrderCancelled),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, discount.ErrInvalidCode),
		errors.Is(err, discount.ErrExpired),
		errors.Is(err, discount.ErrUsageLimitReached):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrUnavailable):
		writeError(w, r, http.StatusBadGateway, "payment gateway unavailable, try again")
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody decodes a JSON request body into v with a size cap.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
