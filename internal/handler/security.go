package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/craftedbits/storefront/internal/domain/auth"
)

// userIDKey is the context key for the authenticated user id.
type userIDKey struct{}

// apiKeyInfoKey is the context key for the validated API key info.
type apiKeyInfoKey struct{}

// UserIDFromContext extracts the authenticated user id from the context.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// SecurityHandler authenticates API requests via HMAC-SHA256 hashed API keys
// and extracts the caller identity forwarded by the upstream gateway.
//
// Identity is a trust boundary, not an authentication mechanism: the
// X-User-ID header is accepted as already verified upstream, gated only on
// the service-to-service API key being valid.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{apikeys: apikeys, pepper: pepper}
}

// Authenticate validates the api_key header and requires an X-User-ID. On
// success the user id and key info are stored in the request context.
func (s *SecurityHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := s.validateKey(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeError(w, r, http.StatusUnauthorized, "missing user identity")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		ctx = context.WithValue(ctx, apiKeyInfoKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope is Authenticate plus a scope check on the validated key.
func (s *SecurityHandler) RequireScope(scope string, next http.Handler) http.Handler {
	return s.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := r.Context().Value(apiKeyInfoKey{}).(*auth.APIKeyInfo)
		if !ok || !info.HasScope(scope) {
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// validateKey computes the HMAC-SHA256 of the provided API key, looks it up,
// and performs a constant-time comparison against the stored hash.
func (s *SecurityHandler) validateKey(r *http.Request) (*auth.APIKeyInfo, bool) {
	key := r.Header.Get("api_key")
	if key == "" {
		return nil, false
	}

	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(key))
	hash := mac.Sum(nil)

	info, err := s.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
	if err != nil {
		return nil, false
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, false
	}
	if subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, false
	}

	return info, true
}
