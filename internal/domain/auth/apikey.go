package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrUnauthorized is returned for missing, unknown, or mismatched API keys.
var ErrUnauthorized = errors.New("unauthorized")

// ScopeAdmin grants access to admin endpoints (fulfillment transitions).
const ScopeAdmin = "admin"

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key carries the given scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository provides lookup of API keys by their HMAC-SHA256 hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
