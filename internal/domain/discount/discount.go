package discount

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercentage reduces the subtotal by a percentage of its value.
	TypePercentage Type = "percentage"
	// TypeFixed reduces the subtotal by a fixed amount, capped at the subtotal.
	TypeFixed Type = "fixed"
)

var (
	// ErrInvalidCode is returned when a discount code is not found or inactive.
	ErrInvalidCode = errors.New("invalid discount code")
	// ErrExpired is returned when a discount is outside its validity window.
	ErrExpired = errors.New("discount expired")
	// ErrUsageLimitReached is returned when a discount has exhausted its allowed uses.
	ErrUsageLimitReached = errors.New("discount usage limit reached")
)

// Rule defines a discount's behaviour and eligibility constraints.
//
// The stored active flag is a kill switch and indexing convenience only:
// temporal validity and usage headroom are always recomputed from ValidFrom,
// ValidUntil, MaxUses, and Uses at the moment a financial decision is made.
type Rule struct {
	ID          string
	Code        string
	Type        Type
	Value       decimal.Decimal
	MinPurchase *decimal.Decimal
	MaxUses     int
	Uses        int
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	Description string
}

// MeetsMinimumPurchase reports whether the given subtotal satisfies the
// rule's minimum purchase threshold. Rules without a threshold always pass.
// The check is price-context-dependent and therefore evaluated by the
// pricing caller, not during code validation.
func (r *Rule) MeetsMinimumPurchase(subtotal decimal.Decimal) bool {
	return r.MinPurchase == nil || subtotal.GreaterThanOrEqual(*r.MinPurchase)
}

// NormalizeCode canonicalizes a user-supplied discount code for lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides lookup and mutation of discount rules.
// IncrementUses is called exactly once per successfully paid order, inside
// the payment confirmation transaction.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
	IncrementUses(ctx context.Context, code string) error
}
