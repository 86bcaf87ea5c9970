package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Validator checks whether a discount code is applicable right now.
// It does not evaluate minimum purchase thresholds; those depend on the
// cart's subtotal and are checked by the pricing caller.
type Validator interface {
	Validate(ctx context.Context, code string) (*Rule, error)
}

// RepoValidator implements Validator by looking up discount rules from a
// Repository and re-validating the temporal and usage window on every call.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the rule for the given code and checks temporal validity
// and usage headroom against the current moment. The stored status column is
// deliberately ignored here; only the window and counters decide.
//
// Validate never increments the usage counter. That happens once, inside the
// transaction that confirms payment, so abandoned checkouts do not count
// against the usage cap.
func (v *RepoValidator) Validate(ctx context.Context, code string) (*Rule, error) {
	rule, err := v.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrInvalidCode) {
			return nil, ErrInvalidCode
		}
		return nil, errors.Wrap(err, "lookup discount")
	}

	now := v.now()

	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return nil, ErrExpired
	}
	if rule.ValidUntil != nil && !now.Before(*rule.ValidUntil) {
		return nil, ErrExpired
	}

	if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
		return nil, ErrUsageLimitReached
	}

	return rule, nil
}
