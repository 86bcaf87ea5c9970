package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/craftedbits/storefront/internal/domain/discount"
)

const (
	getDiscountByCodeSQL = `SELECT id, code, discount_type, value, min_purchase,
		max_uses, uses, valid_from, valid_until, description
		FROM discounts WHERE UPPER(code) = UPPER($1) AND active = TRUE`

	incrementDiscountUsesSQL = `UPDATE discounts SET uses = uses + 1 WHERE UPPER(code) = UPPER($1)`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// FindByCode looks up an active discount by its code (case-insensitive).
// Returns discount.ErrInvalidCode when no matching active discount exists.
// The active flag filters killed codes only; temporal and usage validity is
// recomputed by the validator.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Rule, error) {
	rows, err := r.pool.Query(ctx, getDiscountByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanDiscountRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrInvalidCode
		}
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}
	return &rule, nil
}

// IncrementUses atomically increments the usage counter for the given code.
func (r *DiscountRepository) IncrementUses(ctx context.Context, code string) error {
	_, err := r.pool.Exec(ctx, incrementDiscountUsesSQL, code)
	if err != nil {
		return fmt.Errorf("incrementing uses for discount %q: %w", code, err)
	}
	return nil
}

func scanDiscountRule(row pgx.CollectableRow) (discount.Rule, error) {
	var (
		rule         discount.Rule
		discountType string
		value        decimal.Decimal
		minPurchase  *decimal.Decimal
		maxUses      int32
		uses         int32
		validFrom    *time.Time
		validUntil   *time.Time
	)
	err := row.Scan(
		&rule.ID, &rule.Code, &discountType, &value, &minPurchase,
		&maxUses, &uses, &validFrom, &validUntil, &rule.Description,
	)
	rule.Type = discount.Type(discountType)
	rule.Value = value
	rule.MinPurchase = minPurchase
	rule.MaxUses = int(maxUses)
	rule.Uses = int(uses)
	rule.ValidFrom = validFrom
	rule.ValidUntil = validUntil
	return rule, err
}
