package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftedbits/storefront/internal/domain/cart"
)

const (
	linesForUserSQL = `SELECT id, user_id, product_id, quantity
		FROM cart_lines WHERE user_id = $1 ORDER BY id`

	upsertCartLineSQL = `INSERT INTO cart_lines (user_id, product_id, quantity, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()`

	deleteCartLineSQL = `DELETE FROM cart_lines WHERE user_id = $1 AND product_id = $2`

	clearCartSQL = `DELETE FROM cart_lines WHERE user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// LinesForUser returns the user's stored cart lines in insertion order.
func (r *CartRepository) LinesForUser(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx, linesForUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart lines for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanCartLine)
}

// Upsert sets the quantity for a (user, product) pair. Concurrent upserts
// for the same pair race with last write wins; no stronger guarantee is
// needed for single-owner cart rows.
func (r *CartRepository) Upsert(ctx context.Context, userID, productID string, quantity int) error {
	_, err := r.pool.Exec(ctx, upsertCartLineSQL, userID, productID, quantity)
	if err != nil {
		return fmt.Errorf("upserting cart line (%q, %q): %w", userID, productID, err)
	}
	return nil
}

// Delete removes a single line. Deleting an absent line is a no-op.
func (r *CartRepository) Delete(ctx context.Context, userID, productID string) error {
	_, err := r.pool.Exec(ctx, deleteCartLineSQL, userID, productID)
	if err != nil {
		return fmt.Errorf("deleting cart line (%q, %q): %w", userID, productID, err)
	}
	return nil
}

// Clear removes every line in the user's cart.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, clearCartSQL, userID)
	if err != nil {
		return fmt.Errorf("clearing cart for user %q: %w", userID, err)
	}
	return nil
}

func scanCartLine(row pgx.CollectableRow) (cart.Line, error) {
	var (
		l   cart.Line
		qty int32
	)
	err := row.Scan(&l.ID, &l.UserID, &l.ProductID, &qty)
	l.Quantity = int(qty)
	return l, err
}
