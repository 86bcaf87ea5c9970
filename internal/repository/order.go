package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/craftedbits/storefront/internal/domain/order"
	"github.com/craftedbits/storefront/internal/domain/pricing"
)

const (
	deductStockSQL = `UPDATE products SET available_stock = available_stock - $2
		WHERE id = $1 AND available_stock >= $2
		RETURNING available_stock`

	currentStockSQL = `SELECT available_stock FROM products WHERE id = $1`

	restockSQL = `UPDATE products p SET available_stock = p.available_stock + l.quantity
		FROM order_lines l
		WHERE l.order_id = $1 AND p.id = l.product_id`

	insertOrderSQL = `INSERT INTO orders (id, user_id, subtotal, discount_code, discount_amount,
		shipping_tier, shipping_cost, tax_amount, grand_total, status, payment_status,
		ship_name, ship_street, ship_city, ship_postal_code, ship_country,
		cart_line_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	insertOrderLineSQL = `INSERT INTO order_lines (order_id, product_id, name, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5)`

	setPaymentReferenceSQL = `UPDATE orders SET payment_reference = $2 WHERE id = $1`

	getOrderSQL = `SELECT id, user_id, subtotal, discount_code, discount_amount,
		shipping_tier, shipping_cost, tax_amount, grand_total, status, payment_status,
		payment_reference, ship_name, ship_street, ship_city, ship_postal_code,
		ship_country, cart_line_ids, created_at
		FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT id, user_id, subtotal, discount_code, discount_amount,
		shipping_tier, shipping_cost, tax_amount, grand_total, status, payment_status,
		payment_reference, ship_name, ship_street, ship_city, ship_postal_code,
		ship_country, cart_line_ids, created_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	getOrderLinesSQL = `SELECT product_id, name, unit_price, quantity
		FROM order_lines WHERE order_id = $1 ORDER BY product_id`

	confirmPaymentSQL = `UPDATE orders SET payment_status = 'success', status = 'processing'
		WHERE id = $1 AND payment_status = 'pending' AND status <> 'cancelled'`

	markFailedSQL = `UPDATE orders SET payment_status = 'failed', status = 'cancelled'
		WHERE id = $1 AND payment_status = 'pending'`

	paymentStateSQL = `SELECT payment_status, status FROM orders WHERE id = $1`

	failPendingPaymentSQL = `UPDATE orders SET payment_status = 'failed'
		WHERE id = $1 AND payment_status = 'pending'`

	deleteCartLinesByIDSQL = `DELETE FROM cart_lines WHERE id = ANY($1)`

	incrementUsesByCodeSQL = `UPDATE discounts SET uses = uses + 1 WHERE UPPER(code) = UPPER($1)`

	orderStatusForUpdateSQL = `SELECT status FROM orders WHERE id = $1 FOR UPDATE`

	setOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. The two
// checkout units of work (stock deduction + creation, confirmation + cart
// clear) each run in a single transaction so no half-applied state survives
// a failure.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreateWithStockDeduction deducts stock for every line and inserts the
// order with its line snapshots in one serializable transaction. The
// conditional UPDATE both checks and decrements stock, so two concurrent
// checkouts against the same product cannot both succeed when combined
// demand exceeds what is available.
func (r *OrderRepository) CreateWithStockDeduction(ctx context.Context, o *order.Order) error {
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		for _, l := range o.Lines {
			var remaining int32
			err := tx.QueryRow(ctx, deductStockSQL, l.ProductID, l.Quantity).Scan(&remaining)
			if err == nil {
				continue
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("deducting stock for product %q: %w", l.ProductID, err)
			}

			// The conditional update matched nothing: either stock is short
			// or the product vanished since the cart was loaded. Report the
			// observed availability; the transaction rolls back either way.
			available := 0
			var current int32
			if err := tx.QueryRow(ctx, currentStockSQL, l.ProductID).Scan(&current); err == nil {
				available = int(current)
			}
			return &order.InsufficientStockError{
				ProductID: l.ProductID,
				Requested: l.Quantity,
				Available: available,
			}
		}

		_, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, o.UserID, o.Subtotal, nullable(o.DiscountCode), o.DiscountAmount,
			string(o.ShippingTier), o.ShippingCost, o.TaxAmount, o.GrandTotal,
			string(o.Status), string(o.PaymentStatus),
			o.ShippingAddress.Name, o.ShippingAddress.Street, o.ShippingAddress.City,
			o.ShippingAddress.PostalCode, o.ShippingAddress.Country,
			o.CartLineIDs, o.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("creating order %q: %w", o.ID, err)
		}

		for _, l := range o.Lines {
			if _, err := tx.Exec(ctx, insertOrderLineSQL,
				o.ID, l.ProductID, l.Name, l.UnitPrice, l.Quantity,
			); err != nil {
				return fmt.Errorf("creating order line (%q, %q): %w", o.ID, l.ProductID, err)
			}
		}
		return nil
	})

	var ise *order.InsufficientStockError
	if errors.As(err, &ise) {
		return ise
	}
	return err
}

// SetPaymentReference persists the minted gateway correlation id.
func (r *OrderRepository) SetPaymentReference(ctx context.Context, orderID, reference string) error {
	_, err := r.pool.Exec(ctx, setPaymentReferenceSQL, orderID, reference)
	if err != nil {
		return fmt.Errorf("setting payment reference for order %q: %w", orderID, err)
	}
	return nil
}

// GetByID returns an order with its line snapshots.
func (r *OrderRepository) GetByID(ctx context.Context, orderID string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}

	lineRows, err := r.pool.Query(ctx, getOrderLinesSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting order lines for %q: %w", orderID, err)
	}
	o.Lines, err = pgx.CollectRows(lineRows, scanOrderLine)
	if err != nil {
		return nil, fmt.Errorf("getting order lines for %q: %w", orderID, err)
	}

	return &o, nil
}

// ListByUser returns a user's orders, newest first, without line snapshots.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ConfirmPayment flips the order to paid/processing, deletes exactly the
// cart lines snapshotted at checkout, and counts the discount use, all in
// one transaction. The guarded UPDATE makes the whole operation idempotent:
// if the order is already paid nothing matches and nothing else runs.
func (r *OrderRepository) ConfirmPayment(ctx context.Context, orderID, discountCode string, cartLineIDs []int64) (bool, error) {
	applied := false
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, confirmPaymentSQL, orderID)
		if err != nil {
			return fmt.Errorf("confirming payment for order %q: %w", orderID, err)
		}
		if tag.RowsAffected() == 0 {
			payment, status, err := currentOrderState(ctx, tx, orderID)
			if err != nil {
				return err
			}
			if payment == order.PaymentSuccess {
				return nil // already confirmed, safe no-op
			}
			if status == order.StatusCancelled {
				// Cancelled orders never come back, not even for a real
				// gateway success.
				return errors.Wrapf(order.ErrOrderCancelled, "order %s", orderID)
			}
			return errors.Wrapf(order.ErrPaymentNotCompleted, "order %s payment already %s", orderID, payment)
		}
		applied = true

		if len(cartLineIDs) > 0 {
			if _, err := tx.Exec(ctx, deleteCartLinesByIDSQL, cartLineIDs); err != nil {
				return fmt.Errorf("clearing checked-out cart lines for order %q: %w", orderID, err)
			}
		}

		if discountCode != "" {
			if _, err := tx.Exec(ctx, incrementUsesByCodeSQL, discountCode); err != nil {
				return fmt.Errorf("incrementing discount uses for %q: %w", discountCode, err)
			}
		}
		return nil
	})
	return applied, err
}

// MarkFailed flips the order to failed/cancelled and returns the deducted
// stock to the pool. The restock runs only when this call performs the
// pending->failed transition, so repeated calls cannot restock twice, and a
// successful payment is never overwritten.
func (r *OrderRepository) MarkFailed(ctx context.Context, orderID string) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, markFailedSQL, orderID)
		if err != nil {
			return fmt.Errorf("marking order %q failed: %w", orderID, err)
		}
		if tag.RowsAffected() == 0 {
			payment, _, err := currentOrderState(ctx, tx, orderID)
			if err != nil {
				return err
			}
			if payment == order.PaymentSuccess {
				return order.ErrAlreadyPaid
			}
			return nil // already failed, no-op
		}

		if _, err := tx.Exec(ctx, restockSQL, orderID); err != nil {
			return fmt.Errorf("restocking order %q: %w", orderID, err)
		}
		return nil
	})
}

// UpdateStatus applies a fulfillment transition. The current status is read
// under a row lock so concurrent admins cannot skip states.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, next order.Status) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var current string
		if err := tx.QueryRow(ctx, orderStatusForUpdateSQL, orderID).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return order.ErrNotFound
			}
			return fmt.Errorf("reading status of order %q: %w", orderID, err)
		}

		if !order.Status(current).CanTransitionTo(next) {
			return errors.Wrapf(order.ErrInvalidTransition, "%s -> %s", current, next)
		}

		if _, err := tx.Exec(ctx, setOrderStatusSQL, orderID, string(next)); err != nil {
			return fmt.Errorf("updating status of order %q: %w", orderID, err)
		}

		// Cancelling an order whose payment is still pending closes out the
		// payment and returns the deducted stock, same as a failed payment
		// would. Paid orders keep their stock; refunds are out of band.
		if next == order.StatusCancelled {
			tag, err := tx.Exec(ctx, failPendingPaymentSQL, orderID)
			if err != nil {
				return fmt.Errorf("failing pending payment of order %q: %w", orderID, err)
			}
			if tag.RowsAffected() > 0 {
				if _, err := tx.Exec(ctx, restockSQL, orderID); err != nil {
					return fmt.Errorf("restocking order %q: %w", orderID, err)
				}
			}
		}
		return nil
	})
}

func currentOrderState(ctx context.Context, tx pgx.Tx, orderID string) (order.PaymentStatus, order.Status, error) {
	var payment, status string
	if err := tx.QueryRow(ctx, paymentStateSQL, orderID).Scan(&payment, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", order.ErrNotFound
		}
		return "", "", fmt.Errorf("reading state of order %q: %w", orderID, err)
	}
	return order.PaymentStatus(payment), order.Status(status), nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		discountCode  *string
		paymentRef    *string
		tier          string
		status        string
		paymentStatus string
		subtotal      decimal.Decimal
		discountAmt   decimal.Decimal
		shipping      decimal.Decimal
		tax           decimal.Decimal
		total         decimal.Decimal
		lineIDs       []int64
		createdAt     time.Time
	)
	err := row.Scan(
		&o.ID, &o.UserID, &subtotal, &discountCode, &discountAmt,
		&tier, &shipping, &tax, &total, &status, &paymentStatus,
		&paymentRef, &o.ShippingAddress.Name, &o.ShippingAddress.Street,
		&o.ShippingAddress.City, &o.ShippingAddress.PostalCode,
		&o.ShippingAddress.Country, &lineIDs, &createdAt,
	)
	if discountCode != nil {
		o.DiscountCode = *discountCode
	}
	if paymentRef != nil {
		o.PaymentReference = *paymentRef
	}
	o.Subtotal = subtotal
	o.DiscountAmount = discountAmt
	o.ShippingTier = pricing.ShippingTier(tier)
	o.ShippingCost = shipping
	o.TaxAmount = tax
	o.GrandTotal = total
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.CartLineIDs = lineIDs
	o.CreatedAt = createdAt
	return o, err
}

func scanOrderLine(row pgx.CollectableRow) (order.Line, error) {
	var (
		l     order.Line
		price decimal.Decimal
		qty   int32
	)
	err := row.Scan(&l.ProductID, &l.Name, &price, &qty)
	l.UnitPrice = price
	l.Quantity = int(qty)
	return l, err
}
