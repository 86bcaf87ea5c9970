package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/craftedbits/storefront/internal/domain/pricing"
)

// Status is the fulfillment state of an order.
type Status string

const (
	// StatusPending means the order is created but not yet paid.
	StatusPending Status = "pending"
	// StatusProcessing means payment is confirmed and fulfillment can begin.
	StatusProcessing Status = "processing"
	// StatusShipped means the order has left the warehouse.
	StatusShipped Status = "shipped"
	// StatusDelivered is terminal: the customer received the order.
	StatusDelivered Status = "delivered"
	// StatusCancelled is terminal: payment failed or an admin cancelled.
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known fulfillment status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the fulfillment state machine permits
// moving from s to next. Delivered and Cancelled are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusCancelled
	case StatusProcessing:
		return next == StatusShipped || next == StatusCancelled
	case StatusShipped:
		return next == StatusDelivered
	default:
		return false
	}
}

// PaymentStatus is the payment substate of an order. It transitions away
// from pending exactly once.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

// Sentinel errors for checkout validation.
var (
	// ErrEmptyCart is returned when checkout is attempted with no cart lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNotFound is returned when an order does not exist or does not belong
	// to the caller. Ownership failures deliberately look identical to
	// absence so other users' orders never leak.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidShippingTier is returned for an unknown shipping tier.
	ErrInvalidShippingTier = errors.New("invalid shipping tier")
	// ErrPaymentNotCompleted is returned when the gateway reports a
	// non-success transaction status.
	ErrPaymentNotCompleted = errors.New("payment not completed")
	// ErrAmountMismatch is returned when the gateway-reported paid amount
	// differs from the order's grand total. Treated as a fraud signal, not a
	// data error: the order is marked failed.
	ErrAmountMismatch = errors.New("paid amount does not match order total")
	// ErrAlreadyPaid is returned when markFailed would overwrite a
	// successful payment. That transition is never allowed.
	ErrAlreadyPaid = errors.New("order is already paid")
	// ErrOrderCancelled is returned when payment verification targets an
	// order that already reached the cancelled state. Cancelled is terminal;
	// a late gateway success must not bring the order back.
	ErrOrderCancelled = errors.New("order is cancelled")
	// ErrInvalidTransition is returned for fulfillment status updates the
	// state machine does not permit.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// InsufficientStockError indicates a line wanted more units than the product
// has. The whole checkout aborts; no partial deduction survives.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Address is the shipping address snapshot frozen onto the order.
type Address struct {
	Name       string
	Street     string
	City       string
	PostalCode string
	Country    string
}

// Line is a frozen copy of (product, name, price, quantity) taken at order
// creation. It is never recomputed from current catalog state.
type Line struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Order is the immutable financial record of a checkout. After creation only
// Status, PaymentStatus, and PaymentReference change, each through a single
// dedicated repository operation.
type Order struct {
	ID               string
	UserID           string
	Lines            []Line
	ShippingAddress  Address
	ShippingTier     pricing.ShippingTier
	Subtotal         decimal.Decimal
	DiscountCode     string
	DiscountAmount   decimal.Decimal
	ShippingCost     decimal.Decimal
	TaxAmount        decimal.Decimal
	GrandTotal       decimal.Decimal
	Status           Status
	PaymentStatus    PaymentStatus
	PaymentReference string

	// CartLineIDs are the cart line rows snapshotted at checkout time.
	// Payment confirmation deletes exactly these rows, never the whole
	// current cart, so lines added after checkout began survive.
	CartLineIDs []int64

	CreatedAt time.Time
}

// Repository defines persistence for orders, including the two atomic units
// of work the checkout protocol requires.
type Repository interface {
	// CreateWithStockDeduction atomically re-checks and decrements stock for
	// every line and inserts the order with its line snapshots, under
	// serializable isolation. Returns *InsufficientStockError (and persists
	// nothing) when any line exceeds available stock.
	CreateWithStockDeduction(ctx context.Context, o *Order) error

	// SetPaymentReference persists the minted gateway correlation id.
	SetPaymentReference(ctx context.Context, orderID, reference string) error

	GetByID(ctx context.Context, orderID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)

	// ConfirmPayment atomically flips payment_status pending->success and
	// status->processing, deletes the snapshotted cart lines, and increments
	// the discount usage counter (when discountCode is set). It reports
	// applied=false without touching anything when the order is already
	// paid, making repeated confirmation a safe no-op.
	ConfirmPayment(ctx context.Context, orderID, discountCode string, cartLineIDs []int64) (applied bool, err error)

	// MarkFailed flips payment_status to failed and status to cancelled,
	// restocking the deducted quantities in the same transaction. Calling it
	// on an already-failed order is a no-op; calling it on a paid order
	// returns ErrAlreadyPaid.
	MarkFailed(ctx context.Context, orderID string) error

	// UpdateStatus applies an admin fulfillment transition. The current
	// status is re-read inside the update so concurrent admins cannot skip
	// states; illegal transitions return ErrInvalidTransition.
	UpdateStatus(ctx context.Context, orderID string, next Status) error
}
