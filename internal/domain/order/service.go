package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/craftedbits/storefront/internal/domain/cart"
	"github.com/craftedbits/storefront/internal/domain/discount"
	"github.com/craftedbits/storefront/internal/domain/pricing"
	"github.com/craftedbits/storefront/internal/payment"
)

// PlaceOrderRequest holds the input for converting a cart into an order.
// The discount code is advisory input only; every monetary figure is
// computed server-side from the live cart.
type PlaceOrderRequest struct {
	UserID          string
	ShippingAddress Address
	ShippingTier    pricing.ShippingTier
	DiscountCode    string
}

// PlaceOrderResult is returned to the caller for redirect to the payment
// gateway. The cart is not cleared yet; that happens on confirmed payment.
type PlaceOrderResult struct {
	OrderID          string
	GrandTotal       pricing.Quote
	PaymentReference string
}

// Service is the checkout orchestrator: it converts carts into priced,
// immutable orders under atomicity guarantees and reconciles gateway payment
// confirmations against them.
type Service struct {
	carts     *cart.Service
	discounts discount.Validator
	orders    Repository
	gateway   payment.Gateway
	pricing   pricing.Config
	now       func() time.Time
}

// NewService creates a checkout Service with the required dependencies.
func NewService(
	carts *cart.Service,
	discounts discount.Validator,
	orders Repository,
	gateway payment.Gateway,
	pricingCfg pricing.Config,
) *Service {
	return &Service{
		carts:     carts,
		discounts: discounts,
		orders:    orders,
		gateway:   gateway,
		pricing:   pricingCfg,
		now:       time.Now,
	}
}

// PlaceOrder loads the user's cart, prices it authoritatively, and persists
// the order while deducting stock in one serializable transaction. On
// success the order is pending payment and carries a freshly minted gateway
// reference.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if !req.ShippingTier.Valid() {
		return nil, ErrInvalidShippingTier
	}

	view, err := s.carts.Load(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if len(view.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	// Discount validity is recomputed now, at the moment of charge. A rule
	// whose minimum purchase threshold is not met is handled by the pricing
	// engine (treated as absent), so only hard validation errors surface.
	var rule *discount.Rule
	if req.DiscountCode != "" {
		rule, err = s.discounts.Validate(ctx, req.DiscountCode)
		if err != nil {
			return nil, err
		}
	}

	items := make([]pricing.LineItem, len(view.Lines))
	for i, l := range view.Lines {
		items[i] = pricing.LineItem{UnitPrice: l.Product.Price, Quantity: l.Quantity}
	}
	quote := pricing.Compute(items, req.ShippingTier, rule, s.pricing)

	o := &Order{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		ShippingAddress: req.ShippingAddress,
		ShippingTier:    req.ShippingTier,
		Subtotal:        quote.Subtotal,
		DiscountCode:    quote.DiscountCode,
		DiscountAmount:  quote.DiscountAmount,
		ShippingCost:    quote.ShippingCost,
		TaxAmount:       quote.Tax,
		GrandTotal:      quote.GrandTotal,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		CreatedAt:       s.now(),
	}
	o.Lines = make([]Line, len(view.Lines))
	o.CartLineIDs = make([]int64, len(view.Lines))
	for i, l := range view.Lines {
		// Name and price are frozen here; later catalog edits must not
		// change what the customer was charged.
		o.Lines[i] = Line{
			ProductID: l.ProductID,
			Name:      l.Product.Name,
			UnitPrice: l.Product.Price,
			Quantity:  l.Quantity,
		}
		o.CartLineIDs[i] = l.Line.ID
	}

	if err := s.orders.CreateWithStockDeduction(ctx, o); err != nil {
		return nil, err
	}

	// The reference is minted outside the checkout transaction; a failure
	// here leaves a pending order that markFailed can reconcile.
	ref := mintPaymentReference(o.ID, s.now())
	if err := s.orders.SetPaymentReference(ctx, o.ID, ref); err != nil {
		return nil, errors.Wrap(err, "set payment reference")
	}
	o.PaymentReference = ref

	return &PlaceOrderResult{
		OrderID:          o.ID,
		GrandTotal:       quote,
		PaymentReference: ref,
	}, nil
}

// VerifyPayment reconciles the gateway's view of a transaction against the
// stored order. It is idempotent: a second call with the same successful
// reference finds the order already paid and returns it unchanged, with no
// repeated cart-clear or discount-use side effects.
func (s *Service) VerifyPayment(ctx context.Context, orderID, userID, reference string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID || o.PaymentReference == "" || o.PaymentReference != reference {
		return nil, ErrNotFound
	}

	if o.PaymentStatus == PaymentSuccess {
		return o, nil
	}
	if o.Status == StatusCancelled {
		// Cancelled is terminal. Even a genuine gateway success cannot
		// revive the order; the charge has to be reconciled out of band.
		return nil, ErrOrderCancelled
	}

	v, err := s.gateway.VerifyTransaction(ctx, o.PaymentReference)
	if err != nil {
		// Gateway unreachable or timed out: the order stays pending and the
		// client may resubmit verification later.
		return nil, errors.Wrap(err, "verify transaction")
	}

	if v.Status != payment.StatusSuccess {
		if err := s.orders.MarkFailed(ctx, o.ID); err != nil {
			return nil, errors.Wrap(err, "mark order failed")
		}
		return nil, ErrPaymentNotCompleted
	}

	if want := pricing.MinorUnits(o.GrandTotal); v.AmountMinorUnits != want {
		// Structurally valid, successful transaction for the wrong amount.
		// Logged distinctly from ordinary errors for operator review.
		zctx.From(ctx).Warn("payment amount mismatch",
			zap.String("order_id", o.ID),
			zap.String("reference", o.PaymentReference),
			zap.Int64("expected_minor_units", want),
			zap.Int64("reported_minor_units", v.AmountMinorUnits),
		)
		if err := s.orders.MarkFailed(ctx, o.ID); err != nil {
			return nil, errors.Wrap(err, "mark order failed")
		}
		return nil, ErrAmountMismatch
	}

	applied, err := s.orders.ConfirmPayment(ctx, o.ID, o.DiscountCode, o.CartLineIDs)
	if err != nil {
		return nil, errors.Wrap(err, "confirm payment")
	}
	if applied {
		zctx.From(ctx).Info("payment confirmed",
			zap.String("order_id", o.ID),
			zap.String("reference", o.PaymentReference),
		)
	}

	o.PaymentStatus = PaymentSuccess
	o.Status = StatusProcessing
	return o, nil
}

// MarkOrderFailed records a failed payment: status cancelled, payment
// failed, deducted stock returned to the pool. It never overwrites a
// successful payment.
func (s *Service) MarkOrderFailed(ctx context.Context, orderID string) error {
	return s.orders.MarkFailed(ctx, orderID)
}

// GetOrder returns an order owned by userID. Orders belonging to other
// users are reported as not found.
func (s *Service) GetOrder(ctx context.Context, orderID, userID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListOrders returns the user's order history, newest first.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// UpdateStatus applies an admin fulfillment transition.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, next Status) error {
	if !next.Valid() {
		return ErrInvalidTransition
	}
	return s.orders.UpdateStatus(ctx, orderID, next)
}

// mintPaymentReference derives a gateway correlation id from the order id
// and the current time. The orders.payment_reference column is unique, so a
// collision would surface as a constraint violation rather than silently
// correlating two orders.
func mintPaymentReference(orderID string, now time.Time) string {
	return fmt.Sprintf("%.8s-%x", orderID, now.UnixNano())
}
