package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftedbits/storefront/internal/domain/cart"
	"github.com/craftedbits/storefront/internal/domain/discount"
	"github.com/craftedbits/storefront/internal/domain/pricing"
	"github.com/craftedbits/storefront/internal/domain/product"
	"github.com/craftedbits/storefront/internal/payment"
)

// --- Mock implementations ---

type mockCartRepo struct {
	lines map[string][]cart.Line
}

func (m *mockCartRepo) LinesForUser(_ context.Context, userID string) ([]cart.Line, error) {
	return m.lines[userID], nil
}

func (m *mockCartRepo) Upsert(context.Context, string, string, int) error { return nil }
func (m *mockCartRepo) Delete(context.Context, string, string) error      { return nil }
func (m *mockCartRepo) Clear(context.Context, string) error               { return nil }

type mockProductRepo struct {
	byID map[string]product.Product
}

func (m *mockProductRepo) List(context.Context) ([]product.Product, error) { return nil, nil }

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockValidator struct {
	rule  *discount.Rule
	err   error
	calls int
}

func (m *mockValidator) Validate(context.Context, string) (*discount.Rule, error) {
	m.calls++
	return m.rule, m.err
}

type mockOrderRepo struct {
	created   *Order
	createErr error

	byID map[string]*Order

	references map[string]string
	refErr     error

	confirmCalls    int
	confirmedCode   string
	confirmedLines  []int64
	confirmApplied  bool
	confirmErr      error
	markFailedCalls int
	markFailedErr   error

	updatedStatus Status
	updateErr     error
}

func (m *mockOrderRepo) CreateWithStockDeduction(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = o
	if m.byID == nil {
		m.byID = make(map[string]*Order)
	}
	m.byID[o.ID] = o
	return nil
}

func (m *mockOrderRepo) SetPaymentReference(_ context.Context, orderID, reference string) error {
	if m.refErr != nil {
		return m.refErr
	}
	if m.references == nil {
		m.references = make(map[string]string)
	}
	m.references[orderID] = reference
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, orderID string) (*Order, error) {
	o, ok := m.byID[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string) ([]Order, error) {
	var out []Order
	for _, o := range m.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) ConfirmPayment(_ context.Context, orderID, discountCode string, cartLineIDs []int64) (bool, error) {
	m.confirmCalls++
	m.confirmedCode = discountCode
	m.confirmedLines = cartLineIDs
	if m.confirmErr != nil {
		return false, m.confirmErr
	}
	if o, ok := m.byID[orderID]; ok && m.confirmApplied {
		o.PaymentStatus = PaymentSuccess
		o.Status = StatusProcessing
	}
	return m.confirmApplied, nil
}

func (m *mockOrderRepo) MarkFailed(_ context.Context, orderID string) error {
	m.markFailedCalls++
	if m.markFailedErr != nil {
		return m.markFailedErr
	}
	if o, ok := m.byID[orderID]; ok {
		o.PaymentStatus = PaymentFailed
		o.Status = StatusCancelled
	}
	return nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, _ string, next Status) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updatedStatus = next
	return nil
}

type mockGateway struct {
	verification *payment.Verification
	err          error
	calls        int
}

func (m *mockGateway) VerifyTransaction(context.Context, string) (*payment.Verification, error) {
	m.calls++
	return m.verification, m.err
}

// --- Helpers ---

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testPricing() pricing.Config {
	return pricing.Config{
		TaxRate:               dec("0.08"),
		FreeShippingThreshold: dec("100"),
		StandardShippingRate:  dec("5.99"),
		ExpressShippingRate:   dec("25.00"),
	}
}

type fixture struct {
	carts     *mockCartRepo
	products  *mockProductRepo
	validator *mockValidator
	orders    *mockOrderRepo
	gateway   *mockGateway
	svc       *Service
}

func newFixture() *fixture {
	f := &fixture{
		carts: &mockCartRepo{lines: map[string][]cart.Line{
			"u1": {
				{ID: 11, UserID: "u1", ProductID: "p1", Quantity: 2},
			},
		}},
		products: &mockProductRepo{byID: map[string]product.Product{
			"p1": {ID: "p1", Name: "Widget", Price: dec("50.00"), AvailableStock: 10},
		}},
		validator: &mockValidator{},
		orders:    &mockOrderRepo{confirmApplied: true},
		gateway:   &mockGateway{},
	}
	cartSvc := cart.NewService(f.carts, f.products)
	f.svc = NewService(cartSvc, f.validator, f.orders, f.gateway, testPricing())
	return f
}

func placeOrder(t *testing.T, f *fixture) *PlaceOrderResult {
	t.Helper()
	res, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:       "u1",
		ShippingTier: pricing.TierStandard,
		ShippingAddress: Address{
			Name: "A Customer", Street: "1 Main St", City: "Springfield",
			PostalCode: "12345", Country: "US",
		},
	})
	require.NoError(t, err)
	return res
}

// --- PlaceOrder ---

func TestPlaceOrder_Success(t *testing.T) {
	f := newFixture()

	res := placeOrder(t, f)

	require.NotNil(t, f.orders.created)
	o := f.orders.created
	assert.Equal(t, res.OrderID, o.ID)
	assert.True(t, dec("100.00").Equal(o.Subtotal))
	assert.True(t, o.ShippingCost.IsZero(), "free shipping at threshold")
	assert.True(t, dec("8.00").Equal(o.TaxAmount))
	assert.True(t, dec("108.00").Equal(o.GrandTotal))
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)

	// Snapshots: frozen line prices and cart line ids.
	require.Len(t, o.Lines, 1)
	assert.Equal(t, "Widget", o.Lines[0].Name)
	assert.True(t, dec("50.00").Equal(o.Lines[0].UnitPrice))
	assert.Equal(t, []int64{11}, o.CartLineIDs)

	assert.NotEmpty(t, res.PaymentReference)
	assert.Equal(t, res.PaymentReference, f.orders.references[o.ID])
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := newFixture()
	f.carts.lines = map[string][]cart.Line{}

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:       "u1",
		ShippingTier: pricing.TierStandard,
	})
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Nil(t, f.orders.created)
}

func TestPlaceOrder_InvalidShippingTier(t *testing.T) {
	f := newFixture()

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:       "u1",
		ShippingTier: "overnight",
	})
	require.ErrorIs(t, err, ErrInvalidShippingTier)
}

func TestPlaceOrder_DiscountApplied(t *testing.T) {
	f := newFixture()
	f.validator.rule = &discount.Rule{
		Code: "SAVE10", Type: discount.TypePercentage, Value: dec("10"),
	}

	res, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:       "u1",
		ShippingTier: pricing.TierStandard,
		DiscountCode: "SAVE10",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.validator.calls)

	// 100 - 10 = 90, below the free shipping threshold, so shipping applies.
	o := f.orders.created
	assert.True(t, dec("10.00").Equal(o.DiscountAmount))
	assert.Equal(t, "SAVE10", o.DiscountCode)
	assert.True(t, dec("5.99").Equal(o.ShippingCost))
	assert.True(t, dec("103.67").Equal(res.GrandTotal.GrandTotal))
}

func TestPlaceOrder_InvalidDiscountRejects(t *testing.T) {
	f := newFixture()
	f.validator.err = discount.ErrExpired

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:       "u1",
		ShippingTier: pricing.TierStandard,
		DiscountCode: "OLD",
	})
	require.ErrorIs(t, err, discount.ErrExpired)
	assert.Nil(t, f.orders.created)
}

func TestPlaceOrder_NoDiscountCodeSkipsValidation(t *testing.T) {
	f := newFixture()
	f.validator.err = discount.ErrInvalidCode // would fail if consulted

	placeOrder(t, f)
	assert.Equal(t, 0, f.validator.calls)
}

func TestPlaceOrder_InsufficientStockPassthrough(t *testing.T) {
	f := newFixture()
	f.orders.createErr = &InsufficientStockError{ProductID: "p1", Requested: 2, Available: 1}

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:       "u1",
		ShippingTier: pricing.TierStandard,
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "p1", stockErr.ProductID)
	assert.Equal(t, 1, stockErr.Available)
}

// --- VerifyPayment ---

func paidFixture(t *testing.T) (*fixture, *PlaceOrderResult) {
	t.Helper()
	f := newFixture()
	res := placeOrder(t, f)
	f.orders.byID[res.OrderID].PaymentReference = res.PaymentReference
	f.gateway.verification = &payment.Verification{
		Reference:        res.PaymentReference,
		Status:           payment.StatusSuccess,
		AmountMinorUnits: 10800,
	}
	return f, res
}

func TestVerifyPayment_Success(t *testing.T) {
	f, res := paidFixture(t)

	o, err := f.svc.VerifyPayment(context.Background(), res.OrderID, "u1", res.PaymentReference)
	require.NoError(t, err)

	assert.Equal(t, PaymentSuccess, o.PaymentStatus)
	assert.Equal(t, StatusProcessing, o.Status)
	assert.Equal(t, 1, f.orders.confirmCalls)
	assert.Equal(t, []int64{11}, f.orders.confirmedLines)
}

func TestVerifyPayment_Idempotent(t *testing.T) {
	f, res := paidFixture(t)

	_, err := f.svc.VerifyPayment(context.Background(), res.OrderID, "u1", res.PaymentReference)
	require.NoError(t, err)

	// Second call: order already paid, the gateway is not consulted again
	// and no second confirmation runs.
	o, err := f.svc.VerifyPayment(context.Background(), res.OrderID, "u1", res.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, PaymentSuccess, o.PaymentStatus)
	assert.Equal(t, 1, f.gateway.calls)
	assert.Equal(t, 1, f.orders.confirmCalls)
}

func TestVerifyPayment_CancelledOrderStaysCancelled(t *testing.T) {
	f, res := paidFixture(t)
	f.orders.byID[res.OrderID].Status = StatusCancelled

	// Even though the gateway would report success, a cancelled order must
	// not be revived: no gateway call, no confirmation.
	_, err := f.svc.VerifyPayment(context.Background(), res.OrderID, "u1", res.PaymentReference)
	require.ErrorIs(t, err, ErrOrderCancelled)
	assert.Equal(t, 0, f.gateway.calls)
	assert.Equal(t, 0, f.orders.confirmCalls)
	assert.Equal(t, StatusCancelled, f.orders.byID[res.OrderID].Status)
	assert.Equal(t, PaymentPending, f.orders.byID[res.OrderID].PaymentStatus)
}

func TestVerifyPayment_WrongUser(t *testing.T) {
	f, res := paidFixture(t)

	_, err := f.svc.VerifyPayment(context.Background(), res.OrderID, "intruder", res.PaymentReference)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, f.gateway.calls)
}

func TestVerifyPayment_WrongReference(t *testing.T) {
	f, res := paidFixture(t)

	_, err := f.svc.VerifyPayment(context.Background(), res.OrderID, "u1", "someone-elses-ref")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, f.gateway.calls)
}

func TestVerifyPayment_GatewayUnavailableLeavesPending(t *testing.T) {
	f, res := paidFixture(t)
	f.gateway.verification = nil
	f.gateway.err = payment.ErrUnavailable

	_, err := f.svc.VerifyPayment(context.Background(), res.OrderID, "u1", res.PaymentReference)
	require.ErrorIs(t, err, payment.ErrUnavailable)

	// Order untouched: still pending, retriable.
	o := f.orders.byID[res.OrderID]
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, 0, f.orders.markFailedCalls)
	assert.Equal(t, 0, f.orders.confirmCalls)
}

func TestVerifyPayment_DeclinedMarksFailed(t *testing.T) {
	f, res := paidFixture(t)
	f.gateway.verification.Status = "declined"

	_, err := f.svc.VerifyPayment(context.Background(), res.OrderID, "u1", res.PaymentReference)
	require.ErrorIs(t, err, ErrPaymentNotCompleted)
	assert.Equal(t, 1, f.orders.markFailedCalls)
	assert.Equal(t, 0, f.orders.confirmCalls)
}

func TestVerifyPayment_AmountMismatch(t *testing.T) {
	f, res := paidFixture(t)
	f.gateway.verification.AmountMinorUnits = 9999 // order total is 10800

	_, err := f.svc.VerifyPayment(context.Background(), res.OrderID, "u1", res.PaymentReference)
	require.ErrorIs(t, err, ErrAmountMismatch)
	assert.Equal(t, 1, f.orders.markFailedCalls)
	assert.Equal(t, 0, f.orders.confirmCalls)
}

func TestVerifyPayment_UnknownOrder(t *testing.T) {
	f := newFixture()

	_, err := f.svc.VerifyPayment(context.Background(), "no-such-order", "u1", "ref")
	require.ErrorIs(t, err, ErrNotFound)
}

// --- Other operations ---

func TestGetOrder_OwnershipHidesOrder(t *testing.T) {
	f, res := paidFixture(t)

	o, err := f.svc.GetOrder(context.Background(), res.OrderID, "u1")
	require.NoError(t, err)
	assert.Equal(t, res.OrderID, o.ID)

	_, err = f.svc.GetOrder(context.Background(), res.OrderID, "other")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus_RejectsUnknownStatus(t *testing.T) {
	f := newFixture()

	err := f.svc.UpdateStatus(context.Background(), "o1", "teleported")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatus_Delegates(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.svc.UpdateStatus(context.Background(), "o1", StatusShipped))
	assert.Equal(t, StatusShipped, f.orders.updatedStatus)
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusShipped, false},
		{StatusProcessing, StatusShipped, true},
		{StatusProcessing, StatusCancelled, true},
		{StatusProcessing, StatusDelivered, false},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusProcessing, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestMintPaymentReference(t *testing.T) {
	at := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	ref := mintPaymentReference("0f8fad5b-d9cb-469f-a165-70867728950e", at)

	assert.Contains(t, ref, "0f8fad5b-")
	assert.NotEqual(t, ref, mintPaymentReference("0f8fad5b-d9cb-469f-a165-70867728950e", at.Add(time.Nanosecond)))
}

func TestVerifyPayment_ConfirmErrorSurfaces(t *testing.T) {
	f, res := paidFixture(t)
	f.orders.confirmErr = errors.New("deadlock detected")

	_, err := f.svc.VerifyPayment(context.Background(), res.OrderID, "u1", res.PaymentReference)
	require.Error(t, err)
	assert.Equal(t, PaymentPending, f.orders.byID[res.OrderID].PaymentStatus)
}
