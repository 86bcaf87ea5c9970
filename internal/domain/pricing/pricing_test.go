package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftedbits/storefront/internal/domain/discount"
)

func testConfig() Config {
	return Config{
		TaxRate:               decimal.RequireFromString("0.08"),
		FreeShippingThreshold: decimal.NewFromInt(100),
		StandardShippingRate:  decimal.RequireFromString("5.99"),
		ExpressShippingRate:   decimal.RequireFromString("25.00"),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecEqual(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s: %v", want, got, msgAndArgs)
}

func TestCompute_StandardShippingFreeAtThreshold(t *testing.T) {
	// Exactly at the threshold qualifies for free shipping.
	q := Compute([]LineItem{{UnitPrice: dec("50.00"), Quantity: 2}}, TierStandard, nil, testConfig())

	assertDecEqual(t, "100.00", q.Subtotal)
	assertDecEqual(t, "0", q.DiscountAmount)
	assertDecEqual(t, "0", q.ShippingCost)
	assertDecEqual(t, "8.00", q.Tax)
	assertDecEqual(t, "108.00", q.GrandTotal)
}

func TestCompute_StandardShippingBelowThreshold(t *testing.T) {
	q := Compute([]LineItem{{UnitPrice: dec("99.99"), Quantity: 1}}, TierStandard, nil, testConfig())

	assertDecEqual(t, "5.99", q.ShippingCost)
	assertDecEqual(t, "8.48", q.Tax) // (99.99 + 5.99) * 0.08 = 8.4784 -> 8.48
	assertDecEqual(t, "114.46", q.GrandTotal)
}

func TestCompute_ExpressNeverFree(t *testing.T) {
	q := Compute([]LineItem{{UnitPrice: dec("100.00"), Quantity: 1}}, TierExpress, nil, testConfig())

	assertDecEqual(t, "25.00", q.ShippingCost)
	assertDecEqual(t, "10.00", q.Tax)
	assertDecEqual(t, "135.00", q.GrandTotal)
}

func TestCompute_PercentageDiscountDisqualifiesFreeShipping(t *testing.T) {
	// 10% off 100.00 brings the post-discount subtotal to 90.00, which is
	// below the free-shipping threshold, so standard shipping is charged.
	min := dec("50")
	rule := &discount.Rule{
		Code:  "SAVE10",
		Type:  discount.TypePercentage,
		Value: dec("10"),

		MinPurchase: &min,
	}

	q := Compute([]LineItem{{UnitPrice: dec("100.00"), Quantity: 1}}, TierStandard, rule, testConfig())

	assertDecEqual(t, "100.00", q.Subtotal)
	assertDecEqual(t, "10.00", q.DiscountAmount)
	assert.Equal(t, "SAVE10", q.DiscountCode)
	assertDecEqual(t, "5.99", q.ShippingCost)
	assertDecEqual(t, "7.68", q.Tax) // (90.00 + 5.99) * 0.08 = 7.6792 -> 7.68
	assertDecEqual(t, "103.67", q.GrandTotal)
}

func TestCompute_ThresholdNotMetIsNoDiscount(t *testing.T) {
	min := dec("50")
	rule := &discount.Rule{
		Code:        "SAVE10",
		Type:        discount.TypePercentage,
		Value:       dec("10"),
		MinPurchase: &min,
	}

	q := Compute([]LineItem{{UnitPrice: dec("40.00"), Quantity: 1}}, TierStandard, rule, testConfig())

	assertDecEqual(t, "0", q.DiscountAmount)
	assert.Empty(t, q.DiscountCode)
	assertDecEqual(t, "5.99", q.ShippingCost)
}

func TestCompute_FixedDiscountCappedAtSubtotal(t *testing.T) {
	rule := &discount.Rule{
		Code:  "BIGOFF",
		Type:  discount.TypeFixed,
		Value: dec("50.00"),
	}

	q := Compute([]LineItem{{UnitPrice: dec("30.00"), Quantity: 1}}, TierStandard, rule, testConfig())

	assertDecEqual(t, "30.00", q.DiscountAmount)
	// Post-discount subtotal is zero; only shipping is taxed.
	assertDecEqual(t, "5.99", q.ShippingCost)
	assertDecEqual(t, "0.48", q.Tax)
	assertDecEqual(t, "6.47", q.GrandTotal)
}

func TestCompute_PercentageDiscountClampedAtSubtotal(t *testing.T) {
	// Rules valued above 100% can exist in the database; the reported
	// discount must still stay within [0, subtotal].
	for _, value := range []string{"100", "150"} {
		rule := &discount.Rule{
			Code:  "EVERYTHING",
			Type:  discount.TypePercentage,
			Value: dec(value),
		}

		q := Compute([]LineItem{{UnitPrice: dec("100.00"), Quantity: 1}}, TierStandard, rule, testConfig())

		assertDecEqual(t, "100.00", q.DiscountAmount, "value %s", value)
		assert.True(t, q.DiscountAmount.LessThanOrEqual(q.Subtotal))
		// Post-discount subtotal is zero; only shipping is taxed.
		assertDecEqual(t, "5.99", q.ShippingCost)
		assertDecEqual(t, "0.48", q.Tax)
		assertDecEqual(t, "6.47", q.GrandTotal)
	}
}

func TestCompute_PercentageRounding(t *testing.T) {
	// 15% of 33.33 = 4.9995, rounds to 5.00 before feeding later steps.
	rule := &discount.Rule{
		Code:  "SAVE15",
		Type:  discount.TypePercentage,
		Value: dec("15"),
	}

	q := Compute([]LineItem{{UnitPrice: dec("33.33"), Quantity: 1}}, TierStandard, rule, testConfig())

	assertDecEqual(t, "5.00", q.DiscountAmount)
}

func TestCompute_MultipleLines(t *testing.T) {
	items := []LineItem{
		{UnitPrice: dec("12.49"), Quantity: 3},
		{UnitPrice: dec("0.99"), Quantity: 7},
	}

	q := Compute(items, TierStandard, nil, testConfig())

	assertDecEqual(t, "44.40", q.Subtotal) // 37.47 + 6.93
}

func TestCompute_EmptyItems(t *testing.T) {
	q := Compute(nil, TierStandard, nil, testConfig())

	assertDecEqual(t, "0", q.Subtotal)
	assertDecEqual(t, "5.99", q.ShippingCost)
	assertDecEqual(t, "0.48", q.Tax)
}

func TestCompute_Deterministic(t *testing.T) {
	items := []LineItem{{UnitPrice: dec("19.99"), Quantity: 2}}
	rule := &discount.Rule{Code: "SAVE10", Type: discount.TypePercentage, Value: dec("10")}

	first := Compute(items, TierExpress, rule, testConfig())
	for range 5 {
		again := Compute(items, TierExpress, rule, testConfig())
		require.True(t, first.GrandTotal.Equal(again.GrandTotal))
		require.True(t, first.Tax.Equal(again.Tax))
	}
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"108.00", 10800},
		{"0", 0},
		{"5.99", 599},
		{"103.67", 10367},
		{"0.01", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MinorUnits(dec(tt.amount)), "amount %s", tt.amount)
	}
}
