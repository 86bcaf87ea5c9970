// Package pricing turns priced line items, a shipping tier, and an optional
// discount into a final order total breakdown. It is pure: no I/O, no clock,
// deterministic for identical inputs.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/craftedbits/storefront/internal/domain/discount"
)

// ShippingTier selects the shipping cost model.
type ShippingTier string

const (
	// TierStandard ships at the flat standard rate, free above the threshold.
	TierStandard ShippingTier = "standard"
	// TierExpress always ships at the flat express rate.
	TierExpress ShippingTier = "express"
)

// Valid reports whether t is a known shipping tier.
func (t ShippingTier) Valid() bool {
	return t == TierStandard || t == TierExpress
}

var hundred = decimal.NewFromInt(100)

// Config holds the tax and shipping parameters the engine prices against.
type Config struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	StandardShippingRate  decimal.Decimal
	ExpressShippingRate   decimal.Decimal
}

// LineItem is a single priced cart line.
type LineItem struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Quote is the complete total breakdown for a checkout.
// Subtotal is the pre-discount figure for display; every downstream step
// works from the post-discount subtotal.
type Quote struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	DiscountCode   string
	ShippingCost   decimal.Decimal
	Tax            decimal.Decimal
	GrandTotal     decimal.Decimal
}

// Compute prices the given line items in a fixed order, rounding each
// intermediate to 2 decimal places before it feeds the next step:
//
//  1. subtotal = sum of unit price times quantity
//  2. discount applied against the subtotal (absent or threshold-missed
//     discounts contribute zero, never an error)
//  3. shipping from the post-discount subtotal
//  4. tax on post-discount subtotal plus shipping
//  5. grand total
//
// A nil rule means no discount. A rule whose minimum purchase threshold is
// not met by the subtotal is treated as absent.
func Compute(items []LineItem, tier ShippingTier, rule *discount.Rule, cfg Config) Quote {
	subtotal := decimal.Zero
	for _, it := range items {
		line := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		subtotal = subtotal.Add(line)
	}
	subtotal = subtotal.Round(2)

	q := Quote{
		Subtotal:       subtotal,
		DiscountAmount: decimal.Zero,
	}

	discounted := subtotal
	if rule != nil && rule.MeetsMinimumPurchase(subtotal) {
		q.DiscountAmount = discountAmount(rule, subtotal)
		q.DiscountCode = rule.Code
		discounted = subtotal.Sub(q.DiscountAmount)
	}

	q.ShippingCost = shippingCost(tier, discounted, cfg)
	q.Tax = discounted.Add(q.ShippingCost).Mul(cfg.TaxRate).Round(2)
	q.GrandTotal = discounted.Add(q.ShippingCost).Add(q.Tax)

	return q
}

// discountAmount computes the rounded discount for a rule that already
// passed the minimum purchase check. Percentage discounts are a share of the
// subtotal. Both kinds are clamped to [0, subtotal] so the reported amount
// never exceeds what was charged and the post-discount figure never goes
// negative, even for rules valued above 100%.
func discountAmount(rule *discount.Rule, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch rule.Type {
	case discount.TypePercentage:
		amount = subtotal.Mul(rule.Value).Div(hundred)
	case discount.TypeFixed:
		amount = rule.Value
	default:
		return decimal.Zero
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return decimal.Min(amount.Round(2), subtotal)
}

// shippingCost evaluates free-shipping qualification against the
// post-discount subtotal.
func shippingCost(tier ShippingTier, discounted decimal.Decimal, cfg Config) decimal.Decimal {
	if tier == TierExpress {
		return cfg.ExpressShippingRate
	}
	if discounted.GreaterThanOrEqual(cfg.FreeShippingThreshold) {
		return decimal.Zero
	}
	return cfg.StandardShippingRate
}

// MinorUnits converts a rounded monetary amount to integer minor units
// (cents). Payment gateways report paid amounts this way.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Mul(hundred).IntPart()
}
