/*
pricing.go - Per-line economics

PURPOSE:
  Computes normalized line economics from raw caller input and a resolved
  catalog item: quantity flooring, percentage clamping, unit price
  defaulting, and the derived subtotal/discount/tax/total chain.

ORDER OF OPERATIONS (this order is the contract, tax applies after
discount, not before):
  1. subtotal     = quantity * unitPrice
  2. discount     = subtotal * discountPct / 100
  3. taxable base = subtotal - discount
  4. tax          = taxable base * taxPct / 100
  5. total        = taxable base + tax

NUMERIC SEMANTICS:
  decimal.Decimal throughout; no rounding mid-calculation. Rounding, if
  a presentation layer wants it, happens at the edges, never here.

CLAMPING:
  Quantities at or below zero are floored up to MinQuantity rather than
  rejected. Discount and tax percentages are clamped into [0, 100].

SEE ALSO:
  - assemble.go: Aggregates priced lines into document totals
*/
package document

import (
	"github.com/shopspring/decimal"
)

// MinQuantity is the positive floor applied to line quantities.
// A zero or negative quantity is clamped up to this, never rejected.
var MinQuantity = decimal.NewFromFloat(0.001)

var hundred = decimal.NewFromInt(100)

// PriceLine computes a normalized Line from raw input and its resolved
// catalog item. The caller is responsible for resolving the item first;
// PriceLine itself never fails.
func PriceLine(raw RawLine, item CatalogItem) Line {
	qty := raw.Quantity
	if qty.LessThanOrEqual(decimal.Zero) {
		qty = MinQuantity
	}

	unitPrice := item.StandardPrice
	if raw.UnitPrice != nil && !raw.UnitPrice.IsNegative() {
		unitPrice = *raw.UnitPrice
	}

	discountPct := clampPct(raw.DiscountPct)
	taxPct := clampPct(raw.TaxPct)

	subtotal := qty.Mul(unitPrice)
	discount := subtotal.Mul(discountPct).Div(hundred)
	taxable := subtotal.Sub(discount)
	tax := taxable.Mul(taxPct).Div(hundred)
	total := taxable.Add(tax)

	return Line{
		ItemID:         raw.ItemID,
		Quantity:       qty,
		UnitPrice:      unitPrice,
		DiscountPct:    discountPct,
		TaxPct:         taxPct,
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TaxAmount:      tax,
		Total:          total,
	}
}

func clampPct(pct decimal.Decimal) decimal.Decimal {
	if pct.IsNegative() {
		return decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}
