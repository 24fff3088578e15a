package service

import (
	"pos-service/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Totals is the server-side price breakdown of a sale
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Taxable  decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// lineSubtotal is (unit price + modifier prices) x quantity
func lineSubtotal(item models.LineItem) decimal.Decimal {
	unit := item.UnitPrice
	for _, m := range item.Modifiers {
		unit = unit.Add(m.Price)
	}
	return unit.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

// computeTotals prices items from their snapshots alone. Tax and total are each rounded
// to the cent, half away from zero. A discount larger than the subtotal leaves nothing taxable.
func computeTotals(items models.LineItems, discount *models.AppliedDiscount, taxRatePercent decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(lineSubtotal(item))
	}

	off := decimal.Zero
	if discount != nil {
		off = discount.Amount
	}

	taxable := subtotal.Sub(off)
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}
	taxable = taxable.Round(2)

	tax := taxable.Mul(taxRatePercent).Div(hundred).Round(2)

	return Totals{
		Subtotal: subtotal.Round(2),
		Discount: off,
		Taxable:  taxable,
		Tax:      tax,
		Total:    taxable.Add(tax).Round(2),
	}
}
