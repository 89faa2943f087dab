// Package pricing computes billed figures for allocated stock. Every function
// here is pure; Quoter adds tenant and insurance lookups on top.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ApplyMarkup returns cost * (1 + pct/100) rounded half-up to 2 places.
// Rounding applies to the unit price only, never to line totals.
func ApplyMarkup(baseUnitCost, markupPercent decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(markupPercent.Div(hundred))
	return baseUnitCost.Mul(factor).Round(2)
}

// ComputeLineTax returns subtotal * rate/100 for taxable lines, zero otherwise.
func ComputeLineTax(lineSubtotal decimal.Decimal, isTaxable bool, taxRatePercent decimal.Decimal) decimal.Decimal {
	if !isTaxable {
		return decimal.Zero
	}
	return lineSubtotal.Mul(taxRatePercent).Div(hundred)
}

// Split is the insurer/patient division of an amount.
type Split struct {
	Covered decimal.Decimal `json:"covered"`
	Patient decimal.Decimal `json:"patient"`
}

// SplitInsuranceCoverage divides subtotal so that Covered + Patient == subtotal.
// The percentage is clamped to [0, 100].
func SplitInsuranceCoverage(lineSubtotal, insurancePercent decimal.Decimal) Split {
	pct := clampPercent(insurancePercent)
	covered := lineSubtotal.Mul(pct).Div(hundred)
	return Split{
		Covered: covered,
		Patient: lineSubtotal.Sub(covered),
	}
}

func clampPercent(p decimal.Decimal) decimal.Decimal {
	return decimal.Min(decimal.Max(p, decimal.Zero), hundred)
}

// InsuranceCoverage is the insurer percentage snapshotted onto an order.
type InsuranceCoverage struct {
	Percent    decimal.Decimal `json:"percent"`
	CardExpiry *time.Time      `json:"card_expiry,omitempty"`
}

// IsValidAt reports whether the card still covers an order placed at t.
// A card without expiry never lapses.
func (c *InsuranceCoverage) IsValidAt(t time.Time) bool {
	if c == nil {
		return false
	}
	if c.CardExpiry == nil {
		return true
	}
	return !c.CardExpiry.Before(t)
}

// Line is one priced slice of an order.
type Line struct {
	ItemID    string          `json:"item_id"`
	BatchID   string          `json:"batch_id,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Taxable   bool            `json:"taxable"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
}

// PriceLine fills UnitPrice, Subtotal and Tax from cost, markup and tax rate.
func PriceLine(l Line, markupPercent decimal.Decimal) Line {
	l.UnitPrice = ApplyMarkup(l.UnitCost, markupPercent)
	l.Subtotal = l.Quantity.Mul(l.UnitPrice)
	l.Tax = ComputeLineTax(l.Subtotal, l.Taxable, l.TaxRate)
	return l
}

// Totals aggregates priced lines.
type Totals struct {
	Subtotal         decimal.Decimal  `json:"subtotal"`
	Tax              decimal.Decimal  `json:"tax"`
	Discount         decimal.Decimal  `json:"discount"`
	GrandTotal       decimal.Decimal  `json:"grand_total"`
	InsurancePercent *decimal.Decimal `json:"insurance_percent,omitempty"`
	Covered          decimal.Decimal  `json:"covered"`
	Patient          decimal.Decimal  `json:"patient"`
}

// ComputeTotals sums lines. coverage is applied only when it is valid at
// orderDate; otherwise the patient pays the whole subtotal.
func ComputeTotals(lines []Line, discount decimal.Decimal, coverage *InsuranceCoverage, orderDate time.Time) Totals {
	t := Totals{
		Subtotal: decimal.Zero,
		Tax:      decimal.Zero,
		Discount: discount,
		Covered:  decimal.Zero,
	}
	for _, l := range lines {
		t.Subtotal = t.Subtotal.Add(l.Quantity.Mul(l.UnitPrice))
		t.Tax = t.Tax.Add(l.Tax)
	}
	t.GrandTotal = t.Subtotal.Add(t.Tax).Sub(discount)
	t.Patient = t.Subtotal

	if coverage.IsValidAt(orderDate) {
		split := SplitInsuranceCoverage(t.Subtotal, coverage.Percent)
		pct := clampPercent(coverage.Percent)
		t.InsurancePercent = &pct
		t.Covered = split.Covered
		t.Patient = split.Patient
	}
	return t
}
