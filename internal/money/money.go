// Package money holds the fixed-point helpers shared by the catalog and the ledgers.
package money

import "github.com/shopspring/decimal"

// Scale is the number of minor-unit digits kept for every amount.
const Scale = 2

func init() {
	// Amounts travel as JSON numbers, matching what POS clients send.
	decimal.MarshalJSONWithoutQuotes = true
}

// Round rounds d half-away-from-zero to Scale digits.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// MinorUnits returns d expressed in cents.
func MinorUnits(d decimal.Decimal) int64 {
	return d.Shift(Scale).Round(0).IntPart()
}

// Equal compares two amounts to the cent.
func Equal(a, b decimal.Decimal) bool {
	return MinorUnits(a) == MinorUnits(b)
}

// LineTotal multiplies a unit amount by a quantity.
func LineTotal(unit decimal.Decimal, qty int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(qty)))
}

// Sum adds every amount.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
