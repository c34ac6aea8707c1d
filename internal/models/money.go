package models

import "github.com/shopspring/decimal"

var centsPerDollar = decimal.NewFromInt(100)

// ToCents converts a decimal-dollar amount to integer cents, rounding half
// away from zero: 19.995 -> 2000, 19.994 -> 1999. All monetary math in this
// module is integer cents; dollars only appear at the edges.
func ToCents(dollars float64) int64 {
	return decimal.NewFromFloat(dollars).Mul(centsPerDollar).Round(0).IntPart()
}

// ToDollars converts integer cents back to a dollar amount.
func ToDollars(cents int64) float64 {
	dollars, _ := decimal.New(cents, -2).Float64()
	return dollars
}

// FormatCents renders cents as a dollar string, e.g. 1990 -> "$19.90".
// A nil amount formats as "$0.00".
func FormatCents(cents *int64) string {
	if cents == nil {
		return "$0.00"
	}
	return "$" + decimal.New(*cents, -2).StringFixed(2)
}
