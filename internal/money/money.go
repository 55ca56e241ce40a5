// Package money holds the rounding rules shared by pricing and reconciliation.
//
// Amounts travel as float64 (JSON numbers, DynamoDB N) but every comparison is
// done on decimals rounded half away from zero to two places, so binary float
// noise such as 149.98-100 = 49.979999... never decides a payment.
package money

import "github.com/shopspring/decimal"

// Places is the number of decimal places INR amounts are kept to.
const Places = 2

// Round2 rounds v to two decimal places.
func Round2(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(Places)
}

// Round2Float is Round2 converted back to float64 for storage.
func Round2Float(v float64) float64 {
	f, _ := Round2(v).Float64()
	return f
}

// Add returns round2(a + b).
func Add(a, b float64) float64 {
	f, _ := decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(Places).Float64()
	return f
}

// Diff returns round2(current - initial).
func Diff(current, initial float64) decimal.Decimal {
	return decimal.NewFromFloat(current).Sub(decimal.NewFromFloat(initial)).Round(Places)
}

// Float converts d to float64. Two-place decimals are always representable closely
// enough for JSON output.
func Float(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// String formats v with exactly two decimals, e.g. for a UPI "am" parameter.
func String(v float64) string {
	return Round2(v).StringFixed(Places)
}
