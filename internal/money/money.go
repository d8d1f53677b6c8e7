// Package money holds the rounding rules shared by every monetary computation.
// Each helper rounds to two places right after the operation it performs.
package money

import "github.com/shopspring/decimal"

// Places is the scale of every persisted amount.
const Places = 2

// Zero is the additive identity.
var Zero = decimal.Zero

// Round2 rounds half away from zero to two places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Add returns round2(a + b).
func Add(a, b decimal.Decimal) decimal.Decimal {
	return Round2(a.Add(b))
}

// Sub returns round2(a - b).
func Sub(a, b decimal.Decimal) decimal.Decimal {
	return Round2(a.Sub(b))
}

// Mul returns round2(a × b).
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return Round2(a.Mul(b))
}

// Sum folds values left to right, rounding after every addition.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = Add(total, v)
	}
	return total
}

// Format renders an amount with exactly two decimals.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// MustParse parses a literal amount and panics on malformed input. Intended
// for constants and tests.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
