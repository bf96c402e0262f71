package money

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.NewFromFloat(0.5)
)

// RoundCents rounds x to two decimal places, half up on the cent.
//
// The value is converted through its shortest decimal representation first so that
// inputs such as 1.005 round to 1.01 instead of drifting on the binary form.
func RoundCents(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return fromDecimal(round(decimal.NewFromFloat(x)))
}

// Add returns the cent-rounded sum of the provided values.
func Add(values ...float64) float64 {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(dec(v))
	}
	return fromDecimal(round(sum))
}

// Sub returns a - b rounded to cents.
func Sub(a, b float64) float64 {
	return fromDecimal(round(dec(a).Sub(dec(b))))
}

// Mul multiplies a unit price by a quantity.
func Mul(price float64, qty int) float64 {
	return fromDecimal(round(dec(price).Mul(decimal.NewFromInt(int64(qty)))))
}

// Percent returns pct percent of amount, rounded to cents.
func Percent(amount, pct float64) float64 {
	return fromDecimal(round(dec(amount).Mul(dec(pct)).Div(hundred)))
}

// Min returns the smaller of two amounts.
func Min(a, b float64) float64 {
	if a < b {
		return RoundCents(a)
	}
	return RoundCents(b)
}

// NonNegative clamps negative amounts to zero.
func NonNegative(x float64) float64 {
	r := RoundCents(x)
	if r < 0 {
		return 0
	}
	return r
}

// ParseAmount parses a cashier-entered amount. Both "." and "," are accepted as the
// decimal separator. It reports false for blank, malformed or non-positive input.
func ParseAmount(s string) (float64, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, false
	}
	trimmed = strings.ReplaceAll(trimmed, " ", "")
	if strings.Contains(trimmed, ",") {
		trimmed = strings.ReplaceAll(trimmed, ".", "")
		trimmed = strings.ReplaceAll(trimmed, ",", ".")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, false
	}
	v := fromDecimal(round(d))
	if v <= 0 {
		return 0, false
	}
	return v, true
}

func dec(x float64) decimal.Decimal {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(x)
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Mul(hundred).Add(half).Floor().Div(hundred)
}

func fromDecimal(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
