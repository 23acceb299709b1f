package domain

import "github.com/shopspring/decimal"

// PriceTolerance is the largest unit price difference still treated as a match at checkout.
var PriceTolerance = decimal.New(1, -2)

// Money rounds to 2dp, half away from zero (half-up for the non-negative amounts used here).
func Money(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// LineAmount is quantity * unit price at 2dp.
func LineAmount(price decimal.Decimal, qty int) decimal.Decimal {
	return Money(price.Mul(decimal.NewFromInt(int64(qty))))
}

// PricesMatch reports whether two unit prices differ by at most PriceTolerance.
func PricesMatch(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(PriceTolerance)
}

// ParseMoney parses a decimal string and rounds it to 2dp.
func ParseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return Money(d), nil
}
