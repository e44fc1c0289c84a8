package engine

import "github.com/shopspring/decimal"

// Savings returns what the campaign is worth at the given spend, rounded to
// two decimals. Unknown discount types and spends below MinSpend yield zero.
func Savings(c Campaign, amount decimal.Decimal) decimal.Decimal {
	if amount.LessThan(c.MinSpend) {
		return decimal.Zero
	}

	var raw decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		raw = amount.Mul(c.DiscountRate)
	case DiscountFixed:
		raw = c.DiscountRate
	default:
		return decimal.Zero
	}

	if c.MaxDiscount.Valid && raw.GreaterThan(c.MaxDiscount.Decimal) {
		raw = c.MaxDiscount.Decimal
	}
	if raw.IsNegative() {
		return decimal.Zero
	}
	return raw.Round(2)
}
