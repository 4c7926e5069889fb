package money

import "github.com/shopspring/decimal"

// D is a convenience constructor for a bare (currency-less) decimal used for
// weights, rates, and quantities.
func D(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("money: invalid decimal " + s + ": " + err.Error())
	}
	return d
}

// DFloor floors the absolute quantity implied by notional/price to an
// integer number of units — used by the intent generator, which must never
// round a security quantity up (spec §4.5: "Always integer floor; never
// round up.").
func DFloor(notional, price decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	return notional.Div(price).Floor()
}

// Abs returns the absolute value of d.
func Abs(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return d.Neg()
	}
	return d
}
