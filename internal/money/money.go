// Package money provides currency-tagged fixed-point arithmetic used across
// the decisioning pipeline. Floats never cross a package boundary here;
// every amount, quantity, and weight in the engine is a decimal.Decimal.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an amount tagged with its ISO 4217 currency code.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// New builds a Money from a decimal string. It panics on malformed input;
// callers parsing untrusted input should use ParseMoney instead.
func New(amount string, currency string) Money {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		panic(fmt.Sprintf("money: invalid amount %q: %v", amount, err))
	}
	return Money{Amount: d, Currency: currency}
}

// FromDecimal wraps an existing decimal.Decimal with a currency tag.
func FromDecimal(d decimal.Decimal, currency string) Money {
	return Money{Amount: d, Currency: currency}
}

// Zero returns a zero-valued Money in the given currency.
func Zero(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// IsZero reports whether the amount is exactly zero, ignoring currency.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// Neg returns the negated amount in the same currency.
func (m Money) Neg() Money {
	return Money{Amount: m.Amount.Neg(), Currency: m.Currency}
}

// Add adds two Money values of the same currency. Mixed-currency addition
// is a programming error in this engine (all cross-currency conversion goes
// through explicit FX) and panics rather than silently producing a wrong
// number.
func (m Money) Add(o Money) Money {
	mustMatch(m, o)
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}
}

// Sub subtracts o from m; both must share a currency.
func (m Money) Sub(o Money) Money {
	mustMatch(m, o)
	return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency}
}

// MulDec scales the amount by a dimensionless decimal factor (e.g. an FX
// rate or a weight), preserving currency.
func (m Money) MulDec(factor decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(factor), Currency: m.Currency}
}

// Cmp compares two same-currency amounts; see decimal.Decimal.Cmp.
func (m Money) Cmp(o Money) int {
	mustMatch(m, o)
	return m.Amount.Cmp(o.Amount)
}

// GreaterThan reports whether m > o (same currency required).
func (m Money) GreaterThan(o Money) bool { return m.Cmp(o) > 0 }

// LessThan reports whether m < o (same currency required).
func (m Money) LessThan(o Money) bool { return m.Cmp(o) < 0 }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// String renders "amount CCY", e.g. "120000.00 SGD".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.String(), m.Currency)
}

func mustMatch(a, b Money) {
	if a.Currency != b.Currency && a.Currency != "" && b.Currency != "" {
		panic(fmt.Sprintf("money: currency mismatch %s vs %s", a.Currency, b.Currency))
	}
}

// Sum adds a slice of same-currency Money values, returning a zero Money in
// the given currency when the slice is empty.
func Sum(currency string, values ...Money) Money {
	total := Zero(currency)
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
