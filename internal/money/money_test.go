package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAddSameCurrency(t *testing.T) {
	a := New("100.50", "USD")
	b := New("50.25", "USD")
	require.True(t, a.Add(b).Amount.Equal(decimal.RequireFromString("150.75")))
}

func TestAddMismatchedCurrencyPanics(t *testing.T) {
	a := New("1", "USD")
	b := New("1", "SGD")
	require.Panics(t, func() { a.Add(b) })
}

func TestDFloorNeverRoundsUp(t *testing.T) {
	got := DFloor(decimal.RequireFromString("999.99"), decimal.RequireFromString("500"))
	require.True(t, got.Equal(decimal.RequireFromString("1")))

	got2 := DFloor(decimal.RequireFromString("1000.01"), decimal.RequireFromString("500"))
	require.True(t, got2.Equal(decimal.RequireFromString("2")))
}

func TestSumEmpty(t *testing.T) {
	total := Sum("USD")
	require.True(t, total.IsZero())
	require.Equal(t, "USD", total.Currency)
}
