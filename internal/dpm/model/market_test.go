package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFindFXRateDirect(t *testing.T) {
	md := MarketDataSnapshot{FXRates: []FXRate{{Pair: "USD/SGD", Rate: decimal.RequireFromString("1.35")}}}
	rate, ok := md.FindFXRate("USD", "SGD")
	require.True(t, ok)
	require.True(t, rate.Equal(decimal.RequireFromString("1.35")))
}

func TestFindFXRateInverseDerived(t *testing.T) {
	md := MarketDataSnapshot{FXRates: []FXRate{{Pair: "USD/SGD", Rate: decimal.RequireFromString("1.35")}}}
	rate, ok := md.FindFXRate("SGD", "USD")
	require.True(t, ok)
	want := decimal.NewFromInt(1).DivRound(decimal.RequireFromString("1.35"), 16)
	require.True(t, rate.Equal(want))
}

func TestFindFXRateSameCurrency(t *testing.T) {
	md := MarketDataSnapshot{}
	rate, ok := md.FindFXRate("USD", "USD")
	require.True(t, ok)
	require.True(t, rate.Equal(decimal.NewFromInt(1)))
}

func TestFindFXRateMissing(t *testing.T) {
	md := MarketDataSnapshot{}
	_, ok := md.FindFXRate("USD", "JPY")
	require.False(t, ok)
}
