package intent

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
	"github.com/sgajbi/lotus-advise-sub000/internal/money"
)

func baseInput() Input {
	return Input{
		Targets: model.TargetResult{Targets: []model.Target{
			{InstrumentID: "EQ1", FinalWeight: decimal.RequireFromString("0.6")},
		}},
		CurrentWeight: map[string]decimal.Decimal{"EQ1": decimal.RequireFromString("0.4")},
		Before:        model.SimulatedState{TotalValue: money.New("100000", "SGD")},
		Portfolio:     model.PortfolioSnapshot{BaseCurrency: "SGD"},
		MarketData: model.MarketDataSnapshot{
			Prices:  []model.PriceQuote{{InstrumentID: "EQ1", Price: money.New("10.00", "SGD")}},
			FXRates: []model.FXRate{},
		},
		Shelf:   model.Shelf{},
		Options: model.Defaults(),
	}
}

func TestGenerateBuyIntentFromDrift(t *testing.T) {
	res := Generate(baseInput())
	require.Len(t, res.Intents, 1)
	require.Equal(t, model.SideBuy, res.Intents[0].Side)
	require.Equal(t, "EQ1", res.Intents[0].InstrumentID)
	// delta 0.2 * 100000 = 20000 notional / 10.00 price = 2000 shares
	require.True(t, res.Intents[0].Quantity.Equal(decimal.NewFromInt(2000)))
}

func TestGenerateSuppressesBelowMinNotional(t *testing.T) {
	in := baseInput()
	threshold := money.New("1000000", "SGD")
	in.Options.MinTradeNotional = &threshold
	res := Generate(in)
	require.Empty(t, res.Intents)
	require.Len(t, res.Diagnostics.SuppressedIntents, 1)
	require.Equal(t, "BELOW_MIN_NOTIONAL", res.Diagnostics.SuppressedIntents[0].Reason)
}

func TestGenerateSuppressesNotionalExactlyAtMinThreshold(t *testing.T) {
	in := baseInput()
	// delta 0.2 * 100000 = 20000 notional, exactly at the threshold.
	threshold := money.New("20000", "SGD")
	in.Options.MinTradeNotional = &threshold
	res := Generate(in)
	require.Empty(t, res.Intents)
	require.Len(t, res.Diagnostics.SuppressedIntents, 1)
	require.Equal(t, "BELOW_MIN_NOTIONAL", res.Diagnostics.SuppressedIntents[0].Reason)
}

func TestGenerateTurnoverCapDropsIntent(t *testing.T) {
	in := Input{
		Targets: model.TargetResult{Targets: []model.Target{
			{InstrumentID: "EQ1", FinalWeight: decimal.RequireFromString("0.3")},
			{InstrumentID: "EQ2", FinalWeight: decimal.RequireFromString("0.3")},
		}},
		CurrentWeight: map[string]decimal.Decimal{"EQ1": decimal.Zero, "EQ2": decimal.Zero},
		Before:        model.SimulatedState{TotalValue: money.New("100000", "SGD")},
		Portfolio:     model.PortfolioSnapshot{BaseCurrency: "SGD"},
		MarketData: model.MarketDataSnapshot{
			Prices: []model.PriceQuote{
				{InstrumentID: "EQ1", Price: money.New("10.00", "SGD")},
				{InstrumentID: "EQ2", Price: money.New("10.00", "SGD")},
			},
		},
		Shelf:   model.Shelf{},
		Options: model.Defaults(),
	}
	cap := decimal.RequireFromString("0.3")
	in.Options.MaxTurnoverPct = &cap

	res := Generate(in)
	require.Len(t, res.Intents, 1)
	require.Len(t, res.Diagnostics.DroppedIntents, 1)
	require.Contains(t, res.Diagnostics.Warnings, "PARTIAL_REBALANCE_TURNOVER_LIMIT")
}

func TestGenerateTaxAwareSellReducedByBudget(t *testing.T) {
	in := Input{
		Targets: model.TargetResult{Targets: []model.Target{
			{InstrumentID: "EQ1", FinalWeight: decimal.Zero},
		}},
		CurrentWeight: map[string]decimal.Decimal{"EQ1": decimal.RequireFromString("0.5")},
		Before:        model.SimulatedState{TotalValue: money.New("100000", "SGD")},
		Portfolio: model.PortfolioSnapshot{
			BaseCurrency: "SGD",
			Positions: []model.Position{{
				InstrumentID: "EQ1",
				Quantity:     decimal.NewFromInt(5000),
				Lots: []model.TaxLot{
					{LotID: "L1", Quantity: decimal.NewFromInt(5000), UnitCost: money.New("5.00", "SGD")},
				},
			}},
		},
		MarketData: model.MarketDataSnapshot{
			Prices: []model.PriceQuote{{InstrumentID: "EQ1", Price: money.New("10.00", "SGD")}},
		},
		Shelf:   model.Shelf{},
		Options: model.Defaults(),
	}
	in.Options.EnableTaxAwareness = true
	gainsCap := decimal.RequireFromString("1000")
	in.Options.MaxRealizedCapitalGains = &gainsCap

	res := Generate(in)
	require.Len(t, res.Intents, 1)
	// gain per unit = 5.00, budget 1000 => 200 shares max
	require.True(t, res.Intents[0].Quantity.Equal(decimal.NewFromInt(200)))
	require.Contains(t, res.Diagnostics.Warnings, "TAX_BUDGET_LIMIT_REACHED")
	require.NotNil(t, res.TaxImpact)
}
