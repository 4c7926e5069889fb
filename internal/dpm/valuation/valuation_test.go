package valuation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
	"github.com/sgajbi/lotus-advise-sub000/internal/money"
)

func basicMarketData() model.MarketDataSnapshot {
	return model.MarketDataSnapshot{
		Prices: []model.PriceQuote{
			{InstrumentID: "EQ1", Price: money.New("10.00", "USD")},
		},
		FXRates: []model.FXRate{
			{Pair: "USD/SGD", Rate: decimal.RequireFromString("1.35")},
		},
	}
}

func TestValueCalculatedMode(t *testing.T) {
	portfolio := model.PortfolioSnapshot{
		BaseCurrency: "SGD",
		Positions:    []model.Position{{InstrumentID: "EQ1", Quantity: decimal.NewFromInt(100)}},
		Cash:         []model.CashBalance{{Currency: "SGD", Amount: money.New("1000", "SGD")}},
	}
	res := Value(portfolio, basicMarketData(), model.Shelf{}, model.ValuationCalculated)

	require.Empty(t, res.DataQuality)
	require.Len(t, res.State.Positions, 1)
	wantValue := decimal.NewFromInt(100).Mul(decimal.RequireFromString("10.00")).Mul(decimal.RequireFromString("1.35"))
	require.True(t, res.State.Positions[0].Value.Amount.Equal(wantValue))
	require.True(t, res.State.TotalValue.Amount.Equal(wantValue.Add(decimal.NewFromInt(1000))))
}

func TestValueMissingPriceMarksDataQuality(t *testing.T) {
	portfolio := model.PortfolioSnapshot{
		BaseCurrency: "SGD",
		Positions:    []model.Position{{InstrumentID: "UNKNOWN", Quantity: decimal.NewFromInt(5)}},
	}
	res := Value(portfolio, basicMarketData(), model.Shelf{}, model.ValuationCalculated)
	require.Contains(t, res.DataQuality, "price_missing")
}

func TestValueMissingFXMarksDataQuality(t *testing.T) {
	portfolio := model.PortfolioSnapshot{
		BaseCurrency: "JPY",
		Positions:    []model.Position{{InstrumentID: "EQ1", Quantity: decimal.NewFromInt(1)}},
	}
	res := Value(portfolio, basicMarketData(), model.Shelf{}, model.ValuationCalculated)
	require.Contains(t, res.DataQuality, "fx_missing")
}

func TestValueTrustSnapshotMismatchWarning(t *testing.T) {
	mv := money.New("2000.00", "SGD")
	portfolio := model.PortfolioSnapshot{
		BaseCurrency: "SGD",
		Positions:    []model.Position{{InstrumentID: "EQ1", Quantity: decimal.NewFromInt(100), MarketValue: &mv}},
	}
	res := Value(portfolio, basicMarketData(), model.Shelf{}, model.ValuationTrustSnapshot)
	require.Contains(t, res.Warnings, "POSITION_VALUE_MISMATCH")
}

func TestValueTrustSnapshotWithinToleranceNoWarning(t *testing.T) {
	mv := money.New("1350.00", "SGD")
	portfolio := model.PortfolioSnapshot{
		BaseCurrency: "SGD",
		Positions:    []model.Position{{InstrumentID: "EQ1", Quantity: decimal.NewFromInt(100), MarketValue: &mv}},
	}
	res := Value(portfolio, basicMarketData(), model.Shelf{}, model.ValuationTrustSnapshot)
	require.NotContains(t, res.Warnings, "POSITION_VALUE_MISMATCH")
}

func TestValueAllocationByAssetClass(t *testing.T) {
	shelf := model.NewShelf([]model.ShelfEntry{{InstrumentID: "EQ1", AssetClass: "EQUITY", Status: model.ShelfApproved}})
	portfolio := model.PortfolioSnapshot{
		BaseCurrency: "SGD",
		Positions:    []model.Position{{InstrumentID: "EQ1", Quantity: decimal.NewFromInt(10)}},
		Cash:         []model.CashBalance{{Currency: "SGD", Amount: money.New("500", "SGD")}},
	}
	res := Value(portfolio, basicMarketData(), shelf, model.ValuationCalculated)

	found := false
	for _, slice := range res.State.AllocationByAssetClass {
		if slice.Key == "EQUITY" {
			found = true
		}
	}
	require.True(t, found)
}
