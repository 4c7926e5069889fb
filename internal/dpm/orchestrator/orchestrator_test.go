package orchestrator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
	"github.com/sgajbi/lotus-advise-sub000/internal/money"
)

func TestRunCashDeploymentSingleCurrency(t *testing.T) {
	req := Request{
		PortfolioID: "P1",
		Portfolio: model.PortfolioSnapshot{
			PortfolioID:  "P1",
			BaseCurrency: "SGD",
			Cash:         []model.CashBalance{{Currency: "SGD", Amount: money.New("100000", "SGD")}},
		},
		MarketData: model.MarketDataSnapshot{
			Prices: []model.PriceQuote{{InstrumentID: "EQ1", Price: money.New("10.00", "SGD")}},
		},
		Shelf:          []model.ShelfEntry{{InstrumentID: "EQ1", Status: model.ShelfApproved, AssetClass: "EQUITY"}},
		ModelPortfolio: model.ModelPortfolio{"EQ1": decimal.RequireFromString("0.9")},
		Options:        model.Defaults(),
	}
	result, err := Run(req, "run-1", "corr-1", "sha256:abc", time.Time{})
	require.NoError(t, err)
	require.Equal(t, model.StatusReady, result.Status)
	require.Len(t, result.Intents, 1)
	require.Equal(t, model.SideBuy, result.Intents[0].Side)
	require.Equal(t, model.ReconciliationOK, result.Reconciliation.Status)
}

func TestRunBlockedOnInfeasibleTarget(t *testing.T) {
	cap := decimal.RequireFromString("0.1")
	opts := model.Defaults()
	opts.TargetMethod = model.TargetSolver
	opts.SinglePositionMaxWeight = &cap
	req := Request{
		Portfolio: model.PortfolioSnapshot{BaseCurrency: "SGD", Cash: []model.CashBalance{{Currency: "SGD", Amount: money.New("100000", "SGD")}}},
		MarketData: model.MarketDataSnapshot{
			Prices: []model.PriceQuote{
				{InstrumentID: "EQ1", Price: money.New("10.00", "SGD")},
				{InstrumentID: "EQ2", Price: money.New("10.00", "SGD")},
			},
		},
		Shelf: []model.ShelfEntry{
			{InstrumentID: "EQ1", Status: model.ShelfApproved},
			{InstrumentID: "EQ2", Status: model.ShelfApproved},
		},
		ModelPortfolio: model.ModelPortfolio{"EQ1": decimal.RequireFromString("0.5"), "EQ2": decimal.RequireFromString("0.5")},
		Options:        opts,
	}
	result, err := Run(req, "run-2", "corr-2", "sha256:def", time.Time{})
	require.NoError(t, err)
	require.Equal(t, model.StatusBlocked, result.Status)
}
