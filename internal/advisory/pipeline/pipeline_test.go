package pipeline

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
	"github.com/sgajbi/lotus-advise-sub000/internal/money"
)

func TestRunManualBuyCleanProposalIsExecutionReady(t *testing.T) {
	opts := model.Defaults()
	opts.EnableWorkflowGates = true
	opts.ClientConsentAlreadyObtained = true

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
		Shelf: []model.ShelfEntry{{InstrumentID: "EQ1", Status: model.ShelfApproved, AssetClass: "EQUITY"}},
		ManualTrades: []model.Intent{{
			Kind:         model.IntentSecurityTrade,
			IntentID:     "trade-1",
			InstrumentID: "EQ1",
			Side:         model.SideBuy,
			Quantity:     decimal.NewFromInt(100),
			Notional:     money.New("1000", "SGD"),
		}},
		Options: opts,
	}

	result := Run(req, "run-1", "corr-1", "sha256:abc", time.Time{})

	require.Equal(t, model.StatusReady, result.Status)
	require.Equal(t, model.ReconciliationOK, result.Reconciliation.Status)
	require.Len(t, result.Intents, 1)
	require.NotNil(t, result.GateDecision)
	require.Equal(t, model.GateExecutionReady, result.GateDecision.Gate)
}

func TestRunCleanProposalWithoutConsentRequiresClientConsent(t *testing.T) {
	opts := model.Defaults()
	opts.EnableWorkflowGates = true
	opts.WorkflowRequiresClientConsent = true
	opts.ClientConsentAlreadyObtained = false

	req := Request{
		Portfolio: model.PortfolioSnapshot{
			BaseCurrency: "SGD",
			Cash:         []model.CashBalance{{Currency: "SGD", Amount: money.New("100000", "SGD")}},
		},
		MarketData: model.MarketDataSnapshot{
			Prices: []model.PriceQuote{{InstrumentID: "EQ1", Price: money.New("10.00", "SGD")}},
		},
		Shelf: []model.ShelfEntry{{InstrumentID: "EQ1", Status: model.ShelfApproved, AssetClass: "EQUITY"}},
		ManualTrades: []model.Intent{{
			Kind:         model.IntentSecurityTrade,
			IntentID:     "trade-1",
			InstrumentID: "EQ1",
			Side:         model.SideBuy,
			Quantity:     decimal.NewFromInt(100),
			Notional:     money.New("1000", "SGD"),
		}},
		Options: opts,
	}

	result := Run(req, "run-2", "corr-2", "sha256:def", time.Time{})

	require.Equal(t, model.StatusReady, result.Status)
	require.NotNil(t, result.GateDecision)
	require.Equal(t, model.GateClientConsentRequired, result.GateDecision.Gate)
}

func TestRunAutoFundingBuysInForeignCurrency(t *testing.T) {
	opts := model.Defaults()
	opts.AutoFunding = true

	req := Request{
		Portfolio: model.PortfolioSnapshot{
			BaseCurrency: "SGD",
			Cash:         []model.CashBalance{{Currency: "SGD", Amount: money.New("100000", "SGD")}},
		},
		MarketData: model.MarketDataSnapshot{
			Prices:  []model.PriceQuote{{InstrumentID: "USEQ1", Price: money.New("10.00", "USD")}},
			FXRates: []model.FXRate{{Pair: "USD/SGD", Rate: decimal.RequireFromString("1.35")}},
		},
		Shelf: []model.ShelfEntry{{InstrumentID: "USEQ1", Status: model.ShelfApproved, AssetClass: "EQUITY"}},
		ManualTrades: []model.Intent{{
			Kind:         model.IntentSecurityTrade,
			IntentID:     "trade-1",
			InstrumentID: "USEQ1",
			Side:         model.SideBuy,
			Quantity:     decimal.NewFromInt(100),
			Notional:     money.New("1000", "USD"),
		}},
		Options: opts,
	}

	result := Run(req, "run-3", "corr-3", "sha256:ghi", time.Time{})

	require.Equal(t, model.StatusReady, result.Status)
	var fxCount int
	for _, in := range result.Intents {
		if in.Kind == model.IntentFXSpot {
			fxCount++
			require.Equal(t, "USD", in.BuyCurrency)
			require.Equal(t, "SGD", in.SellCurrency)
		}
	}
	require.Equal(t, 1, fxCount)
}

func TestRunCashFlowThenSellExceedingHoldingsIsBlocked(t *testing.T) {
	opts := model.Defaults()

	req := Request{
		Portfolio: model.PortfolioSnapshot{
			BaseCurrency: "SGD",
			Cash:         []model.CashBalance{{Currency: "SGD", Amount: money.New("1000", "SGD")}},
			Positions:    []model.Position{{InstrumentID: "EQ1", Quantity: decimal.NewFromInt(10)}},
		},
		MarketData: model.MarketDataSnapshot{
			Prices: []model.PriceQuote{{InstrumentID: "EQ1", Price: money.New("10.00", "SGD")}},
		},
		Shelf: []model.ShelfEntry{{InstrumentID: "EQ1", Status: model.ShelfApproved, AssetClass: "EQUITY"}},
		ManualTrades: []model.Intent{{
			Kind:         model.IntentSecurityTrade,
			IntentID:     "trade-1",
			InstrumentID: "EQ1",
			Side:         model.SideSell,
			Quantity:     decimal.NewFromInt(20),
			Notional:     money.New("200", "SGD"),
		}},
		Options: opts,
	}

	result := Run(req, "run-4", "corr-4", "sha256:jkl", time.Time{})

	require.Equal(t, model.StatusBlocked, result.Status)
}

func TestRunDriftAnalysisAttachedWhenReferenceModelProvided(t *testing.T) {
	opts := model.Defaults()

	req := Request{
		Portfolio: model.PortfolioSnapshot{
			BaseCurrency: "SGD",
			Positions:    []model.Position{{InstrumentID: "EQ1", Quantity: decimal.NewFromInt(100)}},
		},
		MarketData: model.MarketDataSnapshot{
			Prices: []model.PriceQuote{{InstrumentID: "EQ1", Price: money.New("10.00", "SGD")}},
		},
		Shelf:          []model.ShelfEntry{{InstrumentID: "EQ1", Status: model.ShelfApproved, AssetClass: "EQUITY"}},
		ReferenceModel: &model.ReferenceModel{AssetClassWeights: map[string]decimal.Decimal{"EQUITY": decimal.RequireFromString("0.5"), "CASH": decimal.RequireFromString("0.5")}},
		Options:        opts,
	}

	result := Run(req, "run-5", "corr-5", "sha256:mno", time.Time{})

	require.NotNil(t, result.DriftAnalysis)
}
