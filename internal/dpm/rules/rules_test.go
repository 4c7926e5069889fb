package rules

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
	"github.com/sgajbi/lotus-advise-sub000/internal/money"
)

func TestEvaluateAllPassReady(t *testing.T) {
	in := Input{
		After: model.SimulatedState{
			AllocationByAssetClass: []model.AllocationSlice{{Key: "CASH", Weight: decimal.RequireFromString("0.05")}},
		},
		Reconciliation: model.Reconciliation{Status: model.ReconciliationOK},
		Options:        model.Defaults(),
	}
	in.Options.CashBandMinWeight = decimal.Zero
	in.Options.CashBandMaxWeight = decimal.RequireFromString("0.1")
	results, status := Evaluate(in)
	require.Equal(t, model.StatusReady, status)
	for _, r := range results {
		require.True(t, r.Passed, r.Code)
	}
}

func TestEvaluateHardFailBlocks(t *testing.T) {
	in := Input{
		After:          model.SimulatedState{},
		Reconciliation: model.Reconciliation{Status: model.ReconciliationMismatch},
		Options:        model.Defaults(),
	}
	_, status := Evaluate(in)
	require.Equal(t, model.StatusBlocked, status)
}

func TestEvaluateSoftFailPendingReview(t *testing.T) {
	in := Input{
		After: model.SimulatedState{
			AllocationByAssetClass: []model.AllocationSlice{{Key: "CASH", Weight: decimal.RequireFromString("0.5")}},
		},
		Reconciliation: model.Reconciliation{Status: model.ReconciliationOK},
		Options:        model.Defaults(),
	}
	in.Options.CashBandMaxWeight = decimal.RequireFromString("0.1")
	results, status := Evaluate(in)
	require.Equal(t, model.StatusPendingReview, status)
	found := false
	for _, r := range results {
		if r.Code == model.RuleCashBand {
			found = true
			require.False(t, r.Passed)
		}
	}
	require.True(t, found)
}

func TestEvaluateSinglePositionMaxHardFail(t *testing.T) {
	cap := decimal.RequireFromString("0.3")
	in := Input{
		After: model.SimulatedState{
			Positions: []model.SimulatedPosition{{InstrumentID: "EQ1", Weight: decimal.RequireFromString("0.5"), Value: money.New("500", "SGD")}},
		},
		Reconciliation: model.Reconciliation{Status: model.ReconciliationOK},
		Options:        model.Defaults(),
	}
	in.Options.SinglePositionMaxWeight = &cap
	_, status := Evaluate(in)
	require.Equal(t, model.StatusBlocked, status)
}
