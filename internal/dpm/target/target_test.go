package target

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/universe"
)

func buildUniverse(t *testing.T, modelPortfolio model.ModelPortfolio, shelf model.Shelf, held map[string]decimal.Decimal) model.Universe {
	t.Helper()
	portfolio := model.PortfolioSnapshot{}
	for id, qty := range held {
		portfolio.Positions = append(portfolio.Positions, model.Position{InstrumentID: id, Quantity: qty})
	}
	return universe.Build(modelPortfolio, portfolio, shelf, false)
}

func byID(targets []model.Target) map[string]model.Target {
	idx := make(map[string]model.Target, len(targets))
	for _, tg := range targets {
		idx[tg.InstrumentID] = tg
	}
	return idx
}

// TestGenerateHeuristicGroupConstraint pins down spec scenario 2: a
// single-position cap redistributes its overflow into an uncapped name,
// and the subsequent group cap must not re-cap that name a second time.
func TestGenerateHeuristicGroupConstraint(t *testing.T) {
	modelPortfolio := model.ModelPortfolio{
		"TechA": decimal.RequireFromString("0.50"),
		"TechB": decimal.RequireFromString("0.50"),
	}
	shelf := model.NewShelf([]model.ShelfEntry{
		{InstrumentID: "TechA", Status: model.ShelfApproved, Attributes: map[string]string{"sector": "TECH"}},
		{InstrumentID: "TechB", Status: model.ShelfApproved, Attributes: map[string]string{"sector": "TECH"}},
		{InstrumentID: "BondC", Status: model.ShelfApproved, Attributes: map[string]string{"sector": "BOND"}},
	})
	held := map[string]decimal.Decimal{"BondC": decimal.NewFromInt(1)}
	u := buildUniverse(t, modelPortfolio, shelf, held)

	opts := model.Defaults()
	cap := decimal.RequireFromString("0.30")
	opts.SinglePositionMaxWeight = &cap
	opts.GroupConstraints = map[string]model.GroupConstraint{
		"sector:TECH": {MaxWeight: decimal.RequireFromString("0.20")},
	}

	result := Generate(Input{
		Universe:      u,
		CurrentWeight: map[string]decimal.Decimal{},
		Options:       opts,
	})
	require.False(t, result.Blocked)
	targets := byID(result.Targets)

	techSum := targets["TechA"].FinalWeight.Add(targets["TechB"].FinalWeight)
	require.InDelta(t, 0.20, mustFloat(techSum), 1e-9, "tech group should sum to 0.20, got %s", techSum)
	require.InDelta(t, 0.80, mustFloat(targets["BondC"].FinalWeight), 1e-9, "BondC should absorb the full overflow, got %s", targets["BondC"].FinalWeight)
	require.Contains(t, targets["TechA"].Reasons, "CAPPED_BY_MAX_WEIGHT")
	require.Contains(t, targets["TechA"].Reasons, "CAPPED_BY_GROUP_LIMIT")
	require.Contains(t, targets["BondC"].Reasons, "REDISTRIBUTED_RECIPIENT")
}

func TestGenerateHeuristicSellOnlyAbsorption(t *testing.T) {
	modelPortfolio := model.ModelPortfolio{
		"SellOnlyEQ": decimal.RequireFromString("0.40"),
		"Buyable":    decimal.RequireFromString("0.60"),
	}
	shelf := model.NewShelf([]model.ShelfEntry{
		{InstrumentID: "SellOnlyEQ", Status: model.ShelfSellOnly},
		{InstrumentID: "Buyable", Status: model.ShelfApproved},
	})
	held := map[string]decimal.Decimal{"SellOnlyEQ": decimal.NewFromInt(1)}
	u := buildUniverse(t, modelPortfolio, shelf, held)

	current := map[string]decimal.Decimal{"SellOnlyEQ": decimal.RequireFromString("0.10")}
	result := Generate(Input{Universe: u, CurrentWeight: current, Options: model.Defaults()})
	require.False(t, result.Blocked)
	targets := byID(result.Targets)

	// SellOnlyEQ cannot be bought up to 0.40: it is capped at its current
	// weight (0.10) and the 0.30 excess is absorbed into Buyable.
	require.True(t, targets["SellOnlyEQ"].FinalWeight.Equal(decimal.RequireFromString("0.10")))
	require.True(t, targets["Buyable"].FinalWeight.Equal(decimal.RequireFromString("0.90")))
}

func TestGenerateHeuristicLockedPositionFrozen(t *testing.T) {
	modelPortfolio := model.ModelPortfolio{"Buyable": decimal.RequireFromString("1")}
	shelf := model.NewShelf([]model.ShelfEntry{
		{InstrumentID: "Frozen", Status: model.ShelfBanned},
		{InstrumentID: "Buyable", Status: model.ShelfApproved},
	})
	held := map[string]decimal.Decimal{"Frozen": decimal.NewFromInt(1)}
	u := buildUniverse(t, modelPortfolio, shelf, held)

	current := map[string]decimal.Decimal{"Frozen": decimal.RequireFromString("0.25")}
	result := Generate(Input{Universe: u, CurrentWeight: current, Options: model.Defaults()})
	require.False(t, result.Blocked)
	targets := byID(result.Targets)

	require.True(t, targets["Frozen"].FinalWeight.Equal(decimal.RequireFromString("0.25")))
	require.Contains(t, targets["Frozen"].Reasons, "LOCKED_POSITION")
	// Buyable absorbs the remaining 0.75, not the full 1.0 model weight.
	require.True(t, targets["Buyable"].FinalWeight.Equal(decimal.RequireFromString("0.75")))
}

func TestGenerateHeuristicNoEligibleDestinationBlocks(t *testing.T) {
	modelPortfolio := model.ModelPortfolio{"OnlyTech": decimal.RequireFromString("1")}
	shelf := model.NewShelf([]model.ShelfEntry{
		{InstrumentID: "OnlyTech", Status: model.ShelfApproved, Attributes: map[string]string{"sector": "TECH"}},
	})
	u := buildUniverse(t, modelPortfolio, shelf, nil)

	opts := model.Defaults()
	opts.GroupConstraints = map[string]model.GroupConstraint{
		"sector:TECH": {MaxWeight: decimal.RequireFromString("0.20")},
	}
	result := Generate(Input{Universe: u, CurrentWeight: map[string]decimal.Decimal{}, Options: opts})
	require.True(t, result.Blocked)
	require.Equal(t, "NO_ELIGIBLE_REDISTRIBUTION_DESTINATION", result.BlockReason)
}

func TestGenerateSolverMatchesModelWhenUnconstrained(t *testing.T) {
	modelPortfolio := model.ModelPortfolio{
		"EQ1": decimal.RequireFromString("0.6"),
		"EQ2": decimal.RequireFromString("0.4"),
	}
	shelf := model.NewShelf([]model.ShelfEntry{
		{InstrumentID: "EQ1", Status: model.ShelfApproved},
		{InstrumentID: "EQ2", Status: model.ShelfApproved},
	})
	u := buildUniverse(t, modelPortfolio, shelf, nil)

	opts := model.Defaults()
	opts.TargetMethod = model.TargetSolver
	result := Generate(Input{Universe: u, CurrentWeight: map[string]decimal.Decimal{}, Options: opts})
	require.False(t, result.Blocked)
	require.Equal(t, "OPTIMAL", result.SolverStatus)
	targets := byID(result.Targets)
	require.InDelta(t, 0.6, mustFloat(targets["EQ1"].FinalWeight), 1e-4)
	require.InDelta(t, 0.4, mustFloat(targets["EQ2"].FinalWeight), 1e-4)
}

func TestGenerateSolverInfeasibleCashBandContradiction(t *testing.T) {
	modelPortfolio := model.ModelPortfolio{"Frozen": decimal.RequireFromString("1")}
	shelf := model.NewShelf([]model.ShelfEntry{{InstrumentID: "Frozen", Status: model.ShelfBanned}})
	u := buildUniverse(t, modelPortfolio, shelf, map[string]decimal.Decimal{"Frozen": decimal.NewFromInt(1)})

	opts := model.Defaults()
	opts.TargetMethod = model.TargetSolver
	opts.CashBandMinWeight = decimal.RequireFromString("0.10")

	current := map[string]decimal.Decimal{"Frozen": decimal.RequireFromString("0.95")}
	result := Generate(Input{Universe: u, CurrentWeight: current, Options: opts})
	require.True(t, result.Blocked)
	require.Contains(t, result.Hints, "INFEASIBILITY_HINT_CASH_BAND_CONTRADICTION")
}

func TestGenerateCompareTargetMethodsAttachesComparison(t *testing.T) {
	modelPortfolio := model.ModelPortfolio{
		"EQ1": decimal.RequireFromString("0.5"),
		"EQ2": decimal.RequireFromString("0.5"),
	}
	shelf := model.NewShelf([]model.ShelfEntry{
		{InstrumentID: "EQ1", Status: model.ShelfApproved},
		{InstrumentID: "EQ2", Status: model.ShelfApproved},
	})
	u := buildUniverse(t, modelPortfolio, shelf, nil)

	opts := model.Defaults()
	opts.CompareTargetMethods = true
	opts.CompareTargetMethodsTolerance = decimal.RequireFromString("0.0001")
	result := Generate(Input{Universe: u, CurrentWeight: map[string]decimal.Decimal{}, Options: opts})
	require.NotNil(t, result.Comparison)
	require.False(t, result.Comparison.Diverged)
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
