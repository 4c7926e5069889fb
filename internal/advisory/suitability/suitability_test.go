package suitability

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestScanDetectsNewSinglePositionIssue(t *testing.T) {
	cap := dec("0.5")
	opts := model.Defaults()
	opts.SuitabilitySinglePositionMaxWeight = &cap

	before := model.SimulatedState{Positions: []model.SimulatedPosition{{InstrumentID: "EQ1", Weight: dec("0.3")}}}
	after := model.SimulatedState{Positions: []model.SimulatedPosition{{InstrumentID: "EQ1", Weight: dec("0.6")}}}

	result := Scan(Input{Before: before, After: after, Options: opts})
	require.Len(t, result.Issues, 1)
	require.Equal(t, model.SuitabilityNew, result.Issues[0].Status)
	require.Equal(t, "HIGH", result.Issues[0].Severity)
	require.Equal(t, "COMPLIANCE_REVIEW", result.RecommendedGate)
}

func TestScanClassifiesResolvedIssue(t *testing.T) {
	cap := dec("0.5")
	opts := model.Defaults()
	opts.SuitabilitySinglePositionMaxWeight = &cap

	before := model.SimulatedState{Positions: []model.SimulatedPosition{{InstrumentID: "EQ1", Weight: dec("0.6")}}}
	after := model.SimulatedState{Positions: []model.SimulatedPosition{{InstrumentID: "EQ1", Weight: dec("0.4")}}}

	result := Scan(Input{Before: before, After: after, Options: opts})
	require.Len(t, result.Issues, 1)
	require.Equal(t, model.SuitabilityResolved, result.Issues[0].Status)
	require.Equal(t, "NONE", result.RecommendedGate)
}

func TestScanGovernanceFlagsAttemptedBuyOnRestrictedShelf(t *testing.T) {
	shelf := model.NewShelf([]model.ShelfEntry{{InstrumentID: "EQ1", Status: model.ShelfSellOnly}})
	intents := []model.Intent{{Kind: model.IntentSecurityTrade, InstrumentID: "EQ1", Side: model.SideBuy}}

	result := Scan(Input{
		Before:  model.SimulatedState{},
		After:   model.SimulatedState{},
		Shelf:   shelf,
		Intents: intents,
		Options: model.Defaults(),
	})
	require.Len(t, result.Issues, 1)
	require.Equal(t, "GOVERNANCE", result.Issues[0].Dimension)
	require.Equal(t, model.SuitabilityNew, result.Issues[0].Status)
}

func TestScanPersistentIssueStaysAcrossBoth(t *testing.T) {
	cap := dec("0.5")
	opts := model.Defaults()
	opts.SuitabilitySinglePositionMaxWeight = &cap
	state := model.SimulatedState{Positions: []model.SimulatedPosition{{InstrumentID: "EQ1", Weight: dec("0.7")}}}

	result := Scan(Input{Before: state, After: state, Options: opts})
	require.Len(t, result.Issues, 1)
	require.Equal(t, model.SuitabilityPersistent, result.Issues[0].Status)
}
