// Package orchestrator composes the DPM rebalance pipeline: valuation,
// universe, target, intent, execution, rules, and the workflow gate, into
// the single RebalanceResult envelope (spec §3, §4.1-§4.8).
package orchestrator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/execution"
	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/gate"
	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/intent"
	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/rules"
	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/target"
	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/universe"
	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/valuation"
)

// Request is the full rebalance request payload (spec §6).
type Request struct {
	PortfolioID    string                   `json:"portfolio_id"`
	Portfolio      model.PortfolioSnapshot  `json:"portfolio"`
	MarketData     model.MarketDataSnapshot `json:"market_data"`
	Shelf          []model.ShelfEntry       `json:"shelf"`
	ModelPortfolio model.ModelPortfolio     `json:"model_portfolio"`
	Options        model.EngineOptions      `json:"options"`
}

const engineVersion = "dpm-engine-1"

// Run executes the full pipeline and returns the result envelope. runID,
// correlationID, and requestHash are supplied by the caller (the HTTP/async
// layer, via internal/canonical and internal/idgen) so that id generation
// and hashing policy live in one place, shared with the idempotency layer.
func Run(req Request, runID, correlationID, requestHash string, now time.Time) (model.RebalanceResult, error) {
	shelf := model.NewShelf(req.Shelf)

	beforeValuation := valuation.Value(req.Portfolio, req.MarketData, shelf, req.Options.ValuationMode)
	before := beforeValuation.State

	currentWeight := map[string]decimal.Decimal{}
	for _, p := range before.Positions {
		currentWeight[p.InstrumentID] = p.Weight
	}

	universeResult := universe.Build(req.ModelPortfolio, req.Portfolio, shelf, req.Options.AllowRestricted)

	targetResult := target.Generate(target.Input{
		Universe:      universeResult,
		CurrentWeight: currentWeight,
		Options:       req.Options,
	})

	diagnostics := model.Diagnostics{}
	for _, w := range beforeValuation.Warnings {
		diagnostics.AddWarning(w)
	}
	for _, w := range targetResult.Warnings {
		diagnostics.AddWarning(w)
	}
	diagnostics.DataQuality = beforeValuation.DataQuality

	if targetResult.Blocked {
		result := model.RebalanceResult{
			RunID: runID, CorrelationID: correlationID,
			Status: model.StatusBlocked, Before: before, AfterSimulated: before,
			Universe: universeResult, Target: targetResult, Diagnostics: diagnostics,
			Lineage:   lineage(req, requestHash),
			CreatedAt: now,
		}
		return result, nil
	}

	intentResult := intent.Generate(intent.Input{
		Targets:       targetResult,
		CurrentWeight: currentWeight,
		Before:        before,
		Portfolio:     req.Portfolio,
		MarketData:    req.MarketData,
		Shelf:         shelf,
		Options:       req.Options,
	})
	mergeDiagnostics(&diagnostics, intentResult.Diagnostics)

	execResult := execution.Simulate(execution.Input{
		SecurityIntents: intentResult.Intents,
		Before:          before,
		Portfolio:       req.Portfolio,
		MarketData:      req.MarketData,
		Shelf:           shelf,
		Options:         req.Options,
	})
	mergeDiagnostics(&diagnostics, execResult.Diagnostics)

	ruleResults, status := rules.Evaluate(rules.Input{
		After:            execResult.After,
		Reconciliation:   execResult.Reconciliation,
		DustSuppressed:   len(diagnostics.SuppressedIntents) > 0,
		ExecutionBlocked: execResult.Blocked,
		ExecutionReason:  execResult.BlockReason,
		Options:          req.Options,
	})

	gateDecision := gate.Evaluate(gate.Input{
		Status:      status,
		RuleResults: ruleResults,
		Diagnostics: diagnostics,
		Options:     req.Options,
	})

	result := model.RebalanceResult{
		RunID:          runID,
		CorrelationID:  correlationID,
		Status:         status,
		Before:         before,
		AfterSimulated: execResult.After,
		Universe:       universeResult,
		Target:         targetResult,
		Intents:        execResult.Intents,
		RuleResults:    ruleResults,
		Diagnostics:    diagnostics,
		Reconciliation: execResult.Reconciliation,
		TaxImpact:      intentResult.TaxImpact,
		Lineage:        lineage(req, requestHash),
		CreatedAt:      now,
	}
	if req.Options.EnableWorkflowGates {
		result.GateDecision = &gateDecision
	}
	return result, nil
}

func mergeDiagnostics(dst *model.Diagnostics, src model.Diagnostics) {
	for _, w := range src.Warnings {
		dst.AddWarning(w)
	}
	dst.SuppressedIntents = append(dst.SuppressedIntents, src.SuppressedIntents...)
	dst.DroppedIntents = append(dst.DroppedIntents, src.DroppedIntents...)
	dst.CashLadder = append(dst.CashLadder, src.CashLadder...)
	dst.CashLadderBreaches = append(dst.CashLadderBreaches, src.CashLadderBreaches...)
	dst.FundingPlan = append(dst.FundingPlan, src.FundingPlan...)
	dst.MissingFXPairs = append(dst.MissingFXPairs, src.MissingFXPairs...)
	dst.InsufficientCash = append(dst.InsufficientCash, src.InsufficientCash...)
	dst.TaxBudgetConstraintEvents = append(dst.TaxBudgetConstraintEvents, src.TaxBudgetConstraintEvents...)
}

func lineage(req Request, requestHash string) model.Lineage {
	return model.Lineage{
		RequestHash:          requestHash,
		PortfolioSnapshotID:  req.Portfolio.SnapshotID,
		MarketDataSnapshotID: req.MarketData.SnapshotID,
		EngineVersion:        engineVersion,
	}
}
