// Package rules evaluates the after-state against the configured rule set
// and derives the run status (spec §4.7).
package rules

import (
	"github.com/shopspring/decimal"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
)

// Input bundles the state the rule engine needs.
type Input struct {
	After           model.SimulatedState
	Reconciliation  model.Reconciliation
	DustSuppressed  bool
	ExecutionBlocked bool
	ExecutionReason string
	Options         model.EngineOptions
}

// Evaluate runs every rule against in.After and derives the overall status
// (spec §4.7: "any HARD fail -> BLOCKED; else any SOFT fail ->
// PENDING_REVIEW; else READY").
func Evaluate(in Input) ([]model.RuleResult, model.RunStatus) {
	var results []model.RuleResult

	results = append(results, cashBandRule(in))
	results = append(results, singlePositionMaxRule(in))
	results = append(results, dataQualityRule(in))
	results = append(results, minTradeSizeRule(in))
	results = append(results, noShortingRule(in))
	results = append(results, insufficientCashRule(in))
	results = append(results, reconciliationRule(in))

	status := model.StatusReady
	anySoft := false
	for _, r := range results {
		if r.Passed {
			continue
		}
		switch r.Severity {
		case model.SeverityHard:
			return results, model.StatusBlocked
		case model.SeveritySoft:
			anySoft = true
		}
	}
	if anySoft {
		status = model.StatusPendingReview
	}
	return results, status
}

func cashBandRule(in Input) model.RuleResult {
	var cashWeight decimal.Decimal
	for _, slice := range in.After.AllocationByAssetClass {
		if slice.Key == "CASH" {
			cashWeight = slice.Weight
		}
	}
	passed := cashWeight.GreaterThanOrEqual(in.Options.CashBandMinWeight) && cashWeight.LessThanOrEqual(in.Options.CashBandMaxWeight)
	return model.RuleResult{
		Code:     model.RuleCashBand,
		Severity: model.SeveritySoft,
		Passed:   passed,
		Message:  "cash weight within configured band",
	}
}

func singlePositionMaxRule(in Input) model.RuleResult {
	if in.Options.SinglePositionMaxWeight == nil {
		return model.RuleResult{Code: model.RuleSinglePositionMax, Severity: model.SeverityHard, Passed: true, Message: "no cap configured"}
	}
	cap := *in.Options.SinglePositionMaxWeight
	for _, p := range in.After.Positions {
		if p.Weight.GreaterThan(cap) {
			return model.RuleResult{
				Code:     model.RuleSinglePositionMax,
				Severity: model.SeverityHard,
				Passed:   false,
				Message:  "instrument weight exceeds single position maximum",
				Reasons:  []string{p.InstrumentID},
			}
		}
	}
	return model.RuleResult{Code: model.RuleSinglePositionMax, Severity: model.SeverityHard, Passed: true, Message: "all weights within cap"}
}

func dataQualityRule(in Input) model.RuleResult {
	severity := model.SeverityInfo
	if in.Options.BlockOnMissingPrices || in.Options.BlockOnMissingFX {
		severity = model.SeverityHard
	}
	var bad []string
	for _, dq := range in.After.DataQuality {
		if dq == "price_missing" && in.Options.BlockOnMissingPrices {
			bad = append(bad, dq)
		}
		if dq == "fx_missing" && in.Options.BlockOnMissingFX {
			bad = append(bad, dq)
		}
	}
	return model.RuleResult{
		Code:     model.RuleDataQuality,
		Severity: severity,
		Passed:   len(bad) == 0,
		Message:  "data quality buckets evaluated against blocking configuration",
		Reasons:  bad,
	}
}

func minTradeSizeRule(in Input) model.RuleResult {
	return model.RuleResult{
		Code:     model.RuleMinTradeSize,
		Severity: model.SeverityInfo,
		Passed:   true,
		Message:  dustMessage(in.DustSuppressed),
	}
}

func dustMessage(suppressed bool) string {
	if suppressed {
		return "one or more trades suppressed below minimum notional"
	}
	return "no trades suppressed below minimum notional"
}

func noShortingRule(in Input) model.RuleResult {
	passed := !(in.ExecutionBlocked && in.ExecutionReason == "NO_SHORTING")
	return model.RuleResult{Code: model.RuleNoShorting, Severity: model.SeverityHard, Passed: passed, Message: "no holding sold below zero"}
}

func insufficientCashRule(in Input) model.RuleResult {
	passed := !(in.ExecutionBlocked && in.ExecutionReason == "INSUFFICIENT_CASH")
	return model.RuleResult{Code: model.RuleInsufficientCash, Severity: model.SeverityHard, Passed: passed, Message: "projected cash covered by available funds or overdraft"}
}

func reconciliationRule(in Input) model.RuleResult {
	passed := in.Reconciliation.Status == model.ReconciliationOK
	return model.RuleResult{Code: model.RuleReconciliation, Severity: model.SeverityHard, Passed: passed, Message: "before/after total value reconciles within tolerance"}
}
