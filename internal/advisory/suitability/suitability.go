// Package suitability scans before/after portfolio states for suitability
// concerns and classifies each as NEW, RESOLVED, or PERSISTENT (spec §4.11).
package suitability

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
)

// Input bundles the state suitability scanning needs.
type Input struct {
	Before  model.SimulatedState
	After   model.SimulatedState
	Shelf   model.Shelf
	Intents []model.Intent // attempted SECURITY_TRADE intents, including any execution blocked
	Options model.EngineOptions
}

type found struct {
	dimension string
	severity  string
	message   string
}

var statusRank = map[model.SuitabilityStatus]int{
	model.SuitabilityNew:        0,
	model.SuitabilityPersistent: 1,
	model.SuitabilityResolved:   2,
}

var severityRank = map[string]int{"HIGH": 0, "MEDIUM": 1, "LOW": 2}

// Scan computes the full suitability issue set (spec §4.11).
func Scan(in Input) model.SuitabilityResult {
	beforeFound := detect(in, in.Before, false)
	afterFound := detect(in, in.After, true)

	keys := map[string]struct{}{}
	for k := range beforeFound {
		keys[k] = struct{}{}
	}
	for k := range afterFound {
		keys[k] = struct{}{}
	}

	issues := make([]model.SuitabilityIssue, 0, len(keys))
	for key := range keys {
		b, inBefore := beforeFound[key]
		a, inAfter := afterFound[key]

		var status model.SuitabilityStatus
		var f found
		switch {
		case inAfter && !inBefore:
			status = model.SuitabilityNew
			f = a
		case inBefore && !inAfter:
			status = model.SuitabilityResolved
			f = b
		default:
			status = model.SuitabilityPersistent
			f = a
		}

		issues = append(issues, model.SuitabilityIssue{
			IssueKey:  key,
			Dimension: f.dimension,
			Status:    status,
			Severity:  f.severity,
			Message:   f.message,
		})
	}

	sort.Slice(issues, func(i, j int) bool {
		if statusRank[issues[i].Status] != statusRank[issues[j].Status] {
			return statusRank[issues[i].Status] < statusRank[issues[j].Status]
		}
		if severityRank[issues[i].Severity] != severityRank[issues[j].Severity] {
			return severityRank[issues[i].Severity] < severityRank[issues[j].Severity]
		}
		if issues[i].Dimension != issues[j].Dimension {
			return issues[i].Dimension < issues[j].Dimension
		}
		return issues[i].IssueKey < issues[j].IssueKey
	})

	return model.SuitabilityResult{
		Issues:          issues,
		RecommendedGate: recommendedGate(issues),
	}
}

func recommendedGate(issues []model.SuitabilityIssue) string {
	hasNewHigh, hasNewMedium := false, false
	for _, issue := range issues {
		if issue.Status != model.SuitabilityNew {
			continue
		}
		if issue.Severity == "HIGH" {
			hasNewHigh = true
		}
		if issue.Severity == "MEDIUM" {
			hasNewMedium = true
		}
	}
	switch {
	case hasNewHigh:
		return "COMPLIANCE_REVIEW"
	case hasNewMedium:
		return "RISK_REVIEW"
	default:
		return "NONE"
	}
}

// detect runs every enabled check against one state, returning the set of
// triggered issue keys. isAfter gates the governance check, which has no
// meaningful "before" state since it evaluates attempted trades.
func detect(in Input, state model.SimulatedState, isAfter bool) map[string]found {
	out := map[string]found{}

	if in.Options.SuitabilitySinglePositionMaxWeight != nil {
		for _, pos := range state.Positions {
			if pos.Weight.GreaterThan(*in.Options.SuitabilitySinglePositionMaxWeight) {
				key := fmt.Sprintf("SINGLE_POSITION:%s", pos.InstrumentID)
				out[key] = found{"SINGLE_POSITION", "HIGH", fmt.Sprintf("%s exceeds single-position limit", pos.InstrumentID)}
			}
		}
	}

	if in.Options.IssuerConcentrationMaxWeight != nil {
		byIssuer := map[string]decimal.Decimal{}
		for _, pos := range state.Positions {
			issuer := issuerFor(in.Shelf, pos.InstrumentID)
			if issuer == "" {
				continue
			}
			byIssuer[issuer] = byIssuer[issuer].Add(pos.Weight)
		}
		for issuer, w := range byIssuer {
			if w.GreaterThan(*in.Options.IssuerConcentrationMaxWeight) {
				key := fmt.Sprintf("ISSUER_CONCENTRATION:%s", issuer)
				out[key] = found{"ISSUER_CONCENTRATION", "HIGH", fmt.Sprintf("issuer %s exceeds concentration limit", issuer)}
			}
		}
	}

	if len(in.Options.LiquidityTierMaxWeight) > 0 {
		byTier := map[string]decimal.Decimal{}
		for _, pos := range state.Positions {
			tier := tierFor(in.Shelf, pos.InstrumentID)
			if tier == "" {
				continue
			}
			byTier[tier] = byTier[tier].Add(pos.Weight)
		}
		for tier, w := range byTier {
			if max, ok := in.Options.LiquidityTierMaxWeight[tier]; ok && w.GreaterThan(max) {
				key := fmt.Sprintf("LIQUIDITY_TIER:%s", tier)
				out[key] = found{"LIQUIDITY_TIER", "MEDIUM", fmt.Sprintf("liquidity tier %s exceeds concentration limit", tier)}
			}
		}
	}

	cashWeight := decimal.Zero
	for _, a := range state.AllocationByAssetClass {
		if a.Key == "CASH" {
			cashWeight = a.Weight
		}
	}
	if cashWeight.LessThan(in.Options.CashBandMinWeight) || cashWeight.GreaterThan(in.Options.CashBandMaxWeight) {
		out["CASH_BAND:CASH"] = found{"CASH_BAND", "MEDIUM", "cash weight outside compliance band"}
	}

	for _, bucket := range state.DataQuality {
		key := fmt.Sprintf("DATA_QUALITY:%s", bucket)
		severity := in.Options.DataQualitySeverity
		if severity == "" {
			severity = "HIGH"
		}
		out[key] = found{"DATA_QUALITY", severity, fmt.Sprintf("data quality issue: %s", bucket)}
	}

	if isAfter {
		for _, intent := range in.Intents {
			if intent.Kind != model.IntentSecurityTrade || intent.Side != model.SideBuy {
				continue
			}
			entry, ok := in.Shelf[intent.InstrumentID]
			if !ok {
				continue
			}
			if entry.Status == model.ShelfSellOnly || entry.Status == model.ShelfSuspended ||
				entry.Status == model.ShelfBanned || (entry.Status == model.ShelfRestricted && !in.Options.AllowRestricted) {
				key := fmt.Sprintf("GOVERNANCE:%s", intent.InstrumentID)
				out[key] = found{"GOVERNANCE", "HIGH", fmt.Sprintf("attempted buy of %s violates shelf status %s", intent.InstrumentID, entry.Status)}
			}
		}
	}

	return out
}

func issuerFor(shelf model.Shelf, instrumentID string) string {
	if entry, ok := shelf[instrumentID]; ok {
		return entry.IssuerID
	}
	return ""
}

func tierFor(shelf model.Shelf, instrumentID string) string {
	if entry, ok := shelf[instrumentID]; ok {
		return entry.LiquidityTier
	}
	return ""
}
