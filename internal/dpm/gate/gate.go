// Package gate derives the workflow routing decision from run status, rule
// results, and suitability findings. A pure function of its inputs
// (spec §4.8).
package gate

import (
	"sort"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
)

// Input bundles the state the gate evaluator needs.
type Input struct {
	Status       model.RunStatus
	RuleResults  []model.RuleResult
	Suitability  *model.SuitabilityResult
	Diagnostics  model.Diagnostics
	Options      model.EngineOptions
}

var severityRank = map[string]int{"HIGH": 0, "MEDIUM": 1, "LOW": 2}

// Evaluate derives the GateDecision (spec §4.8 evaluation order).
func Evaluate(in Input) model.GateDecision {
	if !in.Options.EnableWorkflowGates {
		return model.GateDecision{}
	}

	if in.Status == model.StatusBlocked {
		var reasons []model.GateReason
		for _, r := range in.RuleResults {
			if !r.Passed && r.Severity == model.SeverityHard {
				reasons = append(reasons, model.GateReason{Severity: "HIGH", Source: "RULE", Code: string(r.Code), Message: r.Message})
			}
		}
		reasons = append(reasons, diagnosticsReasons(in.Diagnostics)...)
		sortReasons(reasons)
		return model.GateDecision{Gate: model.GateBlocked, Next: "FIX_INPUT", Reasons: reasons}
	}

	if hasNewHighSuitability(in.Suitability) || hasGovernanceViolation(in.Suitability) {
		reasons := suitabilityReasons(in.Suitability, "NEW", "HIGH")
		reasons = append(reasons, governanceReasons(in.Suitability)...)
		sortReasons(reasons)
		return model.GateDecision{Gate: model.GateComplianceReviewRequired, Next: "COMPLIANCE_REVIEW", Reasons: reasons}
	}

	if hasSoftFail(in.RuleResults) || hasNewMediumSuitability(in.Suitability) {
		var reasons []model.GateReason
		for _, r := range in.RuleResults {
			if !r.Passed && r.Severity == model.SeveritySoft {
				reasons = append(reasons, model.GateReason{Severity: "MEDIUM", Source: "RULE", Code: string(r.Code), Message: r.Message})
			}
		}
		reasons = append(reasons, suitabilityReasons(in.Suitability, "NEW", "MEDIUM")...)
		sortReasons(reasons)
		return model.GateDecision{Gate: model.GateRiskReviewRequired, Next: "RISK_REVIEW", Reasons: reasons}
	}

	if in.Options.ClientConsentAlreadyObtained {
		return model.GateDecision{Gate: model.GateExecutionReady, Next: "EXECUTE"}
	}
	if in.Options.WorkflowRequiresClientConsent {
		return model.GateDecision{Gate: model.GateClientConsentRequired, Next: "OBTAIN_CLIENT_CONSENT"}
	}
	return model.GateDecision{Gate: model.GateExecutionReady, Next: "EXECUTE"}
}

// diagnosticsReasons turns the key, decision-relevant diagnostics into
// BLOCKED-gate reasons (spec §4.8: "all HARD fails + key diagnostics").
func diagnosticsReasons(d model.Diagnostics) []model.GateReason {
	var reasons []model.GateReason
	for _, pair := range d.MissingFXPairs {
		reasons = append(reasons, model.GateReason{Severity: "HIGH", Source: "DIAGNOSTICS", Code: "MISSING_FX_PAIR", Message: "missing FX rate for pair " + pair})
	}
	for _, breach := range d.CashLadderBreaches {
		reasons = append(reasons, model.GateReason{Severity: "HIGH", Source: "DIAGNOSTICS", Code: "CASH_LADDER_BREACH", Message: "settlement ladder breach: " + breach})
	}
	for _, ccy := range d.InsufficientCash {
		reasons = append(reasons, model.GateReason{Severity: "HIGH", Source: "DIAGNOSTICS", Code: "INSUFFICIENT_CASH", Message: "insufficient cash in " + ccy})
	}
	return reasons
}

func hasSoftFail(results []model.RuleResult) bool {
	for _, r := range results {
		if !r.Passed && r.Severity == model.SeveritySoft {
			return true
		}
	}
	return false
}

func hasNewHighSuitability(s *model.SuitabilityResult) bool {
	if s == nil {
		return false
	}
	for _, i := range s.Issues {
		if i.Status == model.SuitabilityNew && i.Severity == "HIGH" {
			return true
		}
	}
	return false
}

func hasNewMediumSuitability(s *model.SuitabilityResult) bool {
	if s == nil {
		return false
	}
	for _, i := range s.Issues {
		if i.Status == model.SuitabilityNew && i.Severity == "MEDIUM" {
			return true
		}
	}
	return false
}

func hasGovernanceViolation(s *model.SuitabilityResult) bool {
	if s == nil {
		return false
	}
	for _, i := range s.Issues {
		if i.Dimension == "GOVERNANCE" {
			return true
		}
	}
	return false
}

func suitabilityReasons(s *model.SuitabilityResult, status model.SuitabilityStatus, severity string) []model.GateReason {
	if s == nil {
		return nil
	}
	var reasons []model.GateReason
	for _, i := range s.Issues {
		if i.Status == status && i.Severity == severity {
			reasons = append(reasons, model.GateReason{Severity: severity, Source: "SUITABILITY", Code: i.IssueKey, Message: i.Message})
		}
	}
	return reasons
}

func governanceReasons(s *model.SuitabilityResult) []model.GateReason {
	if s == nil {
		return nil
	}
	var reasons []model.GateReason
	for _, i := range s.Issues {
		if i.Dimension == "GOVERNANCE" {
			reasons = append(reasons, model.GateReason{Severity: "HIGH", Source: "SUITABILITY", Code: i.IssueKey, Message: i.Message})
		}
	}
	return reasons
}

// sortReasons orders by severity (HIGH,MEDIUM,LOW), then source, then
// reason_code (spec §4.8).
func sortReasons(reasons []model.GateReason) {
	sort.Slice(reasons, func(i, j int) bool {
		if severityRank[reasons[i].Severity] != severityRank[reasons[j].Severity] {
			return severityRank[reasons[i].Severity] < severityRank[reasons[j].Severity]
		}
		if reasons[i].Source != reasons[j].Source {
			return reasons[i].Source < reasons[j].Source
		}
		return reasons[i].Code < reasons[j].Code
	})
}
