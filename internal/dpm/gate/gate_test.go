package gate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
)

func enabledOptions() model.EngineOptions {
	o := model.Defaults()
	o.EnableWorkflowGates = true
	return o
}

func TestEvaluateBlockedStatusYieldsBlockedGate(t *testing.T) {
	in := Input{
		Status:      model.StatusBlocked,
		RuleResults: []model.RuleResult{{Code: model.RuleReconciliation, Severity: model.SeverityHard, Passed: false, Message: "mismatch"}},
		Options:     enabledOptions(),
	}
	dec := Evaluate(in)
	require.Equal(t, model.GateBlocked, dec.Gate)
	require.Equal(t, "FIX_INPUT", dec.Next)
}

func TestEvaluateBlockedStatusIncludesKeyDiagnostics(t *testing.T) {
	in := Input{
		Status:      model.StatusBlocked,
		RuleResults: []model.RuleResult{{Code: model.RuleReconciliation, Severity: model.SeverityHard, Passed: false, Message: "mismatch"}},
		Diagnostics: model.Diagnostics{
			CashLadderBreaches: []string{"OVERDRAFT_ON_T_PLUS_1"},
			InsufficientCash:   []string{"USD"},
			MissingFXPairs:     []string{"SGD/JPY"},
		},
		Options: enabledOptions(),
	}
	dec := Evaluate(in)
	require.Equal(t, model.GateBlocked, dec.Gate)
	require.Len(t, dec.Reasons, 4)

	var codes []string
	for _, r := range dec.Reasons {
		codes = append(codes, r.Code)
	}
	require.Contains(t, codes, string(model.RuleReconciliation))
	require.Contains(t, codes, "CASH_LADDER_BREACH")
	require.Contains(t, codes, "INSUFFICIENT_CASH")
	require.Contains(t, codes, "MISSING_FX_PAIR")
}

func TestEvaluateNewHighSuitabilityRequiresCompliance(t *testing.T) {
	in := Input{
		Status:      model.StatusReady,
		RuleResults: []model.RuleResult{{Code: model.RuleCashBand, Severity: model.SeveritySoft, Passed: true}},
		Suitability: &model.SuitabilityResult{Issues: []model.SuitabilityIssue{{IssueKey: "k1", Status: model.SuitabilityNew, Severity: "HIGH", Dimension: "CONCENTRATION"}}},
		Options:     enabledOptions(),
	}
	dec := Evaluate(in)
	require.Equal(t, model.GateComplianceReviewRequired, dec.Gate)
}

func TestEvaluateSoftFailRequiresRiskReview(t *testing.T) {
	in := Input{
		Status:      model.StatusPendingReview,
		RuleResults: []model.RuleResult{{Code: model.RuleCashBand, Severity: model.SeveritySoft, Passed: false, Message: "cash out of band"}},
		Options:     enabledOptions(),
	}
	dec := Evaluate(in)
	require.Equal(t, model.GateRiskReviewRequired, dec.Gate)
}

func TestEvaluateCleanFeasibleWithConsentIsExecutionReady(t *testing.T) {
	opts := enabledOptions()
	opts.ClientConsentAlreadyObtained = true
	in := Input{Status: model.StatusReady, Options: opts}
	dec := Evaluate(in)
	require.Equal(t, model.GateExecutionReady, dec.Gate)
}

func TestEvaluateCleanFeasibleRequiresClientConsent(t *testing.T) {
	opts := enabledOptions()
	opts.WorkflowRequiresClientConsent = true
	in := Input{Status: model.StatusReady, Options: opts}
	dec := Evaluate(in)
	require.Equal(t, model.GateClientConsentRequired, dec.Gate)
}

func TestEvaluateDisabledGatesReturnsZeroValue(t *testing.T) {
	in := Input{Status: model.StatusReady, Options: model.Defaults()}
	dec := Evaluate(in)
	require.Equal(t, model.GateDecision{}, dec)
}
