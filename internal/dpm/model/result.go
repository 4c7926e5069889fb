package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sgajbi/lotus-advise-sub000/internal/money"
)

// RunStatus is the outcome status attached to a RebalanceResult or
// ProposalResult (spec §3).
type RunStatus string

const (
	StatusReady         RunStatus = "READY"
	StatusPendingReview RunStatus = "PENDING_REVIEW"
	StatusBlocked       RunStatus = "BLOCKED"
)

// UniverseEntry is one instrument's classification in the rebalance
// universe (spec §4.3).
type UniverseEntry struct {
	InstrumentID string      `json:"instrument_id"`
	Shelf        *ShelfEntry `json:"shelf,omitempty"`
	BuyEligible  bool        `json:"buy_eligible"`
	SellEligible bool        `json:"sell_eligible"`
	Locked       bool        `json:"locked"`
	LockReason   string      `json:"lock_reason,omitempty"`
	HeldQuantity decimal.Decimal `json:"held_quantity"`
	ModelWeight  decimal.Decimal `json:"model_weight"`
}

// Universe is the ordered, classified set of candidate instruments.
type Universe struct {
	Entries []UniverseEntry `json:"entries"`
}

// ByInstrument indexes the universe by instrument id.
func (u Universe) ByInstrument() map[string]UniverseEntry {
	idx := make(map[string]UniverseEntry, len(u.Entries))
	for _, e := range u.Entries {
		idx[e.InstrumentID] = e
	}
	return idx
}

// Target is one instrument's final weight after constraint application
// (spec §4.4).
type Target struct {
	InstrumentID string          `json:"instrument_id"`
	FinalWeight  decimal.Decimal `json:"final_weight"`
	ModelWeight  decimal.Decimal `json:"model_weight"`
	Reasons      []string        `json:"reasons,omitempty"`
}

// TargetMethodComparison is attached to explanation output when
// compare_target_methods is set (spec §4.4).
type TargetMethodComparison struct {
	HeuristicStatus string                     `json:"heuristic_status"`
	SolverStatus    string                     `json:"solver_status"`
	WeightDeltas    map[string]decimal.Decimal `json:"weight_deltas"`
	Diverged        bool                       `json:"diverged"`
}

// TargetResult is the output of the target generation stage.
type TargetResult struct {
	Targets       []Target                `json:"targets"`
	Method        TargetMethod             `json:"method"`
	SolverStatus  string                   `json:"solver_status,omitempty"`
	Comparison    *TargetMethodComparison  `json:"target_method_comparison,omitempty"`
	// Hints carries INFEASIBILITY_HINT_* codes attached when the solver
	// path detects a recognized contradiction class (spec §4.4).
	Hints         []string                 `json:"infeasibility_hints,omitempty"`
	// Warnings carries target-method-comparison divergence warnings; the
	// orchestrator merges these into the run's diagnostics.
	Warnings      []string                 `json:"-"`
	Blocked       bool                     `json:"-"`
	BlockReason   string                   `json:"-"`
}

// ReconciliationStatus is the outcome of the before/after value check
// (spec §4.6).
type ReconciliationStatus string

const (
	ReconciliationOK      ReconciliationStatus = "OK"
	ReconciliationMismatch ReconciliationStatus = "MISMATCH"
)

// Reconciliation compares total portfolio value before and after simulation
// (spec §3, §4.6).
type Reconciliation struct {
	BeforeTotal money.Money          `json:"before_total"`
	AfterTotal  money.Money          `json:"after_total"`
	Delta       money.Money          `json:"delta"`
	Tolerance   money.Money          `json:"tolerance"`
	Status      ReconciliationStatus `json:"status"`
}

// RuleSeverity classifies a rule's failure mode (spec §4.7).
type RuleSeverity string

const (
	SeverityHard RuleSeverity = "HARD"
	SeveritySoft RuleSeverity = "SOFT"
	SeverityInfo RuleSeverity = "INFO"
)

// RuleCode enumerates the evaluated rules (spec §4.7).
type RuleCode string

const (
	RuleCashBand           RuleCode = "CASH_BAND"
	RuleSinglePositionMax  RuleCode = "SINGLE_POSITION_MAX"
	RuleDataQuality        RuleCode = "DATA_QUALITY"
	RuleMinTradeSize       RuleCode = "MIN_TRADE_SIZE"
	RuleNoShorting         RuleCode = "NO_SHORTING"
	RuleInsufficientCash   RuleCode = "INSUFFICIENT_CASH"
	RuleReconciliation     RuleCode = "RECONCILIATION"
)

// RuleResult is one rule's evaluation outcome.
type RuleResult struct {
	Code     RuleCode     `json:"code"`
	Severity RuleSeverity `json:"severity"`
	Passed   bool         `json:"passed"`
	Message  string       `json:"message"`
	Reasons  []string     `json:"reasons,omitempty"`
}

// LineageEdgeType enumerates the supported lineage relationships (spec §3).
type LineageEdgeType string

const (
	LineageCorrelationToRun   LineageEdgeType = "CORRELATION_TO_RUN"
	LineageIdempotencyToRun   LineageEdgeType = "IDEMPOTENCY_TO_RUN"
	LineageOperationToCorrelation LineageEdgeType = "OPERATION_TO_CORRELATION"
)

// Lineage is embedded in every result for traceability (spec §3).
type Lineage struct {
	RequestHash           string `json:"request_hash"`
	PortfolioSnapshotID   string `json:"portfolio_snapshot_id"`
	MarketDataSnapshotID  string `json:"market_data_snapshot_id"`
	EngineVersion         string `json:"engine_version"`
}

// AllocationSlice is one bucket's allocation in the after-state.
type AllocationSlice struct {
	Key    string          `json:"key"`
	Value  money.Money     `json:"value"`
	Weight decimal.Decimal `json:"weight"`
}

// SimulatedPosition is an enriched position in a SimulatedState.
type SimulatedPosition struct {
	InstrumentID string          `json:"instrument_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	Value        money.Money     `json:"value"`
	Weight       decimal.Decimal `json:"weight"`
}

// SimulatedState is the enriched before/after portfolio state (spec §3).
type SimulatedState struct {
	TotalValue             money.Money         `json:"total_value"`
	CashBalances            []CashBalance       `json:"cash_balances"`
	Positions               []SimulatedPosition `json:"positions"`
	AllocationByAssetClass  []AllocationSlice   `json:"allocation_by_asset_class"`
	AllocationByInstrument  []AllocationSlice   `json:"allocation_by_instrument"`
	AllocationByAttribute   map[string][]AllocationSlice `json:"allocation_by_attribute,omitempty"`
	DataQuality             []string            `json:"data_quality,omitempty"`
}

// TaxImpact is the aggregate realized-gains outcome of tax-aware selling
// (spec §4.5).
type TaxImpact struct {
	TotalRealizedGain money.Money `json:"total_realized_gain"`
	Events            []TaxBudgetConstraintEvent `json:"events,omitempty"`
}

// GateValue enumerates the workflow gate routing decisions (spec §4.8).
type GateValue string

const (
	GateBlocked                 GateValue = "BLOCKED"
	GateComplianceReviewRequired GateValue = "COMPLIANCE_REVIEW_REQUIRED"
	GateRiskReviewRequired      GateValue = "RISK_REVIEW_REQUIRED"
	GateClientConsentRequired   GateValue = "CLIENT_CONSENT_REQUIRED"
	GateExecutionReady          GateValue = "EXECUTION_READY"
)

// GateReason is a single reason attached to a gate decision, ordered by
// severity then source then code (spec §4.8).
type GateReason struct {
	Severity string `json:"severity"` // HIGH|MEDIUM|LOW
	Source   string `json:"source"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// GateDecision is the pure function output of the workflow gate evaluator
// (spec §4.8).
type GateDecision struct {
	Gate    GateValue    `json:"gate"`
	Next    string       `json:"next,omitempty"`
	Reasons []GateReason `json:"reasons,omitempty"`
}

// RebalanceResult is the DPM pipeline's output envelope (spec §3).
type RebalanceResult struct {
	RunID           string          `json:"run_id"`
	CorrelationID   string          `json:"correlation_id"`
	Status          RunStatus       `json:"status"`
	Before          SimulatedState  `json:"before"`
	AfterSimulated  SimulatedState  `json:"after_simulated"`
	Universe        Universe        `json:"universe"`
	Target          TargetResult    `json:"target"`
	Intents         []Intent        `json:"intents"`
	RuleResults     []RuleResult    `json:"rule_results"`
	Diagnostics     Diagnostics     `json:"diagnostics"`
	Reconciliation  Reconciliation  `json:"reconciliation"`
	TaxImpact       *TaxImpact      `json:"tax_impact,omitempty"`
	GateDecision    *GateDecision   `json:"gate_decision,omitempty"`
	Lineage         Lineage         `json:"lineage"`
	CreatedAt       time.Time       `json:"created_at"`
}

// DriftBucket is one asset-class/instrument drift measurement (spec §4.10).
type DriftBucket struct {
	BucketID        string          `json:"bucket_id"`
	WeightModel     decimal.Decimal `json:"weight_model"`
	DriftBefore     decimal.Decimal `json:"drift_before"`
	DriftAfter      decimal.Decimal `json:"drift_after"`
	AbsDriftBefore  decimal.Decimal `json:"abs_drift_before"`
	AbsDriftAfter   decimal.Decimal `json:"abs_drift_after"`
	Improvement     decimal.Decimal `json:"improvement"`
}

// DriftAnalysis is the advisory drift-analytics output (spec §4.10).
type DriftAnalysis struct {
	TotalDriftBefore   decimal.Decimal `json:"total_drift_before"`
	TotalDriftAfter    decimal.Decimal `json:"total_drift_after"`
	Buckets            []DriftBucket   `json:"buckets"`
	TopContributors    []DriftBucket   `json:"top_contributors"`
}

// SuitabilityStatus classifies an issue relative to the before-state.
type SuitabilityStatus string

const (
	SuitabilityNew        SuitabilityStatus = "NEW"
	SuitabilityPersistent SuitabilityStatus = "PERSISTENT"
	SuitabilityResolved   SuitabilityStatus = "RESOLVED"
)

// SuitabilityIssue is one detected suitability concern (spec §4.11).
type SuitabilityIssue struct {
	IssueKey  string            `json:"issue_key"`
	Dimension string            `json:"dimension"`
	Status    SuitabilityStatus `json:"status"`
	Severity  string            `json:"severity"` // HIGH|MEDIUM|LOW
	Message   string            `json:"message"`
}

// SuitabilityResult is the advisory suitability-scan output (spec §4.11).
type SuitabilityResult struct {
	Issues          []SuitabilityIssue `json:"issues"`
	RecommendedGate string             `json:"recommended_gate"` // COMPLIANCE_REVIEW|RISK_REVIEW|NONE
}

// ProposalResult is the advisory pipeline's output envelope (spec §3),
// structurally identical to RebalanceResult plus drift/suitability.
type ProposalResult struct {
	RunID          string          `json:"run_id"`
	CorrelationID  string          `json:"correlation_id"`
	Status         RunStatus       `json:"status"`
	Before         SimulatedState  `json:"before"`
	AfterSimulated SimulatedState  `json:"after_simulated"`
	Intents        []Intent        `json:"intents"`
	RuleResults    []RuleResult    `json:"rule_results"`
	Diagnostics    Diagnostics     `json:"diagnostics"`
	Reconciliation Reconciliation  `json:"reconciliation"`
	DriftAnalysis  *DriftAnalysis  `json:"drift_analysis,omitempty"`
	Suitability    *SuitabilityResult `json:"suitability,omitempty"`
	GateDecision   *GateDecision   `json:"gate_decision,omitempty"`
	Lineage        Lineage         `json:"lineage"`
	CreatedAt      time.Time       `json:"created_at"`
}
