// Package policy resolves the effective policy pack for a request and
// substitutes its fields onto EngineOptions (spec §4.15).
package policy

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
	"github.com/sgajbi/lotus-advise-sub000/internal/money"
)

// Source records which precedence tier produced the resolution.
type Source string

const (
	SourceRequestHeader Source = "REQUEST_HEADER"
	SourceTenantDefault Source = "TENANT_DEFAULT"
	SourceGlobalDefault Source = "GLOBAL_DEFAULT"
	SourceNone          Source = "NONE"
	SourceDisabled      Source = "DISABLED"
)

// TurnoverPolicy caps rebalance turnover (spec §4.5).
type TurnoverPolicy struct {
	MaxTurnoverPct *decimal.Decimal `json:"max_turnover_pct,omitempty" yaml:"max_turnover_pct,omitempty"`
}

// TaxPolicy gates tax-aware selling (spec §4.5).
type TaxPolicy struct {
	EnableTaxAwareness      bool         `json:"enable_tax_awareness" yaml:"enable_tax_awareness"`
	MaxRealizedCapitalGains *money.Money `json:"max_realized_capital_gains,omitempty" yaml:"max_realized_capital_gains,omitempty"`
}

// SettlementPolicy gates the settlement ladder (spec §4.6).
type SettlementPolicy struct {
	EnableSettlementAwareness bool                       `json:"enable_settlement_awareness" yaml:"enable_settlement_awareness"`
	SettlementHorizonDays     int                        `json:"settlement_horizon_days" yaml:"settlement_horizon_days"`
	FXSettlementDays          int                        `json:"fx_settlement_days" yaml:"fx_settlement_days"`
	MaxOverdraftByCCY         map[string]decimal.Decimal `json:"max_overdraft_by_ccy,omitempty" yaml:"max_overdraft_by_ccy,omitempty"`
	FXBufferPct               decimal.Decimal            `json:"fx_buffer_pct" yaml:"fx_buffer_pct"`
}

// ConstraintPolicy caps single-position and group weights (spec §4.4).
type ConstraintPolicy struct {
	SinglePositionMaxWeight *decimal.Decimal                  `json:"single_position_max_weight,omitempty" yaml:"single_position_max_weight,omitempty"`
	GroupConstraints        map[string]model.GroupConstraint  `json:"group_constraints,omitempty" yaml:"group_constraints,omitempty"`
}

// WorkflowPolicy gates workflow-gate derivation (spec §4.8).
type WorkflowPolicy struct {
	EnableWorkflowGates           bool `json:"enable_workflow_gates" yaml:"enable_workflow_gates"`
	WorkflowRequiresClientConsent bool `json:"workflow_requires_client_consent" yaml:"workflow_requires_client_consent"`
	ClientConsentAlreadyObtained  bool `json:"client_consent_already_obtained" yaml:"client_consent_already_obtained"`
}

// IdempotencyPolicy gates idempotency replay (spec §4.13).
type IdempotencyPolicy struct {
	ReplayEnabled bool `json:"replay_enabled" yaml:"replay_enabled"`
}

// Pack is one named policy pack (spec §4.15).
type Pack struct {
	ID                string            `json:"id" yaml:"id"`
	TurnoverPolicy    TurnoverPolicy    `json:"turnover_policy" yaml:"turnover_policy"`
	TaxPolicy         TaxPolicy         `json:"tax_policy" yaml:"tax_policy"`
	SettlementPolicy  SettlementPolicy  `json:"settlement_policy" yaml:"settlement_policy"`
	ConstraintPolicy  ConstraintPolicy  `json:"constraint_policy" yaml:"constraint_policy"`
	WorkflowPolicy    WorkflowPolicy    `json:"workflow_policy" yaml:"workflow_policy"`
	IdempotencyPolicy IdempotencyPolicy `json:"idempotency_policy" yaml:"idempotency_policy"`
}

// Catalog looks packs up by id and lists every pack it knows about.
// store/postgres and the in-process Memory catalog below both satisfy it.
type Catalog interface {
	Lookup(id string) (Pack, bool)
	List() []Pack
}

// Memory is an in-process Catalog backed by a map, used for the
// DPM_POLICY_PACK_CATALOG_JSON-loaded default catalog and for tests.
type Memory map[string]Pack

func (m Memory) Lookup(id string) (Pack, bool) {
	p, ok := m[id]
	return p, ok
}

// List returns every pack in the catalog, sorted by id for a stable
// /rebalance/policies/catalog response (spec §6).
func (m Memory) List() []Pack {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Pack, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

// Input bundles the state the resolver needs (spec §4.15 precedence:
// "explicit header > tenant default > global default > none").
type Input struct {
	PacksEnabled        bool
	Catalog             Catalog
	RequestPolicyPackID string
	TenantPolicyPackID  string
	GlobalDefaultPackID string
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Source Source
	PackID string
	Pack   *Pack
}

// Resolve derives the effective policy pack by precedence (spec §4.15). A
// pack id that names nothing in the catalog is treated as absent at that
// tier rather than an error, and resolution falls through to the next tier.
func Resolve(in Input) Resolution {
	if !in.PacksEnabled {
		return Resolution{Source: SourceDisabled}
	}
	if in.RequestPolicyPackID != "" {
		if p, ok := in.Catalog.Lookup(in.RequestPolicyPackID); ok {
			return Resolution{Source: SourceRequestHeader, PackID: p.ID, Pack: &p}
		}
	}
	if in.TenantPolicyPackID != "" {
		if p, ok := in.Catalog.Lookup(in.TenantPolicyPackID); ok {
			return Resolution{Source: SourceTenantDefault, PackID: p.ID, Pack: &p}
		}
	}
	if in.GlobalDefaultPackID != "" {
		if p, ok := in.Catalog.Lookup(in.GlobalDefaultPackID); ok {
			return Resolution{Source: SourceGlobalDefault, PackID: p.ID, Pack: &p}
		}
	}
	return Resolution{Source: SourceNone}
}

// ApplyToOptions substitutes the resolved pack's fields onto opts following
// the documented substitution table (spec §4.15); it never touches fields
// outside that table and never alters the run status vocabulary. Applying a
// nil pack returns opts unchanged.
func ApplyToOptions(opts model.EngineOptions, pack *Pack) model.EngineOptions {
	if pack == nil {
		return opts
	}

	if pack.TurnoverPolicy.MaxTurnoverPct != nil {
		v := *pack.TurnoverPolicy.MaxTurnoverPct
		opts.MaxTurnoverPct = &v
	}

	opts.EnableTaxAwareness = pack.TaxPolicy.EnableTaxAwareness
	if pack.TaxPolicy.MaxRealizedCapitalGains != nil {
		amt := pack.TaxPolicy.MaxRealizedCapitalGains.Amount
		opts.MaxRealizedCapitalGains = &amt
	}

	opts.EnableSettlementAwareness = pack.SettlementPolicy.EnableSettlementAwareness
	opts.SettlementHorizonDays = pack.SettlementPolicy.SettlementHorizonDays
	opts.FXSettlementDays = pack.SettlementPolicy.FXSettlementDays
	opts.FXBufferPct = pack.SettlementPolicy.FXBufferPct
	if pack.SettlementPolicy.MaxOverdraftByCCY != nil {
		opts.MaxOverdraftByCCY = pack.SettlementPolicy.MaxOverdraftByCCY
	}

	if pack.ConstraintPolicy.SinglePositionMaxWeight != nil {
		v := *pack.ConstraintPolicy.SinglePositionMaxWeight
		opts.SinglePositionMaxWeight = &v
	}
	if pack.ConstraintPolicy.GroupConstraints != nil {
		opts.GroupConstraints = pack.ConstraintPolicy.GroupConstraints
	}

	opts.EnableWorkflowGates = pack.WorkflowPolicy.EnableWorkflowGates
	opts.WorkflowRequiresClientConsent = pack.WorkflowPolicy.WorkflowRequiresClientConsent
	opts.ClientConsentAlreadyObtained = pack.WorkflowPolicy.ClientConsentAlreadyObtained

	return opts
}

// ReplayEnabled reports the idempotency_policy.replay_enabled substitution,
// defaulting to def when no pack resolved (spec §4.15, §4.13).
func ReplayEnabled(pack *Pack, def bool) bool {
	if pack == nil {
		return def
	}
	return pack.IdempotencyPolicy.ReplayEnabled
}
