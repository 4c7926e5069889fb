package model

import (
	"github.com/shopspring/decimal"

	"github.com/sgajbi/lotus-advise-sub000/internal/money"
)

// ValuationMode selects how position values are derived (spec §4.2).
type ValuationMode string

const (
	ValuationCalculated    ValuationMode = "CALCULATED"
	ValuationTrustSnapshot ValuationMode = "TRUST_SNAPSHOT"
)

// TargetMethod selects the target generation algorithm (spec §4.4).
type TargetMethod string

const (
	TargetHeuristic TargetMethod = "HEURISTIC"
	TargetSolver    TargetMethod = "SOLVER"
)

// FundingMode selects the advisory auto-funding strategy (spec §3).
type FundingMode string

const FundingModeAutoFX FundingMode = "AUTO_FX"

// FXFundingSourceCurrency controls which cash is consumed to cover a
// funding shortfall (spec §4.9).
type FXFundingSourceCurrency string

const (
	FXSourceBaseOnly FXFundingSourceCurrency = "BASE_ONLY"
	FXSourceAnyCash  FXFundingSourceCurrency = "ANY_CASH"
)

// GroupConstraint caps the combined weight of instruments sharing an
// attribute key:value (spec §3 group_constraints).
type GroupConstraint struct {
	MaxWeight decimal.Decimal
}

// EngineOptions is the full recognized option set (spec §3 EngineOptions).
// Zero-valued fields take the documented defaults applied by Defaults().
type EngineOptions struct {
	// valuation
	ValuationMode ValuationMode `json:"valuation_mode,omitempty"`

	// targeting
	TargetMethod                  TargetMethod                `json:"target_method,omitempty"`
	CompareTargetMethods          bool                        `json:"compare_target_methods,omitempty"`
	CompareTargetMethodsTolerance decimal.Decimal             `json:"compare_target_methods_tolerance,omitempty"`
	SinglePositionMaxWeight       *decimal.Decimal            `json:"single_position_max_weight,omitempty"`
	MinCashBufferPct              decimal.Decimal             `json:"min_cash_buffer_pct,omitempty"`
	GroupConstraints              map[string]GroupConstraint  `json:"group_constraints,omitempty"` // "key:value" -> constraint

	// trades
	MinTradeNotional   *money.Money      `json:"min_trade_notional,omitempty"`
	SuppressDustTrades bool              `json:"suppress_dust_trades,omitempty"`
	MaxTurnoverPct     *decimal.Decimal  `json:"max_turnover_pct,omitempty"`

	// tax
	EnableTaxAwareness      bool             `json:"enable_tax_awareness,omitempty"`
	MaxRealizedCapitalGains *decimal.Decimal `json:"max_realized_capital_gains,omitempty"` // base-currency amount

	// settlement
	EnableSettlementAwareness bool                       `json:"enable_settlement_awareness,omitempty"`
	SettlementHorizonDays     int                        `json:"settlement_horizon_days,omitempty"`
	FXSettlementDays          int                        `json:"fx_settlement_days,omitempty"`
	MaxOverdraftByCCY         map[string]decimal.Decimal `json:"max_overdraft_by_ccy,omitempty"`
	FXBufferPct               decimal.Decimal            `json:"fx_buffer_pct,omitempty"`

	// compliance bands
	CashBandMinWeight decimal.Decimal `json:"cash_band_min_weight,omitempty"`
	CashBandMaxWeight decimal.Decimal `json:"cash_band_max_weight,omitempty"`

	// data quality
	BlockOnMissingPrices bool `json:"block_on_missing_prices,omitempty"`
	BlockOnMissingFX     bool `json:"block_on_missing_fx,omitempty"`
	AllowRestricted      bool `json:"allow_restricted,omitempty"`

	// advisory
	EnableProposalSimulation    bool                    `json:"enable_proposal_simulation,omitempty"`
	ProposalApplyCashFlowsFirst bool                    `json:"proposal_apply_cash_flows_first,omitempty"`
	ProposalBlockNegativeCash  bool                    `json:"proposal_block_negative_cash,omitempty"`
	AutoFunding                bool                    `json:"auto_funding,omitempty"`
	FundingMode                FundingMode             `json:"funding_mode,omitempty"`
	FXFundingSourceCurrency    FXFundingSourceCurrency `json:"fx_funding_source_currency,omitempty"`
	FXGenerationPolicy         string                  `json:"fx_generation_policy,omitempty"` // "ONE_FX_PER_CCY"

	// workflow
	EnableWorkflowGates           bool `json:"enable_workflow_gates,omitempty"`
	WorkflowRequiresClientConsent bool `json:"workflow_requires_client_consent,omitempty"`
	ClientConsentAlreadyObtained  bool `json:"client_consent_already_obtained,omitempty"`

	// dependencies
	LinkBuyToSameCurrencySellDependency bool `json:"link_buy_to_same_currency_sell_dependency,omitempty"`

	// suitability thresholds
	IssuerConcentrationMaxWeight       *decimal.Decimal          `json:"issuer_concentration_max_weight,omitempty"`
	SuitabilitySinglePositionMaxWeight *decimal.Decimal          `json:"suitability_single_position_max_weight,omitempty"`
	LiquidityTierMaxWeight             map[string]decimal.Decimal `json:"liquidity_tier_max_weight,omitempty"`
	DataQualitySeverity                string                    `json:"data_quality_severity,omitempty"` // "HIGH"|"MEDIUM"|"LOW"

	// reserved, never consulted (spec §9 Open Questions #4)
	DustTradeThreshold *money.Money `json:"dust_trade_threshold,omitempty"`
}

// Defaults returns EngineOptions with the documented default values applied
// (spec §3/§4). Callers should start from Defaults() and override.
func Defaults() EngineOptions {
	return EngineOptions{
		ValuationMode:      ValuationCalculated,
		TargetMethod:       TargetHeuristic,
		MinCashBufferPct:   decimal.Zero,
		GroupConstraints:   map[string]GroupConstraint{},
		FXGenerationPolicy: "ONE_FX_PER_CCY",

		FundingMode:              FundingModeAutoFX,
		FXFundingSourceCurrency:  FXSourceBaseOnly,
		FXBufferPct:              decimal.Zero,
		SettlementHorizonDays:    0,
		FXSettlementDays:         2,
		MaxOverdraftByCCY:        map[string]decimal.Decimal{},

		CashBandMinWeight: decimal.Zero,
		CashBandMaxWeight: decimal.NewFromInt(1),

		LinkBuyToSameCurrencySellDependency: true,

		LiquidityTierMaxWeight: map[string]decimal.Decimal{},
		DataQualitySeverity:    "HIGH",
	}
}

// MaxOverdraftFor returns the configured overdraft allowance for ccy,
// defaulting to zero (spec §4.6: "default 0").
func (o EngineOptions) MaxOverdraftFor(ccy string) decimal.Decimal {
	if v, ok := o.MaxOverdraftByCCY[ccy]; ok {
		return v
	}
	return decimal.Zero
}
