package model

import (
	"github.com/shopspring/decimal"

	"github.com/sgajbi/lotus-advise-sub000/internal/money"
)

// IntentKind discriminates the Intent tagged union (spec §3).
type IntentKind string

const (
	IntentSecurityTrade IntentKind = "SECURITY_TRADE"
	IntentFXSpot        IntentKind = "FX_SPOT"
	IntentCashFlow      IntentKind = "CASH_FLOW"
)

// Side is a security trade direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Rationale documents why an intent was generated.
type Rationale struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FXRationaleCode enumerates the reasons an FX_SPOT intent was generated
// (spec §3).
const (
	FXRationaleFunding = "FUNDING"
	FXRationaleSweep   = "SWEEP"
)

// Intent is the tagged union of proposed actions (spec §3, §9 "Tagged
// unions instead of nullable polymorphism"). Exactly one of the Security/FX/
// CashFlow field groups is populated, selected by Kind. All fields are
// exported, so the type itself does not stop a caller from populating
// fields of another kind.
type Intent struct {
	Kind IntentKind `json:"kind"`

	// common to all kinds
	IntentID     string   `json:"intent_id"`
	Dependencies []string `json:"dependencies,omitempty"`
	Rationale    Rationale `json:"rationale"`

	// SECURITY_TRADE fields
	InstrumentID        string            `json:"instrument_id,omitempty"`
	Side                Side              `json:"side,omitempty"`
	Quantity            decimal.Decimal   `json:"quantity,omitempty"`
	Notional            money.Money       `json:"notional,omitempty"`
	NotionalBase        money.Money       `json:"notional_base,omitempty"`
	ConstraintsApplied  []string          `json:"constraints_applied,omitempty"`

	// FX_SPOT fields
	Pair                string          `json:"pair,omitempty"`
	BuyCurrency         string          `json:"buy_currency,omitempty"`
	BuyAmount           money.Money     `json:"buy_amount,omitempty"`
	SellCurrency        string          `json:"sell_currency,omitempty"`
	SellAmountEstimated money.Money     `json:"sell_amount_estimated,omitempty"`
	Rate                decimal.Decimal `json:"rate,omitempty"`

	// CASH_FLOW fields (advisory only)
	CashCurrency    string      `json:"cash_currency,omitempty"`
	CashAmount      money.Money `json:"cash_amount,omitempty"`
	Description     string      `json:"description,omitempty"`
}

// SuppressedIntent records a drift-implied trade that was dropped before
// execution (spec §4.5).
type SuppressedIntent struct {
	InstrumentID string      `json:"instrument_id"`
	Notional     money.Money `json:"notional"`
	Reason       string      `json:"reason"`
}

// DroppedIntent records an intent removed by the turnover cap (spec §4.5).
type DroppedIntent struct {
	IntentID     string      `json:"intent_id"`
	InstrumentID string      `json:"instrument_id"`
	NotionalBase money.Money `json:"notional_base"`
	Reason       string      `json:"reason"`
}

// TaxBudgetConstraintEvent records a sell reduced to fit the realized-gains
// budget (spec §4.5).
type TaxBudgetConstraintEvent struct {
	InstrumentID      string          `json:"instrument_id"`
	LotID             string          `json:"lot_id"`
	RequestedQuantity decimal.Decimal `json:"requested_quantity"`
	FilledQuantity    decimal.Decimal `json:"filled_quantity"`
	RealizedGain      money.Money     `json:"realized_gain"`
}

// FundingPlanEntry records the per-currency funding math for advisory
// auto-funding (spec §4.9).
type FundingPlanEntry struct {
	Currency          string      `json:"currency"`
	Required          money.Money `json:"required"`
	AvailableBeforeFX money.Money `json:"available_before_fx"`
	FXNeeded          money.Money `json:"fx_needed"`
	FXPair            string      `json:"fx_pair,omitempty"`
	FundingCurrency   string      `json:"funding_currency,omitempty"`
}

// CashLadderEntry is one currency/day cell of the settlement ladder
// (spec §4.6).
type CashLadderEntry struct {
	Currency string      `json:"currency"`
	DayOffset int        `json:"day_offset"`
	Balance  money.Money `json:"balance"`
}

// Diagnostics aggregates the non-fatal and informational findings produced
// while running the pipeline (spec §3 diagnostics).
type Diagnostics struct {
	Warnings                 []string                   `json:"warnings,omitempty"`
	SuppressedIntents        []SuppressedIntent          `json:"suppressed_intents,omitempty"`
	DroppedIntents           []DroppedIntent             `json:"dropped_intents,omitempty"`
	DataQuality              []string                    `json:"data_quality,omitempty"`
	CashLadder                []CashLadderEntry           `json:"cash_ladder,omitempty"`
	CashLadderBreaches        []string                    `json:"cash_ladder_breaches,omitempty"`
	FundingPlan                []FundingPlanEntry          `json:"funding_plan,omitempty"`
	MissingFXPairs            []string                    `json:"missing_fx_pairs,omitempty"`
	InsufficientCash          []string                    `json:"insufficient_cash,omitempty"`
	TaxBudgetConstraintEvents []TaxBudgetConstraintEvent   `json:"tax_budget_constraint_events,omitempty"`
}

// AddWarning appends w if not already present (warnings are deduplicated
// since multiple stages may detect the same condition).
func (d *Diagnostics) AddWarning(w string) {
	for _, existing := range d.Warnings {
		if existing == w {
			return
		}
	}
	d.Warnings = append(d.Warnings, w)
}
