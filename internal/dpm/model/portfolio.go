// Package model defines the shared data model of the decisioning pipeline
// (spec §3): portfolios, market data, the shelf, model portfolios, engine
// options, intents, and the result envelopes returned to callers.
//
// Tagged unions (spec §9 "Re-architecture strategies") are represented as
// a single struct with a closed-enum discriminator field (for example
// Intent.Kind) whose kind-specific fields are left empty for other kinds;
// nothing at compile time checks that a case is handled. Quantities and
// weights are shopspring/decimal.Decimal;
// only true currency amounts use money.Money (spec §3: "All monetary values
// are (amount, currency) ... floats are forbidden across boundaries").
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sgajbi/lotus-advise-sub000/internal/money"
)

// CashBalance is a cash holding in a single currency.
type CashBalance struct {
	Currency string      `json:"currency"`
	Amount   money.Money `json:"amount"`
}

// TaxLot is a single acquisition lot backing a Position's quantity.
type TaxLot struct {
	LotID        string          `json:"lot_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     money.Money     `json:"unit_cost"`
	PurchaseDate time.Time       `json:"purchase_date"`
}

// Position is a single instrument holding, optionally broken into tax lots.
type Position struct {
	InstrumentID string          `json:"instrument_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	MarketValue  *money.Money    `json:"market_value,omitempty"`
	Lots         []TaxLot        `json:"lots,omitempty"`
}

// PortfolioSnapshot is the client-submitted holdings state (spec §3).
type PortfolioSnapshot struct {
	PortfolioID  string        `json:"portfolio_id"`
	SnapshotID   string        `json:"snapshot_id,omitempty"`
	BaseCurrency string        `json:"base_currency"`
	Positions    []Position    `json:"positions"`
	Cash         []CashBalance `json:"cash"`
}

// PriceQuote is a single instrument price in its trading currency.
type PriceQuote struct {
	InstrumentID string      `json:"instrument_id"`
	Price        money.Money `json:"price"`
}

// FXRate is a quoted rate for pair "A/B": 1 unit of A costs Rate units of B.
type FXRate struct {
	Pair string          `json:"pair"`
	Rate decimal.Decimal `json:"rate"`
}

// MarketDataSnapshot is the client-submitted pricing and FX state (spec §3).
type MarketDataSnapshot struct {
	SnapshotID string       `json:"snapshot_id,omitempty"`
	Prices     []PriceQuote `json:"prices"`
	FXRates    []FXRate     `json:"fx_rates"`
}

// ShelfStatus is the governance status of an instrument on the product
// shelf (spec §3).
type ShelfStatus string

const (
	ShelfApproved   ShelfStatus = "APPROVED"
	ShelfRestricted ShelfStatus = "RESTRICTED"
	ShelfSellOnly   ShelfStatus = "SELL_ONLY"
	ShelfSuspended  ShelfStatus = "SUSPENDED"
	ShelfBanned     ShelfStatus = "BANNED"
)

// ShelfEntry describes one instrument's permitted-product metadata.
type ShelfEntry struct {
	InstrumentID   string            `json:"instrument_id"`
	Status         ShelfStatus       `json:"status"`
	AssetClass     string            `json:"asset_class"`
	MinNotional    *money.Money      `json:"min_notional,omitempty"`
	SettlementDays int               `json:"settlement_days"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	IssuerID       string            `json:"issuer_id,omitempty"`
	LiquidityTier  string            `json:"liquidity_tier,omitempty"`
}

// DefaultSettlementDays is applied when a ShelfEntry omits settlement_days.
const DefaultSettlementDays = 2

// ModelPortfolio maps instrument -> target weight, summing to 1.
type ModelPortfolio map[string]decimal.Decimal

// ReferenceModel is the advisory drift-analysis target (spec §4.10):
// required asset-class weights, optional per-instrument weights.
type ReferenceModel struct {
	AssetClassWeights map[string]decimal.Decimal `json:"asset_class_weights"`
	InstrumentWeights map[string]decimal.Decimal `json:"instrument_weights,omitempty"`
}
