// Package valuation constructs the before/after SimulatedState from a
// portfolio snapshot and market data (spec §4.2).
package valuation

import (
	"github.com/shopspring/decimal"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
	"github.com/sgajbi/lotus-advise-sub000/internal/money"
)

const mismatchTolerancePct = "0.005" // 0.5%, spec §4.2

// Result bundles the enriched state together with the data-quality buckets
// observed while valuing it.
type Result struct {
	State       model.SimulatedState
	Warnings    []string
	DataQuality []string // "price_missing"|"fx_missing"
}

// Value computes the enriched SimulatedState for a portfolio snapshot.
// Negative quantities are preserved (spec §4.2: "Negative quantities are
// preserved for later safety evaluation.") rather than clamped to zero.
func Value(portfolio model.PortfolioSnapshot, md model.MarketDataSnapshot, shelf model.Shelf, mode model.ValuationMode) Result {
	res := Result{}
	base := portfolio.BaseCurrency

	type valued struct {
		instrumentID string
		quantity     decimal.Decimal
		valueBase    decimal.Decimal
	}

	var positions []valued
	dq := map[string]bool{}

	for _, pos := range portfolio.Positions {
		valueBase, bucket, warn := valuePosition(pos, md, base, mode)
		if bucket != "" {
			dq[bucket] = true
		}
		if warn != "" {
			res.Warnings = append(res.Warnings, warn)
		}
		positions = append(positions, valued{instrumentID: pos.InstrumentID, quantity: pos.Quantity, valueBase: valueBase})
	}

	var cashTotal decimal.Decimal
	var cashBalances []model.CashBalance
	for _, c := range portfolio.Cash {
		rate, ok := md.FindFXRate(c.Currency, base)
		if !ok {
			dq["fx_missing"] = true
			cashBalances = append(cashBalances, c)
			continue
		}
		cashValue := c.Amount.Amount.Mul(rate)
		cashTotal = cashTotal.Add(cashValue)
		cashBalances = append(cashBalances, c)
	}

	var positionsTotal decimal.Decimal
	for _, v := range positions {
		positionsTotal = positionsTotal.Add(v.valueBase)
	}
	totalValue := positionsTotal.Add(cashTotal)

	simPositions := make([]model.SimulatedPosition, 0, len(positions))
	byAssetClass := map[string]decimal.Decimal{}
	byInstrument := make([]model.AllocationSlice, 0, len(positions))

	for _, v := range positions {
		weight := decimal.Zero
		if !totalValue.IsZero() {
			weight = v.valueBase.Div(totalValue)
		}
		simPositions = append(simPositions, model.SimulatedPosition{
			InstrumentID: v.instrumentID,
			Quantity:     v.quantity,
			Value:        money.FromDecimal(v.valueBase, base),
			Weight:       weight,
		})
		byInstrument = append(byInstrument, model.AllocationSlice{Key: v.instrumentID, Value: money.FromDecimal(v.valueBase, base), Weight: weight})

		assetClass := "UNKNOWN"
		if e, ok := shelf[v.instrumentID]; ok && e.AssetClass != "" {
			assetClass = e.AssetClass
		}
		byAssetClass[assetClass] = byAssetClass[assetClass].Add(v.valueBase)
	}

	cashWeight := decimal.Zero
	if !totalValue.IsZero() {
		cashWeight = cashTotal.Div(totalValue)
	}
	byAssetClass["CASH"] = byAssetClass["CASH"].Add(cashTotal)
	_ = cashWeight

	assetClassSlices := make([]model.AllocationSlice, 0, len(byAssetClass))
	for k, v := range byAssetClass {
		w := decimal.Zero
		if !totalValue.IsZero() {
			w = v.Div(totalValue)
		}
		assetClassSlices = append(assetClassSlices, model.AllocationSlice{Key: k, Value: money.FromDecimal(v, base), Weight: w})
	}

	dqList := make([]string, 0, len(dq))
	for k := range dq {
		dqList = append(dqList, k)
	}
	res.DataQuality = dqList

	res.State = model.SimulatedState{
		TotalValue:             money.FromDecimal(totalValue, base),
		CashBalances:            cashBalances,
		Positions:               simPositions,
		AllocationByAssetClass:  assetClassSlices,
		AllocationByInstrument:  byInstrument,
		DataQuality:             dqList,
	}
	return res
}

// valuePosition returns the base-currency value, an optional data-quality
// bucket, and an optional warning.
func valuePosition(pos model.Position, md model.MarketDataSnapshot, base string, mode model.ValuationMode) (decimal.Decimal, string, string) {
	price, hasPrice := md.PriceOf(pos.InstrumentID)

	calcValue := func() (decimal.Decimal, string) {
		if !hasPrice {
			return decimal.Zero, "price_missing"
		}
		rate, ok := md.FindFXRate(price.Currency, base)
		if !ok {
			return decimal.Zero, "fx_missing"
		}
		valueInstrument := pos.Quantity.Mul(price.Amount)
		return valueInstrument.Mul(rate), ""
	}

	if mode == model.ValuationTrustSnapshot && pos.MarketValue != nil {
		trusted := pos.MarketValue.Amount
		if pos.MarketValue.Currency != "" && pos.MarketValue.Currency != base {
			if rate, ok := md.FindFXRate(pos.MarketValue.Currency, base); ok {
				trusted = trusted.Mul(rate)
			} else {
				return decimal.Zero, "fx_missing", ""
			}
		}
		if hasPrice {
			calc, bucket := calcValue()
			if bucket == "" {
				dev := deviationPct(trusted, calc)
				if dev.GreaterThan(decimal.RequireFromString(mismatchTolerancePct)) {
					return trusted, "", "POSITION_VALUE_MISMATCH"
				}
			}
		}
		return trusted, "", ""
	}

	val, bucket := calcValue()
	return val, bucket, ""
}

func deviationPct(a, b decimal.Decimal) decimal.Decimal {
	if a.IsZero() && b.IsZero() {
		return decimal.Zero
	}
	denom := a
	if denom.IsZero() {
		denom = b
	}
	diff := a.Sub(b)
	if diff.IsNegative() {
		diff = diff.Neg()
	}
	if denom.IsZero() {
		return decimal.Zero
	}
	return diff.Div(denom).Abs()
}
