// Package pipeline composes the advisory proposal pipeline: valuation,
// manual cash flow/trade application, auto-funding, rule evaluation, drift
// analytics, and suitability scanning into a ProposalResult (spec §3 "The
// Advisory Proposal Pipeline").
package pipeline

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sgajbi/lotus-advise-sub000/internal/advisory/drift"
	"github.com/sgajbi/lotus-advise-sub000/internal/advisory/funding"
	"github.com/sgajbi/lotus-advise-sub000/internal/advisory/suitability"
	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/gate"
	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/rules"
	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/valuation"
	"github.com/sgajbi/lotus-advise-sub000/internal/money"
)

// Request is the full advisory proposal request payload (spec §6).
type Request struct {
	PortfolioID    string                   `json:"portfolio_id"`
	Portfolio      model.PortfolioSnapshot  `json:"portfolio"`
	MarketData     model.MarketDataSnapshot `json:"market_data"`
	Shelf          []model.ShelfEntry       `json:"shelf"`
	ManualTrades   []model.Intent           `json:"manual_trades,omitempty"` // SECURITY_TRADE, advisor-entered
	CashFlows      []model.Intent           `json:"cash_flows,omitempty"`    // CASH_FLOW, advisor-entered
	ReferenceModel *model.ReferenceModel    `json:"reference_model,omitempty"`
	Options        model.EngineOptions      `json:"options"`
}

const engineVersion = "advisory-engine-1"

// Run executes the advisory pipeline (spec §4.9-§4.11). runID,
// correlationID, and requestHash follow the same caller-supplied contract
// as the DPM orchestrator (internal/dpm/orchestrator.Run).
func Run(req Request, runID, correlationID, requestHash string, now time.Time) model.ProposalResult {
	shelf := model.NewShelf(req.Shelf)
	base := req.Portfolio.BaseCurrency

	beforeValuation := valuation.Value(req.Portfolio, req.MarketData, shelf, req.Options.ValuationMode)
	before := beforeValuation.State

	diagnostics := model.Diagnostics{}
	for _, w := range beforeValuation.Warnings {
		diagnostics.AddWarning(w)
	}
	diagnostics.DataQuality = beforeValuation.DataQuality

	cashByCCY := map[string]decimal.Decimal{}
	for _, c := range req.Portfolio.Cash {
		cashByCCY[c.Currency] = c.Amount.Amount
	}
	holdings := map[string]decimal.Decimal{}
	for _, p := range req.Portfolio.Positions {
		holdings[p.InstrumentID] = p.Quantity
	}

	manualTrades := append([]model.Intent(nil), req.ManualTrades...)
	cashFlows := append([]model.Intent(nil), req.CashFlows...)

	if req.Options.ProposalApplyCashFlowsFirst {
		applyCashFlows(cashFlows, cashByCCY)
		applyTrades(manualTrades, cashByCCY, holdings)
	} else {
		applyTrades(manualTrades, cashByCCY, holdings)
		applyCashFlows(cashFlows, cashByCCY)
	}

	blocked := false
	blockReason := ""
	for id, qty := range holdings {
		if qty.IsNegative() {
			blocked = true
			blockReason = "NO_SHORTING"
			diagnostics.AddWarning("SELL_EXCEEDS_HOLDINGS")
			_ = id
		}
	}

	var fxIntents []model.Intent
	if !blocked && req.Options.AutoFunding {
		buys := buysByCurrentCash(manualTrades)
		plan := funding.Plan(funding.Input{
			BuyIntents: buys,
			Cash:       cashSlice(cashByCCY),
			MarketData: req.MarketData,
			BaseCCY:    base,
			Options:    req.Options,
		})
		mergeDiagnostics(&diagnostics, plan.Diagnostics)
		if plan.Blocked {
			blocked = true
			blockReason = plan.BlockReason
		}
		fxIntents = plan.FXIntents
		rewireDependencies(manualTrades, buys)
		for _, fx := range fxIntents {
			cashByCCY[fx.BuyCurrency] = cashByCCY[fx.BuyCurrency].Add(fx.BuyAmount.Amount)
			cashByCCY[fx.SellCurrency] = cashByCCY[fx.SellCurrency].Sub(fx.SellAmountEstimated.Amount)
		}
	}

	if !blocked && req.Options.ProposalBlockNegativeCash {
		for ccy, bal := range cashByCCY {
			overdraft := req.Options.MaxOverdraftFor(ccy)
			if bal.IsNegative() && bal.Neg().GreaterThan(overdraft) {
				blocked = true
				blockReason = "INSUFFICIENT_CASH"
				diagnostics.InsufficientCash = append(diagnostics.InsufficientCash, ccy)
			}
		}
	}

	afterTotal := totalValue(cashByCCY, holdings, req.MarketData, base)
	beforeTotal := before.TotalValue.Amount
	tolerance := decimal.RequireFromString("0.5").Add(beforeTotal.Mul(decimal.RequireFromString("0.0005")))
	delta := afterTotal.Sub(beforeTotal).Abs()
	reconStatus := model.ReconciliationOK
	if delta.GreaterThan(tolerance) {
		reconStatus = model.ReconciliationMismatch
		blocked = true
		blockReason = "RECONCILIATION"
		diagnostics.AddWarning("VALUE_MISMATCH")
	}
	reconciliation := model.Reconciliation{
		BeforeTotal: money.FromDecimal(beforeTotal, base),
		AfterTotal:  money.FromDecimal(afterTotal, base),
		Delta:       money.FromDecimal(afterTotal.Sub(beforeTotal), base),
		Tolerance:   money.FromDecimal(tolerance, base),
		Status:      reconStatus,
	}

	after := buildState(cashByCCY, holdings, req.MarketData, shelf, base, afterTotal)

	allIntents := orderAdvisoryIntents(cashFlows, manualTrades, fxIntents)

	ruleResults, status := rules.Evaluate(rules.Input{
		After:            after,
		Reconciliation:   reconciliation,
		DustSuppressed:   false,
		ExecutionBlocked: blocked,
		ExecutionReason:  blockReason,
		Options:          req.Options,
	})

	result := model.ProposalResult{
		RunID:          runID,
		CorrelationID:  correlationID,
		Status:         status,
		Before:         before,
		AfterSimulated: after,
		Intents:        allIntents,
		RuleResults:    ruleResults,
		Diagnostics:    diagnostics,
		Reconciliation: reconciliation,
		Lineage: model.Lineage{
			RequestHash:          requestHash,
			PortfolioSnapshotID:  req.Portfolio.SnapshotID,
			MarketDataSnapshotID: req.MarketData.SnapshotID,
			EngineVersion:        engineVersion,
		},
		CreatedAt: now,
	}

	if req.ReferenceModel != nil {
		analysis := drift.Analyze(drift.Input{Before: before, After: after, Shelf: shelf, Model: *req.ReferenceModel})
		result.DriftAnalysis = &analysis
	}

	if req.Options.EnableProposalSimulation {
		suit := suitability.Scan(suitability.Input{
			Before:  before,
			After:   after,
			Shelf:   shelf,
			Intents: manualTrades,
			Options: req.Options,
		})
		result.Suitability = &suit
	}

	if req.Options.EnableWorkflowGates {
		decision := gate.Evaluate(gate.Input{
			Status:      result.Status,
			RuleResults: result.RuleResults,
			Suitability: result.Suitability,
			Diagnostics: result.Diagnostics,
			Options:     req.Options,
		})
		result.GateDecision = &decision
	}

	return result
}

func applyCashFlows(flows []model.Intent, cashByCCY map[string]decimal.Decimal) {
	for _, cf := range flows {
		cashByCCY[cf.CashCurrency] = cashByCCY[cf.CashCurrency].Add(cf.CashAmount.Amount)
	}
}

func applyTrades(trades []model.Intent, cashByCCY map[string]decimal.Decimal, holdings map[string]decimal.Decimal) {
	for _, t := range trades {
		ccy := t.Notional.Currency
		switch t.Side {
		case model.SideBuy:
			cashByCCY[ccy] = cashByCCY[ccy].Sub(t.Notional.Amount)
			holdings[t.InstrumentID] = holdings[t.InstrumentID].Add(t.Quantity)
		case model.SideSell:
			cashByCCY[ccy] = cashByCCY[ccy].Add(t.Notional.Amount)
			holdings[t.InstrumentID] = holdings[t.InstrumentID].Sub(t.Quantity)
		}
	}
}

// buysByCurrentCash returns a fresh copy of the BUY-side manual trades so
// funding.Plan can append FX dependencies without mutating the caller's
// slice directly.
func buysByCurrentCash(trades []model.Intent) []model.Intent {
	var buys []model.Intent
	for _, t := range trades {
		if t.Kind == model.IntentSecurityTrade && t.Side == model.SideBuy {
			buys = append(buys, t)
		}
	}
	return buys
}

// rewireDependencies copies the FX dependency annotations funding.Plan
// attached to its own BUY copies back onto the caller's trade slice.
func rewireDependencies(trades []model.Intent, buys []model.Intent) {
	byID := map[string][]string{}
	for _, b := range buys {
		byID[b.IntentID] = b.Dependencies
	}
	for i := range trades {
		if deps, ok := byID[trades[i].IntentID]; ok {
			trades[i].Dependencies = deps
		}
	}
}

func cashSlice(cashByCCY map[string]decimal.Decimal) []model.CashBalance {
	ccys := make([]string, 0, len(cashByCCY))
	for ccy := range cashByCCY {
		ccys = append(ccys, ccy)
	}
	sort.Strings(ccys)
	out := make([]model.CashBalance, 0, len(ccys))
	for _, ccy := range ccys {
		out = append(out, model.CashBalance{Currency: ccy, Amount: money.FromDecimal(cashByCCY[ccy], ccy)})
	}
	return out
}

func totalValue(cashByCCY map[string]decimal.Decimal, holdings map[string]decimal.Decimal, md model.MarketDataSnapshot, base string) decimal.Decimal {
	var total decimal.Decimal
	for ccy, amt := range cashByCCY {
		if rate, ok := md.FindFXRate(ccy, base); ok {
			total = total.Add(amt.Mul(rate))
		}
	}
	for instrumentID, qty := range holdings {
		price, ok := md.PriceOf(instrumentID)
		if !ok {
			continue
		}
		if rate, ok := md.FindFXRate(price.Currency, base); ok {
			total = total.Add(qty.Mul(price.Amount).Mul(rate))
		}
	}
	return total
}

func buildState(cashByCCY map[string]decimal.Decimal, holdings map[string]decimal.Decimal, md model.MarketDataSnapshot, shelf model.Shelf, base string, total decimal.Decimal) model.SimulatedState {
	ids := make([]string, 0, len(holdings))
	for id := range holdings {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var positions []model.SimulatedPosition
	byAssetClass := map[string]decimal.Decimal{}
	var byInstrument []model.AllocationSlice
	dq := map[string]bool{}

	for _, id := range ids {
		qty := holdings[id]
		price, ok := md.PriceOf(id)
		var valueBase decimal.Decimal
		if !ok {
			dq["price_missing"] = true
		} else if rate, fxok := md.FindFXRate(price.Currency, base); fxok {
			valueBase = qty.Mul(price.Amount).Mul(rate)
		} else {
			dq["fx_missing"] = true
		}
		weight := decimal.Zero
		if !total.IsZero() {
			weight = valueBase.Div(total)
		}
		positions = append(positions, model.SimulatedPosition{InstrumentID: id, Quantity: qty, Value: money.FromDecimal(valueBase, base), Weight: weight})
		byInstrument = append(byInstrument, model.AllocationSlice{Key: id, Value: money.FromDecimal(valueBase, base), Weight: weight})

		assetClass := "UNKNOWN"
		if e, ok := shelf[id]; ok && e.AssetClass != "" {
			assetClass = e.AssetClass
		}
		byAssetClass[assetClass] = byAssetClass[assetClass].Add(valueBase)
	}

	var cashBalances []model.CashBalance
	ccys := make([]string, 0, len(cashByCCY))
	for ccy := range cashByCCY {
		ccys = append(ccys, ccy)
	}
	sort.Strings(ccys)
	var cashTotal decimal.Decimal
	for _, ccy := range ccys {
		amt := cashByCCY[ccy]
		cashBalances = append(cashBalances, model.CashBalance{Currency: ccy, Amount: money.FromDecimal(amt, ccy)})
		if rate, ok := md.FindFXRate(ccy, base); ok {
			cashTotal = cashTotal.Add(amt.Mul(rate))
		} else {
			dq["fx_missing"] = true
		}
	}
	byAssetClass["CASH"] = byAssetClass["CASH"].Add(cashTotal)

	classKeys := make([]string, 0, len(byAssetClass))
	for k := range byAssetClass {
		classKeys = append(classKeys, k)
	}
	sort.Strings(classKeys)
	assetClassSlices := make([]model.AllocationSlice, 0, len(classKeys))
	for _, k := range classKeys {
		v := byAssetClass[k]
		w := decimal.Zero
		if !total.IsZero() {
			w = v.Div(total)
		}
		assetClassSlices = append(assetClassSlices, model.AllocationSlice{Key: k, Value: money.FromDecimal(v, base), Weight: w})
	}

	dqList := make([]string, 0, len(dq))
	for k := range dq {
		dqList = append(dqList, k)
	}
	sort.Strings(dqList)

	return model.SimulatedState{
		TotalValue:             money.FromDecimal(total, base),
		CashBalances:           cashBalances,
		Positions:              positions,
		AllocationByAssetClass: assetClassSlices,
		AllocationByInstrument: byInstrument,
		DataQuality:            dqList,
	}
}

// orderAdvisoryIntents applies the deterministic output ordering (spec
// §4.6, reused for the advisory pipeline's own intent set): CASH_FLOW
// (input order) -> SELL (instrument asc) -> FX_SPOT (pair asc) -> BUY
// (instrument asc).
func orderAdvisoryIntents(cashFlows []model.Intent, trades []model.Intent, fxIntents []model.Intent) []model.Intent {
	var sells, buys []model.Intent
	for _, t := range trades {
		if t.Side == model.SideSell {
			sells = append(sells, t)
		} else {
			buys = append(buys, t)
		}
	}
	sort.Slice(sells, func(i, j int) bool { return sells[i].InstrumentID < sells[j].InstrumentID })
	sort.Slice(buys, func(i, j int) bool { return buys[i].InstrumentID < buys[j].InstrumentID })
	fx := append([]model.Intent(nil), fxIntents...)
	sort.Slice(fx, func(i, j int) bool { return fx[i].Pair < fx[j].Pair })

	out := make([]model.Intent, 0, len(cashFlows)+len(sells)+len(fx)+len(buys))
	out = append(out, cashFlows...)
	out = append(out, sells...)
	out = append(out, fx...)
	out = append(out, buys...)
	return out
}

func mergeDiagnostics(dst *model.Diagnostics, src model.Diagnostics) {
	for _, w := range src.Warnings {
		dst.AddWarning(w)
	}
	dst.FundingPlan = append(dst.FundingPlan, src.FundingPlan...)
	dst.MissingFXPairs = append(dst.MissingFXPairs, src.MissingFXPairs...)
}

