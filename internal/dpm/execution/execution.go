// Package execution simulates the ledger effect of a set of intents: FX
// funding/sweep generation, the intent dependency graph, the settlement
// ladder, safety checks, and before/after reconciliation (spec §4.6).
package execution

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
	"github.com/sgajbi/lotus-advise-sub000/internal/money"
)

// Input bundles the state the execution simulator needs.
type Input struct {
	SecurityIntents []model.Intent // SECURITY_TRADE only, from the intent generator
	Before          model.SimulatedState
	Portfolio       model.PortfolioSnapshot
	MarketData      model.MarketDataSnapshot
	Shelf           model.Shelf
	Options         model.EngineOptions
}

// Result is the output of Simulate.
type Result struct {
	Intents        []model.Intent // full ordered set: CASH_FLOW, SELL, FX_SPOT, BUY
	After          model.SimulatedState
	Reconciliation model.Reconciliation
	Diagnostics    model.Diagnostics
	Blocked        bool
	BlockReason    string
}

// Simulate runs the full execution pipeline against in.
func Simulate(in Input) Result {
	res := Result{}
	base := in.Portfolio.BaseCurrency

	cashByCCY := map[string]decimal.Decimal{}
	for _, c := range in.Portfolio.Cash {
		cashByCCY[c.Currency] = c.Amount.Amount
	}
	holdings := map[string]decimal.Decimal{}
	for _, p := range in.Portfolio.Positions {
		holdings[p.InstrumentID] = p.Quantity
	}

	for _, intent := range in.SecurityIntents {
		notional := intent.Notional.Amount
		ccy := intent.Notional.Currency
		switch intent.Side {
		case model.SideBuy:
			cashByCCY[ccy] = cashByCCY[ccy].Sub(notional)
			holdings[intent.InstrumentID] = holdings[intent.InstrumentID].Add(intent.Quantity)
		case model.SideSell:
			cashByCCY[ccy] = cashByCCY[ccy].Add(notional)
			holdings[intent.InstrumentID] = holdings[intent.InstrumentID].Sub(intent.Quantity)
		}
	}

	fxIntents, fxByPair := buildFXIntents(cashByCCY, base, in.MarketData, in.Options, &res.Diagnostics)
	for pair, fx := range fxByPair {
		cashByCCY[fx.BuyCurrency] = cashByCCY[fx.BuyCurrency].Add(fx.BuyAmount.Amount)
		cashByCCY[fx.SellCurrency] = cashByCCY[fx.SellCurrency].Sub(fx.SellAmountEstimated.Amount)
		_ = pair
	}

	attachDependencies(in.SecurityIntents, fxByPair, in.Options)

	ordered := orderIntents(in.SecurityIntents, fxIntents)
	res.Intents = ordered

	for id, qty := range holdings {
		if qty.IsNegative() {
			res.Blocked = true
			res.BlockReason = "NO_SHORTING"
			res.Diagnostics.AddWarning("SELL_EXCEEDS_HOLDINGS")
			_ = id
		}
	}

	if !res.Blocked {
		settleBlocked, settleReason := settlementLadder(ordered, cashByCCY, in.Shelf, in.Options, &res.Diagnostics)
		if settleBlocked {
			res.Blocked = true
			res.BlockReason = settleReason
		}
	}

	if !res.Blocked {
		ccys := make([]string, 0, len(cashByCCY))
		for ccy := range cashByCCY {
			ccys = append(ccys, ccy)
		}
		sort.Strings(ccys)
		for _, ccy := range ccys {
			bal := cashByCCY[ccy]
			overdraft := in.Options.MaxOverdraftFor(ccy)
			if bal.IsNegative() && bal.Neg().GreaterThan(overdraft) {
				res.Blocked = true
				res.BlockReason = "INSUFFICIENT_CASH"
				res.Diagnostics.InsufficientCash = append(res.Diagnostics.InsufficientCash, ccy)
			}
		}
	}

	afterTotal := computeAfterTotal(cashByCCY, holdings, in.MarketData, base)
	beforeTotal := in.Before.TotalValue.Amount
	tolerance := decimal.RequireFromString("0.5").Add(beforeTotal.Mul(decimal.RequireFromString("0.0005")))
	delta := afterTotal.Sub(beforeTotal).Abs()

	reconStatus := model.ReconciliationOK
	if delta.GreaterThan(tolerance) {
		reconStatus = model.ReconciliationMismatch
		res.Blocked = true
		res.BlockReason = "RECONCILIATION"
		res.Diagnostics.AddWarning("VALUE_MISMATCH")
	}
	res.Reconciliation = model.Reconciliation{
		BeforeTotal: money.FromDecimal(beforeTotal, base),
		AfterTotal:  money.FromDecimal(afterTotal, base),
		Delta:       money.FromDecimal(afterTotal.Sub(beforeTotal), base),
		Tolerance:   money.FromDecimal(tolerance, base),
		Status:      reconStatus,
	}

	res.After = buildAfterState(cashByCCY, holdings, in.MarketData, in.Shelf, base, afterTotal)

	return res
}

// buildFXIntents creates one FX_SPOT per non-base currency with a nonzero
// net balance after security intents (spec §4.6 step 2, hub-and-spoke: only
// one FX per pair per run).
func buildFXIntents(cashByCCY map[string]decimal.Decimal, base string, md model.MarketDataSnapshot, opts model.EngineOptions, diag *model.Diagnostics) ([]model.Intent, map[string]model.Intent) {
	ccys := make([]string, 0, len(cashByCCY))
	for ccy := range cashByCCY {
		if ccy != base {
			ccys = append(ccys, ccy)
		}
	}
	sort.Strings(ccys)

	byPair := map[string]model.Intent{}
	var ordered []model.Intent
	for _, ccy := range ccys {
		net := cashByCCY[ccy]
		if net.IsZero() {
			continue
		}
		pair := base + "/" + ccy
		rate, ok := md.FindFXRate(base, ccy)
		if !ok {
			diag.MissingFXPairs = append(diag.MissingFXPairs, pair)
			continue
		}

		buffer := decimal.NewFromInt(1).Add(opts.FXBufferPct)
		var fx model.Intent
		if net.IsNegative() {
			needed := net.Neg().Mul(buffer)
			sellBase := needed.Div(rate)
			fx = model.Intent{
				Kind:                model.IntentFXSpot,
				IntentID:            fmt.Sprintf("FX_SPOT:%s:FUNDING", pair),
				Pair:                pair,
				BuyCurrency:         ccy,
				BuyAmount:           money.FromDecimal(needed, ccy),
				SellCurrency:        base,
				SellAmountEstimated: money.FromDecimal(sellBase, base),
				Rate:                rate,
				Rationale:           model.Rationale{Code: model.FXRationaleFunding, Message: "fund currency shortfall"},
			}
		} else {
			sellCcy := net
			buyBase := sellCcy.Mul(rate)
			fx = model.Intent{
				Kind:                model.IntentFXSpot,
				IntentID:            fmt.Sprintf("FX_SPOT:%s:SWEEP", pair),
				Pair:                pair,
				BuyCurrency:         base,
				BuyAmount:           money.FromDecimal(buyBase, base),
				SellCurrency:        ccy,
				SellAmountEstimated: money.FromDecimal(sellCcy, ccy),
				Rate:                rate,
				Rationale:           model.Rationale{Code: model.FXRationaleSweep, Message: "sweep currency surplus"},
			}
		}
		byPair[pair] = fx
		ordered = append(ordered, fx)
	}
	return ordered, byPair
}

// attachDependencies wires BUY intents to their funding FX and, optionally,
// to same-currency SELLs (spec §4.6 step 3). Mutates intents in place.
func attachDependencies(intents []model.Intent, fxByPair map[string]model.Intent, opts model.EngineOptions) {
	sellsByCCY := map[string][]string{}
	for i := range intents {
		if intents[i].Side == model.SideSell {
			ccy := intents[i].Notional.Currency
			sellsByCCY[ccy] = append(sellsByCCY[ccy], intents[i].IntentID)
		}
	}
	for i := range intents {
		if intents[i].Side != model.SideBuy {
			continue
		}
		ccy := intents[i].Notional.Currency
		var deps []string
		for pair, fx := range fxByPair {
			if fx.BuyCurrency == ccy && fx.Rationale.Code == model.FXRationaleFunding {
				deps = append(deps, fx.IntentID)
			}
			_ = pair
		}
		if opts.LinkBuyToSameCurrencySellDependency {
			deps = append(deps, sellsByCCY[ccy]...)
		}
		sort.Strings(deps)
		intents[i].Dependencies = deps
	}
}

// orderIntents applies the deterministic output ordering (spec §4.6):
// CASH_FLOW (input order) -> SECURITY_TRADE SELL (instrument asc) ->
// FX_SPOT (pair asc) -> SECURITY_TRADE BUY (instrument asc).
func orderIntents(securityIntents []model.Intent, fxIntents []model.Intent) []model.Intent {
	var sells, buys []model.Intent
	for _, it := range securityIntents {
		if it.Side == model.SideSell {
			sells = append(sells, it)
		} else {
			buys = append(buys, it)
		}
	}
	sort.Slice(sells, func(i, j int) bool { return sells[i].InstrumentID < sells[j].InstrumentID })
	sort.Slice(buys, func(i, j int) bool { return buys[i].InstrumentID < buys[j].InstrumentID })
	sort.Slice(fxIntents, func(i, j int) bool { return fxIntents[i].Pair < fxIntents[j].Pair })

	ordered := make([]model.Intent, 0, len(sells)+len(buys)+len(fxIntents))
	ordered = append(ordered, sells...)
	ordered = append(ordered, fxIntents...)
	ordered = append(ordered, buys...)
	return ordered
}

// settlementLadder distributes cash flows onto day offsets and checks for
// overdraft breaches (spec §4.6 step 5).
func settlementLadder(intents []model.Intent, finalCash map[string]decimal.Decimal, shelf model.Shelf, opts model.EngineOptions, diag *model.Diagnostics) (bool, string) {
	if !opts.EnableSettlementAwareness {
		return false, ""
	}

	maxDay := opts.SettlementHorizonDays
	type flow struct {
		ccy string
		day int
		amt decimal.Decimal
	}
	var flows []flow
	for _, it := range intents {
		var ccy string
		var amt decimal.Decimal
		var day int
		switch it.Kind {
		case model.IntentSecurityTrade:
			ccy = it.Notional.Currency
			day = shelf.SettlementDaysFor(it.InstrumentID)
			if it.Side == model.SideBuy {
				amt = it.Notional.Amount.Neg()
			} else {
				amt = it.Notional.Amount
			}
		case model.IntentFXSpot:
			day = opts.FXSettlementDays
			flows = append(flows, flow{ccy: it.BuyCurrency, day: day, amt: it.BuyAmount.Amount})
			flows = append(flows, flow{ccy: it.SellCurrency, day: day, amt: it.SellAmountEstimated.Amount.Neg()})
			continue
		default:
			continue
		}
		if day > maxDay {
			maxDay = day
		}
		flows = append(flows, flow{ccy: ccy, day: day, amt: amt})
	}

	ccySet := map[string]bool{}
	for _, f := range flows {
		ccySet[f.ccy] = true
		if f.day > maxDay {
			maxDay = f.day
		}
	}
	ccys := make([]string, 0, len(ccySet))
	for ccy := range ccySet {
		ccys = append(ccys, ccy)
	}
	sort.Strings(ccys)

	blocked := false
	blockReason := ""
	for _, ccy := range ccys {
		var running decimal.Decimal
		overdraft := opts.MaxOverdraftFor(ccy)
		for day := 0; day <= maxDay; day++ {
			for _, f := range flows {
				if f.ccy == ccy && f.day == day {
					running = running.Add(f.amt)
				}
			}
			diag.CashLadder = append(diag.CashLadder, model.CashLadderEntry{
				Currency:  ccy,
				DayOffset: day,
				Balance:   money.FromDecimal(running, ccy),
			})
			if running.IsNegative() {
				if running.Neg().GreaterThan(overdraft) {
					reason := fmt.Sprintf("OVERDRAFT_ON_T_PLUS_%d", day)
					diag.CashLadderBreaches = append(diag.CashLadderBreaches, reason)
					if !blocked {
						blocked = true
						blockReason = reason
					}
				} else {
					diag.AddWarning("SETTLEMENT_OVERDRAFT_UTILIZED")
				}
			}
		}
	}
	return blocked, blockReason
}

func computeAfterTotal(cashByCCY map[string]decimal.Decimal, holdings map[string]decimal.Decimal, md model.MarketDataSnapshot, base string) decimal.Decimal {
	var total decimal.Decimal
	for ccy, amt := range cashByCCY {
		rate, ok := md.FindFXRate(ccy, base)
		if !ok {
			continue
		}
		total = total.Add(amt.Mul(rate))
	}
	for instrumentID, qty := range holdings {
		price, ok := md.PriceOf(instrumentID)
		if !ok {
			continue
		}
		rate, ok := md.FindFXRate(price.Currency, base)
		if !ok {
			continue
		}
		total = total.Add(qty.Mul(price.Amount).Mul(rate))
	}
	return total
}

func buildAfterState(cashByCCY map[string]decimal.Decimal, holdings map[string]decimal.Decimal, md model.MarketDataSnapshot, shelf model.Shelf, base string, total decimal.Decimal) model.SimulatedState {
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

	assetClassSlices := make([]model.AllocationSlice, 0, len(byAssetClass))
	classKeys := make([]string, 0, len(byAssetClass))
	for k := range byAssetClass {
		classKeys = append(classKeys, k)
	}
	sort.Strings(classKeys)
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
		CashBalances:            cashBalances,
		Positions:               positions,
		AllocationByAssetClass:  assetClassSlices,
		AllocationByInstrument:  byInstrument,
		DataQuality:             dqList,
	}
}
