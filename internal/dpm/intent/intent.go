// Package intent converts target weight drift into SECURITY_TRADE intents,
// applying dust suppression, the turnover cap, and tax-aware HIFO selling
// (spec §4.5).
package intent

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
	"github.com/sgajbi/lotus-advise-sub000/internal/money"
)

// Input bundles the state the intent generator needs.
type Input struct {
	Targets       model.TargetResult
	CurrentWeight map[string]decimal.Decimal
	Before        model.SimulatedState
	Portfolio     model.PortfolioSnapshot
	MarketData    model.MarketDataSnapshot
	Shelf         model.Shelf
	Options       model.EngineOptions
}

// Result is the output of Generate.
type Result struct {
	Intents     []model.Intent
	Diagnostics model.Diagnostics
	TaxImpact   *model.TaxImpact
}

type draftIntent struct {
	instrumentID string
	side         model.Side
	notionalBase decimal.Decimal // signed, base currency
}

type sizedCandidate struct {
	draft    draftIntent
	quantity decimal.Decimal
	notional money.Money
	price    money.Money
}

// Generate produces SECURITY_TRADE intents for every instrument whose
// target weight differs from its current weight (spec §4.5).
func Generate(in Input) Result {
	res := Result{}
	base := in.Portfolio.BaseCurrency
	total := in.Before.TotalValue.Amount

	var drafts []draftIntent
	for _, t := range in.Targets.Targets {
		current := in.CurrentWeight[t.InstrumentID]
		delta := t.FinalWeight.Sub(current)
		if delta.IsZero() {
			continue
		}
		notionalBase := delta.Mul(total)
		side := model.SideBuy
		if notionalBase.IsNegative() {
			side = model.SideSell
		}
		drafts = append(drafts, draftIntent{instrumentID: t.InstrumentID, side: side, notionalBase: notionalBase})
	}
	sort.Slice(drafts, func(i, j int) bool { return drafts[i].instrumentID < drafts[j].instrumentID })

	var candidates []sizedCandidate

	for _, d := range drafts {
		price, hasPrice := in.MarketData.PriceOf(d.instrumentID)
		if !hasPrice || price.Amount.IsZero() {
			res.Diagnostics.AddWarning("MISSING_PRICE_FOR_INTENT_" + d.instrumentID)
			continue
		}
		rate, ok := in.MarketData.FindFXRate(base, price.Currency)
		if !ok {
			res.Diagnostics.AddWarning("MISSING_FX_FOR_INTENT_" + d.instrumentID)
			continue
		}
		notionalInstr := money.Abs(d.notionalBase).Mul(rate)
		qty := money.DFloor(notionalInstr, price.Amount)

		threshold := minNotionalFor(d.instrumentID, in)
		notionalMoney := money.FromDecimal(notionalInstr, price.Currency)
		if threshold != nil && notionalMoney.Amount.LessThanOrEqual(threshold.Amount) {
			res.Diagnostics.SuppressedIntents = append(res.Diagnostics.SuppressedIntents, model.SuppressedIntent{
				InstrumentID: d.instrumentID,
				Notional:     notionalMoney,
				Reason:       "BELOW_MIN_NOTIONAL",
			})
			continue
		}
		if qty.IsZero() {
			res.Diagnostics.SuppressedIntents = append(res.Diagnostics.SuppressedIntents, model.SuppressedIntent{
				InstrumentID: d.instrumentID,
				Notional:     notionalMoney,
				Reason:       "BELOW_MIN_NOTIONAL",
			})
			continue
		}
		candidates = append(candidates, sizedCandidate{draft: d, quantity: qty, notional: notionalMoney, price: price})
	}

	candidates = applyTurnoverCap(candidates, total, in.Options, &res.Diagnostics)

	var taxImpact *model.TaxImpact
	for i, c := range candidates {
		if c.draft.side == model.SideSell && in.Options.EnableTaxAwareness {
			qty, realizedGain, _ := applyTaxBudget(c.draft.instrumentID, c.quantity, c.price, in, taxImpact, &res.Diagnostics)
			if taxImpact == nil {
				taxImpact = &model.TaxImpact{TotalRealizedGain: money.Zero(in.Portfolio.BaseCurrency)}
			}
			taxImpact.TotalRealizedGain = taxImpact.TotalRealizedGain.Add(realizedGain)
			candidates[i].quantity = qty
		}
	}
	res.TaxImpact = taxImpact

	intentsByInstrument := map[string]model.Intent{}
	for _, c := range candidates {
		if c.quantity.IsZero() {
			continue
		}
		notionalBaseAmt := c.notional.Amount
		if rate, ok := in.MarketData.FindFXRate(c.price.Currency, base); ok {
			notionalBaseAmt = c.notional.Amount.Mul(rate)
		}
		intentID := fmt.Sprintf("SECURITY_TRADE:%s:%s", c.draft.instrumentID, c.draft.side)
		intentsByInstrument[c.draft.instrumentID] = model.Intent{
			Kind:         model.IntentSecurityTrade,
			IntentID:     intentID,
			InstrumentID: c.draft.instrumentID,
			Side:         c.draft.side,
			Quantity:     c.quantity,
			Notional:     c.notional,
			NotionalBase: money.FromDecimal(notionalBaseAmt, base),
			Rationale:    model.Rationale{Code: "TARGET_DRIFT", Message: "generated from target weight drift"},
		}
	}

	ids := make([]string, 0, len(intentsByInstrument))
	for id := range intentsByInstrument {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		res.Intents = append(res.Intents, intentsByInstrument[id])
	}

	return res
}

func minNotionalFor(instrumentID string, in Input) *money.Money {
	if in.Options.MinTradeNotional != nil {
		return in.Options.MinTradeNotional
	}
	if e, ok := in.Shelf[instrumentID]; ok && e.MinNotional != nil {
		return e.MinNotional
	}
	return nil
}

type turnoverCandidate struct {
	idx          int
	instrumentID string
	intentID     string
	absNotional  decimal.Decimal
	score        decimal.Decimal
}

func applyTurnoverCap(candidates []sizedCandidate, total decimal.Decimal, opts model.EngineOptions, diag *model.Diagnostics) []sizedCandidate {
	if opts.MaxTurnoverPct == nil || total.IsZero() {
		return candidates
	}

	var sumAbs decimal.Decimal
	for _, c := range candidates {
		sumAbs = sumAbs.Add(money.Abs(c.draft.notionalBase))
	}
	cap := total.Mul(*opts.MaxTurnoverPct)
	if sumAbs.LessThanOrEqual(cap) {
		return candidates
	}

	ranked := make([]turnoverCandidate, 0, len(candidates))
	for i, c := range candidates {
		abs := money.Abs(c.draft.notionalBase)
		ranked = append(ranked, turnoverCandidate{
			idx:          i,
			instrumentID: c.draft.instrumentID,
			intentID:     fmt.Sprintf("SECURITY_TRADE:%s:%s", c.draft.instrumentID, c.draft.side),
			absNotional:  abs,
			score:        abs.Div(total),
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if !ranked[i].score.Equal(ranked[j].score) {
			return ranked[i].score.GreaterThan(ranked[j].score)
		}
		if !ranked[i].absNotional.Equal(ranked[j].absNotional) {
			return ranked[i].absNotional.LessThan(ranked[j].absNotional)
		}
		if ranked[i].instrumentID != ranked[j].instrumentID {
			return ranked[i].instrumentID < ranked[j].instrumentID
		}
		return ranked[i].intentID < ranked[j].intentID
	})

	var running decimal.Decimal
	keep := map[int]bool{}
	for _, r := range ranked {
		if running.Add(r.absNotional).LessThanOrEqual(cap) {
			running = running.Add(r.absNotional)
			keep[r.idx] = true
			continue
		}
		c := candidates[r.idx]
		diag.DroppedIntents = append(diag.DroppedIntents, model.DroppedIntent{
			IntentID:     r.intentID,
			InstrumentID: r.instrumentID,
			NotionalBase: money.FromDecimal(c.draft.notionalBase, "BASE"),
			Reason:       "TURNOVER_LIMIT",
		})
	}
	if len(keep) < len(candidates) {
		diag.AddWarning("PARTIAL_REBALANCE_TURNOVER_LIMIT")
	}

	kept := make([]sizedCandidate, 0, len(keep))
	for i, c := range candidates {
		if keep[i] {
			kept = append(kept, c)
		}
	}
	return kept
}

// applyTaxBudget reduces a sell's quantity to respect the realized-gains
// budget using HIFO lot selection (spec §4.5), returning the (possibly
// reduced) quantity and the realized gain actually booked.
func applyTaxBudget(instrumentID string, requestedQty decimal.Decimal, price money.Money, in Input, running *model.TaxImpact, diag *model.Diagnostics) (decimal.Decimal, money.Money, bool) {
	var pos model.Position
	for _, p := range in.Portfolio.Positions {
		if p.InstrumentID == instrumentID {
			pos = p
			break
		}
	}
	lots := append([]model.TaxLot(nil), pos.Lots...)
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].UnitCost.Amount.Equal(lots[j].UnitCost.Amount) {
			return lots[i].UnitCost.Amount.GreaterThan(lots[j].UnitCost.Amount)
		}
		if !lots[i].PurchaseDate.Equal(lots[j].PurchaseDate) {
			return lots[i].PurchaseDate.After(lots[j].PurchaseDate)
		}
		return lots[i].LotID < lots[j].LotID
	})

	if in.Options.MaxRealizedCapitalGains == nil {
		return requestedQty, money.Zero(in.Portfolio.BaseCurrency), false
	}

	alreadyRealized := decimal.Zero
	if running != nil {
		alreadyRealized = running.TotalRealizedGain.Amount
	}
	headroom := in.Options.MaxRealizedCapitalGains.Sub(alreadyRealized)

	remaining := requestedQty
	var filled decimal.Decimal
	var totalGain decimal.Decimal
	stopped := false

	for _, lot := range lots {
		if remaining.IsZero() {
			break
		}
		lotQty := lot.Quantity
		if lotQty.GreaterThan(remaining) {
			lotQty = remaining
		}
		gainPerUnit := price.Amount.Sub(lot.UnitCost.Amount)
		gain := gainPerUnit.Mul(lotQty)

		if gain.IsNegative() {
			headroom = headroom.Sub(gain) // loss improves headroom
			filled = filled.Add(lotQty)
			totalGain = totalGain.Add(gain)
			remaining = remaining.Sub(lotQty)
			continue
		}

		if totalGain.Add(gain).GreaterThan(headroom) {
			affordableGain := headroom.Sub(totalGain)
			if affordableGain.IsNegative() {
				affordableGain = decimal.Zero
			}
			affordableQty := decimal.Zero
			if !gainPerUnit.IsZero() {
				affordableQty = affordableGain.Div(gainPerUnit)
			}
			if affordableQty.GreaterThan(lotQty) {
				affordableQty = lotQty
			}
			if affordableQty.IsNegative() {
				affordableQty = decimal.Zero
			}
			diag.TaxBudgetConstraintEvents = append(diag.TaxBudgetConstraintEvents, model.TaxBudgetConstraintEvent{
				InstrumentID:      instrumentID,
				LotID:             lot.LotID,
				RequestedQuantity: lotQty,
				FilledQuantity:    affordableQty,
				RealizedGain:      money.FromDecimal(gainPerUnit.Mul(affordableQty), in.Portfolio.BaseCurrency),
			})
			filled = filled.Add(affordableQty)
			totalGain = totalGain.Add(gainPerUnit.Mul(affordableQty))
			stopped = true
			break
		}

		filled = filled.Add(lotQty)
		totalGain = totalGain.Add(gain)
		remaining = remaining.Sub(lotQty)
	}

	if stopped {
		diag.AddWarning("TAX_BUDGET_LIMIT_REACHED")
	}

	return filled, money.FromDecimal(totalGain, in.Portfolio.BaseCurrency), stopped
}
