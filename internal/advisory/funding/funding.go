// Package funding implements advisory auto-funding: covering BUY shortfalls
// with existing cash first, then generated FX_SPOT intents (spec §4.9).
package funding

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
	"github.com/sgajbi/lotus-advise-sub000/internal/money"
)

// Input bundles the state auto-funding needs.
type Input struct {
	BuyIntents []model.Intent // SECURITY_TRADE BUY only
	Cash       []model.CashBalance
	MarketData model.MarketDataSnapshot
	BaseCCY    string
	Options    model.EngineOptions
}

// Result is the output of Plan.
type Result struct {
	FXIntents   []model.Intent
	Diagnostics model.Diagnostics
	Blocked     bool
	BlockReason string
}

// Plan covers each BUY currency's requirement from existing cash first,
// then from one FX_SPOT per target currency (spec §4.9 "ONE_FX_PER_CCY").
func Plan(in Input) Result {
	res := Result{}

	available := map[string]decimal.Decimal{}
	for _, c := range in.Cash {
		available[c.Currency] = c.Amount.Amount
	}

	required := map[string]decimal.Decimal{}
	buysByCCY := map[string][]int{}
	for i, buy := range in.BuyIntents {
		ccy := buy.Notional.Currency
		required[ccy] = required[ccy].Add(buy.Notional.Amount)
		buysByCCY[ccy] = append(buysByCCY[ccy], i)
	}

	ccys := make([]string, 0, len(required))
	for ccy := range required {
		ccys = append(ccys, ccy)
	}
	sort.Strings(ccys)

	fxByPair := map[string]model.Intent{}
	pairByCCY := map[string]string{}
	for _, ccy := range ccys {
		need := required[ccy]
		fromOwnCCY := available[ccy]
		if fromOwnCCY.GreaterThan(need) {
			fromOwnCCY = need
		}
		if fromOwnCCY.IsNegative() {
			fromOwnCCY = decimal.Zero
		}
		available[ccy] = available[ccy].Sub(fromOwnCCY)
		remaining := need.Sub(fromOwnCCY)

		entry := model.FundingPlanEntry{
			Currency:          ccy,
			Required:          money.FromDecimal(need, ccy),
			AvailableBeforeFX: money.FromDecimal(available[ccy].Add(fromOwnCCY), ccy),
		}

		if !remaining.IsZero() && ccy != in.BaseCCY {
			fundingCCY := fundingSourceCurrency(ccy, in.BaseCCY, available, in.Options)
			pair := fundingCCY + "/" + ccy
			rate, ok := in.MarketData.FindFXRate(fundingCCY, ccy)
			if !ok {
				res.Diagnostics.MissingFXPairs = append(res.Diagnostics.MissingFXPairs, pair)
				if in.Options.BlockOnMissingFX {
					res.Blocked = true
					res.BlockReason = "PROPOSAL_MISSING_FX_FOR_FUNDING"
				}
			} else {
				sellAmt := remaining.Div(rate)
				if existing, ok := fxByPair[pair]; ok {
					existing.BuyAmount = existing.BuyAmount.Add(money.FromDecimal(remaining, ccy))
					existing.SellAmountEstimated = existing.SellAmountEstimated.Add(money.FromDecimal(sellAmt, fundingCCY))
					fxByPair[pair] = existing
				} else {
					fxByPair[pair] = model.Intent{
						Kind:                model.IntentFXSpot,
						IntentID:            fmt.Sprintf("FX_SPOT:%s:FUNDING", pair),
						Pair:                pair,
						BuyCurrency:         ccy,
						BuyAmount:           money.FromDecimal(remaining, ccy),
						SellCurrency:        fundingCCY,
						SellAmountEstimated: money.FromDecimal(sellAmt, fundingCCY),
						Rate:                rate,
						Rationale:           model.Rationale{Code: model.FXRationaleFunding, Message: "auto-fund buy shortfall"},
					}
				}
				entry.FXNeeded = money.FromDecimal(remaining, ccy)
				entry.FXPair = pair
				entry.FundingCurrency = fundingCCY
				pairByCCY[ccy] = pair
			}
		}
		res.Diagnostics.FundingPlan = append(res.Diagnostics.FundingPlan, entry)
	}

	pairs := make([]string, 0, len(fxByPair))
	for p := range fxByPair {
		pairs = append(pairs, p)
	}
	sort.Strings(pairs)
	for _, p := range pairs {
		res.FXIntents = append(res.FXIntents, fxByPair[p])
	}

	for i := range in.BuyIntents {
		ccy := in.BuyIntents[i].Notional.Currency
		if pair, ok := pairByCCY[ccy]; ok {
			in.BuyIntents[i].Dependencies = append(in.BuyIntents[i].Dependencies, fxByPair[pair].IntentID)
		}
	}

	return res
}

// fundingSourceCurrency selects which cash currency covers a shortfall in
// ccy (spec §4.9): BASE_ONLY always uses base; ANY_CASH prefers base, then
// other currencies lexicographically (excluding ccy).
func fundingSourceCurrency(ccy, base string, available map[string]decimal.Decimal, opts model.EngineOptions) string {
	if opts.FXFundingSourceCurrency != model.FXSourceAnyCash {
		return base
	}
	if available[base].GreaterThan(decimal.Zero) {
		return base
	}
	candidates := make([]string, 0, len(available))
	for c, amt := range available {
		if c == ccy || c == base || !amt.GreaterThan(decimal.Zero) {
			continue
		}
		candidates = append(candidates, c)
	}
	sort.Strings(candidates)
	if len(candidates) > 0 {
		return candidates[0]
	}
	return base
}
