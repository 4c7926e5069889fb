package model

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sgajbi/lotus-advise-sub000/internal/money"
)

// PriceOf returns the price for instrumentID and whether it was found.
func (m MarketDataSnapshot) PriceOf(instrumentID string) (money.Money, bool) {
	for _, p := range m.Prices {
		if p.InstrumentID == instrumentID {
			return p.Price, true
		}
	}
	return money.Money{}, false
}

// FindFXRate looks up the rate for pair "A/B" (1 A = rate B). When only the
// inverse pair "B/A" is present, the rate is derived as 1/rate(B/A), per
// spec §3: "Inverse pair lookup is deterministic."
func (m MarketDataSnapshot) FindFXRate(from, to string) (decimal.Decimal, bool) {
	if from == to {
		return decimal.NewFromInt(1), true
	}
	direct := from + "/" + to
	inverse := to + "/" + from
	for _, r := range m.FXRates {
		if strings.EqualFold(r.Pair, direct) {
			return r.Rate, true
		}
	}
	for _, r := range m.FXRates {
		if strings.EqualFold(r.Pair, inverse) {
			if r.Rate.IsZero() {
				return decimal.Zero, false
			}
			return decimal.NewFromInt(1).DivRound(r.Rate, 16), true
		}
	}
	return decimal.Zero, false
}

// Shelf is an indexed lookup of ShelfEntry by instrument id.
type Shelf map[string]ShelfEntry

// NewShelf builds a Shelf index from a slice of entries.
func NewShelf(entries []ShelfEntry) Shelf {
	s := make(Shelf, len(entries))
	for _, e := range entries {
		if e.SettlementDays == 0 {
			e.SettlementDays = DefaultSettlementDays
		}
		s[e.InstrumentID] = e
	}
	return s
}

// SettlementDaysFor returns the shelf entry's settlement days, or the
// default when the instrument is not on the shelf.
func (s Shelf) SettlementDaysFor(instrumentID string) int {
	if e, ok := s[instrumentID]; ok {
		return e.SettlementDays
	}
	return DefaultSettlementDays
}
