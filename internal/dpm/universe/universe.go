// Package universe classifies the rebalance universe from the model
// portfolio, the held positions, and shelf governance status (spec §4.3).
package universe

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
)

// Build constructs the classified, lock-evaluated universe. The candidate
// set is the union of the model portfolio's instruments and the portfolio's
// currently-held instruments, so a held-but-no-longer-modeled position is
// still represented and can be sold down to zero.
func Build(modelPortfolio model.ModelPortfolio, portfolio model.PortfolioSnapshot, shelf model.Shelf, allowRestricted bool) model.Universe {
	held := map[string]decimal.Decimal{}
	for _, pos := range portfolio.Positions {
		held[pos.InstrumentID] = pos.Quantity
	}

	ids := map[string]struct{}{}
	for id := range modelPortfolio {
		ids[id] = struct{}{}
	}
	for id := range held {
		ids[id] = struct{}{}
	}

	ordered := make([]string, 0, len(ids))
	for id := range ids {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	entries := make([]model.UniverseEntry, 0, len(ordered))
	for _, id := range ordered {
		entries = append(entries, classify(id, modelPortfolio, held, shelf, allowRestricted))
	}
	return model.Universe{Entries: entries}
}

func classify(id string, modelPortfolio model.ModelPortfolio, held map[string]decimal.Decimal, shelf model.Shelf, allowRestricted bool) model.UniverseEntry {
	entry := model.UniverseEntry{
		InstrumentID: id,
		ModelWeight:  modelPortfolio[id],
		HeldQuantity: held[id],
	}

	shelfEntry, onShelf := shelf[id]
	if onShelf {
		e := shelfEntry
		entry.Shelf = &e
	}

	entry.BuyEligible = true
	entry.SellEligible = true

	switch {
	case !onShelf:
		entry.BuyEligible = false
		entry.Locked = true
		entry.LockReason = "LOCKED_DUE_TO_MISSING_SHELF"
	case shelfEntry.Status == model.ShelfBanned:
		entry.BuyEligible = false
		entry.SellEligible = false
		entry.Locked = true
		entry.LockReason = "LOCKED_DUE_TO_BANNED"
	case shelfEntry.Status == model.ShelfSuspended:
		entry.BuyEligible = false
		entry.SellEligible = false
		entry.Locked = true
		entry.LockReason = "LOCKED_DUE_TO_SUSPENDED"
	case shelfEntry.Status == model.ShelfSellOnly:
		entry.BuyEligible = false
	case shelfEntry.Status == model.ShelfRestricted && !allowRestricted:
		entry.BuyEligible = false
		entry.Locked = true
		entry.LockReason = "LOCKED_DUE_TO_RESTRICTED"
	}

	// Lock predicate is quantity != 0, not > 0 (spec §4.3): a still-held
	// locked instrument remains sell-eligible unless the lock itself
	// precludes selling (BANNED, SUSPENDED).
	qty, isHeld := held[id]
	if entry.Locked && entry.LockReason != "LOCKED_DUE_TO_BANNED" && entry.LockReason != "LOCKED_DUE_TO_SUSPENDED" {
		if isHeld && !qty.IsZero() {
			entry.SellEligible = true
		}
	}

	return entry
}
