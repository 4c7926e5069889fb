package universe

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
)

func TestBuildIncludesHeldNonModeledInstrument(t *testing.T) {
	modelPortfolio := model.ModelPortfolio{"EQ1": decimal.RequireFromString("0.6")}
	portfolio := model.PortfolioSnapshot{
		Positions: []model.Position{{InstrumentID: "EQ2", Quantity: decimal.NewFromInt(10)}},
	}
	shelf := model.NewShelf([]model.ShelfEntry{
		{InstrumentID: "EQ1", Status: model.ShelfApproved},
		{InstrumentID: "EQ2", Status: model.ShelfApproved},
	})
	u := Build(modelPortfolio, portfolio, shelf, false)
	idx := u.ByInstrument()
	require.Contains(t, idx, "EQ1")
	require.Contains(t, idx, "EQ2")
}

func TestBuildNotOnShelfLocksBuy(t *testing.T) {
	modelPortfolio := model.ModelPortfolio{"EQ1": decimal.RequireFromString("1")}
	u := Build(modelPortfolio, model.PortfolioSnapshot{}, model.Shelf{}, false)
	entry := u.ByInstrument()["EQ1"]
	require.False(t, entry.BuyEligible)
	require.True(t, entry.Locked)
	require.Equal(t, "LOCKED_DUE_TO_MISSING_SHELF", entry.LockReason)
}

func TestBuildBannedBlocksBothSides(t *testing.T) {
	modelPortfolio := model.ModelPortfolio{}
	portfolio := model.PortfolioSnapshot{Positions: []model.Position{{InstrumentID: "EQ1", Quantity: decimal.NewFromInt(5)}}}
	shelf := model.NewShelf([]model.ShelfEntry{{InstrumentID: "EQ1", Status: model.ShelfBanned}})
	u := Build(modelPortfolio, portfolio, shelf, false)
	entry := u.ByInstrument()["EQ1"]
	require.False(t, entry.BuyEligible)
	require.False(t, entry.SellEligible)
}

func TestBuildRestrictedHeldRemainsSellable(t *testing.T) {
	modelPortfolio := model.ModelPortfolio{}
	portfolio := model.PortfolioSnapshot{Positions: []model.Position{{InstrumentID: "EQ1", Quantity: decimal.NewFromInt(5)}}}
	shelf := model.NewShelf([]model.ShelfEntry{{InstrumentID: "EQ1", Status: model.ShelfRestricted}})
	u := Build(modelPortfolio, portfolio, shelf, false)
	entry := u.ByInstrument()["EQ1"]
	require.False(t, entry.BuyEligible)
	require.True(t, entry.SellEligible)
}

func TestBuildSellOnlyBlocksBuyOnly(t *testing.T) {
	modelPortfolio := model.ModelPortfolio{"EQ1": decimal.RequireFromString("0.2")}
	shelf := model.NewShelf([]model.ShelfEntry{{InstrumentID: "EQ1", Status: model.ShelfSellOnly}})
	u := Build(modelPortfolio, model.PortfolioSnapshot{}, shelf, false)
	entry := u.ByInstrument()["EQ1"]
	require.False(t, entry.BuyEligible)
	require.True(t, entry.SellEligible)
}

func TestBuildAllowRestrictedOverride(t *testing.T) {
	modelPortfolio := model.ModelPortfolio{"EQ1": decimal.RequireFromString("0.2")}
	shelf := model.NewShelf([]model.ShelfEntry{{InstrumentID: "EQ1", Status: model.ShelfRestricted}})
	u := Build(modelPortfolio, model.PortfolioSnapshot{}, shelf, true)
	entry := u.ByInstrument()["EQ1"]
	require.True(t, entry.BuyEligible)
}
