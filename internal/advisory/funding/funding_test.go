package funding

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sgajbi/lotus-advise-sub000/internal/dpm/model"
	"github.com/sgajbi/lotus-advise-sub000/internal/money"
)

func TestPlanUsesExistingCashFirst(t *testing.T) {
	in := Input{
		BuyIntents: []model.Intent{{Kind: model.IntentSecurityTrade, IntentID: "b1", Side: model.SideBuy, Notional: money.New("500", "SGD")}},
		Cash:       []model.CashBalance{{Currency: "SGD", Amount: money.New("1000", "SGD")}},
		BaseCCY:    "SGD",
		Options:    model.Defaults(),
	}
	res := Plan(in)
	require.Empty(t, res.FXIntents)
	require.Empty(t, in.BuyIntents[0].Dependencies)
}

func TestPlanGeneratesFXForShortfall(t *testing.T) {
	in := Input{
		BuyIntents: []model.Intent{{Kind: model.IntentSecurityTrade, IntentID: "b1", Side: model.SideBuy, Notional: money.New("1000", "USD")}},
		Cash:       []model.CashBalance{{Currency: "SGD", Amount: money.New("2000", "SGD")}},
		MarketData: model.MarketDataSnapshot{FXRates: []model.FXRate{{Pair: "SGD/USD", Rate: decimal.RequireFromString("0.74")}}},
		BaseCCY:    "SGD",
		Options:    model.Defaults(),
	}
	res := Plan(in)
	require.Len(t, res.FXIntents, 1)
	require.Equal(t, "SGD/USD", res.FXIntents[0].Pair)
	require.Len(t, in.BuyIntents[0].Dependencies, 1)
}

func TestPlanMissingFXBlocksWhenConfigured(t *testing.T) {
	in := Input{
		BuyIntents: []model.Intent{{Kind: model.IntentSecurityTrade, IntentID: "b1", Side: model.SideBuy, Notional: money.New("1000", "JPY")}},
		BaseCCY:    "SGD",
		Options:    model.Defaults(),
	}
	in.Options.BlockOnMissingFX = true
	res := Plan(in)
	require.True(t, res.Blocked)
	require.Equal(t, "PROPOSAL_MISSING_FX_FOR_FUNDING", res.BlockReason)
}
