package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moltiarena/core/internal/domain"
)

func TestExecutePaperTrade_Buy(t *testing.T) {
	before := State{CashMon: 10, TokenUnits: 0}
	res := ExecutePaperTrade(5, 1, 1, before, 2.0, domain.Decision{Action: domain.ActionBuy, SizePct: 0.1})

	require.NotNil(t, res.Trade)
	require.Equal(t, domain.ActionBuy, res.Trade.Action)
	require.InDelta(t, 1.0, res.Trade.TradeValueMon, 1e-9)
	require.InDelta(t, 9.0, res.Next.CashMon, 1e-9)
	require.InDelta(t, 0.5, res.Next.TokenUnits, 1e-9)
	require.Equal(t, 1, res.Next.TradesThisWindow)
	require.NotNil(t, res.Next.LastTradeTick)
	require.Equal(t, int64(5), *res.Next.LastTradeTick)
}

func TestExecutePaperTrade_Sell_ClearsAvgEntryWhenFullyClosed(t *testing.T) {
	avg := 1.8
	before := State{CashMon: 0, TokenUnits: 10, AvgEntryPrice: &avg}
	res := ExecutePaperTrade(6, 1, 1, before, 2.0, domain.Decision{Action: domain.ActionSell, SizePct: 1})

	require.NotNil(t, res.Trade)
	require.InDelta(t, 20.0, res.Trade.TradeValueMon, 1e-9)
	require.InDelta(t, 0, res.Next.TokenUnits, 1e-9)
	require.Nil(t, res.Next.AvgEntryPrice)
}

func TestExecutePaperTrade_Sell_KeepsAvgEntryWhenPartial(t *testing.T) {
	avg := 1.8
	before := State{CashMon: 0, TokenUnits: 10, AvgEntryPrice: &avg}
	res := ExecutePaperTrade(6, 1, 1, before, 2.0, domain.Decision{Action: domain.ActionSell, SizePct: 0.5})

	require.NotNil(t, res.Next.AvgEntryPrice)
	require.InDelta(t, 1.8, *res.Next.AvgEntryPrice, 1e-9)
	require.InDelta(t, 5.0, res.Next.TokenUnits, 1e-9)
}

func TestExecutePaperTrade_Hold_NoTrade(t *testing.T) {
	before := State{CashMon: 10, TokenUnits: 5}
	res := ExecutePaperTrade(6, 1, 1, before, 2.0, domain.Decision{Action: domain.ActionHold})

	require.Nil(t, res.Trade)
	require.Equal(t, before.TradesThisWindow, res.Next.TradesThisWindow)
	require.Nil(t, res.Next.LastTradeTick)
}

func TestExecutePaperTrade_BuyWeightedAverageEntry(t *testing.T) {
	avg := 1.0
	before := State{CashMon: 100, TokenUnits: 10, AvgEntryPrice: &avg}
	res := ExecutePaperTrade(7, 1, 1, before, 2.0, domain.Decision{Action: domain.ActionBuy, SizePct: 0.5})

	// spent=50, bought=25, total units=35, weighted avg = (10*1 + 25*2)/35 = 60/35
	require.NotNil(t, res.Next.AvgEntryPrice)
	require.InDelta(t, 60.0/35.0, *res.Next.AvgEntryPrice, 1e-9)
}
