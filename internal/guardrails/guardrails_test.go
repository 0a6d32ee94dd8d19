package guardrails

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moltiarena/core/internal/domain"
)

func profile(maxTradePct, maxPositionPct float64, cooldown, maxTrades int, minEvents int, minVolume float64) domain.Profile {
	return domain.Profile{
		Constraints: domain.Constraints{
			MaxTradePct:        maxTradePct,
			MaxPositionPct:     maxPositionPct,
			CooldownTicks:      cooldown,
			MaxTradesPerWindow: maxTrades,
		},
		Filters: domain.Filters{
			MinEvents1h:    minEvents,
			MinVolumeMon1h: minVolume,
		},
	}
}

// S1: guardrails pass-through BUY.
func TestApply_PassThroughBuy(t *testing.T) {
	p := profile(0.2, 1, 5, 10, 100, 10000)
	snap := Snapshot{Tick: 96, Price: 1.5, Events1h: 500, Volume1h: 50000}
	lastTick := int64(90)
	pf := Portfolio{CashMon: 100, TokenUnits: 0, TradesThisWindow: 2, LastTradeTick: &lastTick}

	out := Apply(snap, pf, p, domain.Decision{Action: domain.ActionBuy, SizePct: 0.15})
	require.Equal(t, domain.ActionBuy, out.Action)
	require.Equal(t, 0.15, out.SizePct)
}

// S2: size cap.
func TestApply_SizeCap(t *testing.T) {
	p := profile(0.2, 1, 5, 10, 100, 10000)
	snap := Snapshot{Tick: 96, Price: 1.5, Events1h: 500, Volume1h: 50000}
	lastTick := int64(90)
	pf := Portfolio{CashMon: 100, TradesThisWindow: 2, LastTradeTick: &lastTick}

	out := Apply(snap, pf, p, domain.Decision{Action: domain.ActionBuy, SizePct: 0.5})
	require.Equal(t, domain.ActionBuy, out.Action)
	require.Equal(t, 0.2, out.SizePct)
}

// S3: cooldown HOLD.
func TestApply_Cooldown(t *testing.T) {
	p := profile(0.2, 1, 5, 10, 100, 10000)
	snap := Snapshot{Tick: 92, Price: 1.5, Events1h: 500, Volume1h: 50000}
	lastTick := int64(90)
	pf := Portfolio{CashMon: 100, TradesThisWindow: 2, LastTradeTick: &lastTick}

	out := Apply(snap, pf, p, domain.Decision{Action: domain.ActionBuy, SizePct: 0.15})
	require.Equal(t, domain.ActionHold, out.Action)
	require.Contains(t, out.Reason, "cooldown")
}

// cooldown boundary: tick - lastTradeTick == cooldownTicks passes through (strict "<").
func TestApply_CooldownBoundaryPassesThrough(t *testing.T) {
	p := profile(0.2, 1, 5, 10, 0, 0)
	snap := Snapshot{Tick: 95, Price: 1.5, Events1h: 500, Volume1h: 50000}
	lastTick := int64(90)
	pf := Portfolio{CashMon: 100, TradesThisWindow: 0, LastTradeTick: &lastTick}

	out := Apply(snap, pf, p, domain.Decision{Action: domain.ActionBuy, SizePct: 0.1})
	require.Equal(t, domain.ActionBuy, out.Action)
}

// S4: position cap on BUY.
func TestApply_PositionCap(t *testing.T) {
	p := profile(0.2, 0.5, 5, 10, 0, 0)
	snap := Snapshot{Tick: 10, Price: 1}
	pf := Portfolio{CashMon: 50, TokenUnits: 100}

	out := Apply(snap, pf, p, domain.Decision{Action: domain.ActionBuy, SizePct: 0.1})
	require.Equal(t, domain.ActionHold, out.Action)
	require.Contains(t, out.Reason, "position")
}

func TestApply_SellNeverPositionCapped(t *testing.T) {
	p := profile(0.2, 0.5, 5, 10, 0, 0)
	snap := Snapshot{Tick: 10, Price: 1}
	pf := Portfolio{CashMon: 50, TokenUnits: 100}

	out := Apply(snap, pf, p, domain.Decision{Action: domain.ActionSell, SizePct: 0.1})
	require.Equal(t, domain.ActionSell, out.Action)
}

func TestApply_BuyZeroSizeAfterCapHolds(t *testing.T) {
	p := profile(0.2, 1, 0, 10, 0, 0)
	snap := Snapshot{Tick: 10, Price: 1}
	pf := Portfolio{CashMon: 50}

	out := Apply(snap, pf, p, domain.Decision{Action: domain.ActionBuy, SizePct: 0})
	require.Equal(t, domain.ActionHold, out.Action)
}

func TestApply_HoldPassesThroughUnchanged(t *testing.T) {
	p := profile(0.2, 0.5, 5, 10, 100, 10000)
	snap := Snapshot{Tick: 10, Price: 1, Events1h: 200, Volume1h: 20000}
	pf := Portfolio{CashMon: 50}

	out := Apply(snap, pf, p, domain.Decision{Action: domain.ActionHold, Reason: "model said so"})
	require.Equal(t, domain.ActionHold, out.Action)
	require.Equal(t, "model said so", out.Reason)
}

func TestApply_DisabledFiltersWhenBothZero(t *testing.T) {
	p := profile(0.2, 1, 0, 10, 0, 0)
	snap := Snapshot{Tick: 10, Price: 1, Events1h: 0, Volume1h: 0}
	pf := Portfolio{CashMon: 50}

	out := Apply(snap, pf, p, domain.Decision{Action: domain.ActionBuy, SizePct: 0.1})
	require.Equal(t, domain.ActionBuy, out.Action)
}
