// Package guardrails implements the pure deterministic override layer that
// downgrades unsafe model proposals to HOLD. It performs no I/O: same input
// always yields the same output.
package guardrails

import (
	"fmt"

	"github.com/moltiarena/core/internal/domain"
)

// Snapshot is the slice of MarketSnapshot fields guardrails actually reads.
type Snapshot struct {
	Tick     int64
	Price    float64
	Events1h int64
	Volume1h float64
}

// Portfolio is the slice of Portfolio fields guardrails actually reads.
type Portfolio struct {
	CashMon          float64
	TokenUnits       float64
	TradesThisWindow int
	LastTradeTick    *int64
}

// Apply evaluates the override rules in order against the proposed
// decision. The first matching rule produces a HOLD with a reason; if none
// match, the action passes through with its size capped to MaxTradePct.
func Apply(snap Snapshot, pf Portfolio, profile domain.Profile, proposed domain.Decision) domain.Decision {
	c := profile.Constraints
	f := profile.Filters

	if f.MinEvents1h > 0 && snap.Events1h < int64(f.MinEvents1h) {
		return hold(fmt.Sprintf("events_1h %d below minimum %d", snap.Events1h, f.MinEvents1h))
	}
	if f.MinVolumeMon1h > 0 && snap.Volume1h < f.MinVolumeMon1h {
		return hold(fmt.Sprintf("volume_1h %.4f below minimum %.4f", snap.Volume1h, f.MinVolumeMon1h))
	}
	if pf.LastTradeTick != nil && snap.Tick-*pf.LastTradeTick < int64(c.CooldownTicks) {
		return hold(fmt.Sprintf("cooldown: tick %d - lastTradeTick %d < %d", snap.Tick, *pf.LastTradeTick, c.CooldownTicks))
	}
	if c.MaxTradesPerWindow > 0 && pf.TradesThisWindow >= c.MaxTradesPerWindow {
		return hold(fmt.Sprintf("max trades per window reached (%d)", c.MaxTradesPerWindow))
	}
	if proposed.Action == domain.ActionBuy && c.MaxPositionPct > 0 {
		exposure := pf.TokenUnits * snap.Price
		denom := pf.CashMon + exposure
		if denom > 0 && exposure/denom >= c.MaxPositionPct {
			return hold(fmt.Sprintf("position cap: exposure ratio %.4f >= %.4f", exposure/denom, c.MaxPositionPct))
		}
	}
	if (proposed.Action == domain.ActionBuy || proposed.Action == domain.ActionSell) && proposed.SizePct <= 0 {
		return hold("invalid size: sizePct <= 0")
	}

	out := proposed
	if c.MaxTradePct > 0 && out.SizePct > c.MaxTradePct {
		out.SizePct = c.MaxTradePct
	}
	if (out.Action == domain.ActionBuy || out.Action == domain.ActionSell) && out.SizePct <= 0 {
		return hold("invalid size: sizePct <= 0 after capping")
	}
	return out
}

func hold(reason string) domain.Decision {
	return domain.Decision{Action: domain.ActionHold, SizePct: 0, Confidence: 0, Reason: reason}
}
