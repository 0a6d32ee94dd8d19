package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/moltiarena/core/internal/domain"
)

// Input bundles everything the Model Gateway needs to decide one agent's
// trade for one tick (spec.md §4.7).
type Input struct {
	Agent     domain.Agent
	Arena     domain.Arena
	Portfolio domain.Portfolio
	Snapshot  domain.MarketSnapshot
	Tick      int64
}

// BuildPrompt renders the system and user messages sent to the model. The
// user message packs agent profile, portfolio state, and the market
// snapshot into a compact, stable layout so that an unchanged tick
// re-renders byte-identically and yields the same DigestString.
func BuildPrompt(in Input) (system, user string) {
	system = strings.Join([]string{
		"You are the trading planner for one autonomous agent inside a single arena.",
		"Decide BUY, SELL, or HOLD for this tick only, sized as a fraction of the agent's available balance.",
		"Respect the stated goal, style, and custom rules. When signals are weak or conflicting, prefer HOLD.",
		"Respond with the requested JSON object only.",
	}, "\n")

	user = fmt.Sprintf(
		"agent:\n%s\n\nportfolio:\n%s\n\nmarket:\n%s\n",
		formatAgent(in.Agent, in.Tick),
		formatPortfolio(in.Portfolio, in.Snapshot.Price),
		formatSnapshot(in.Snapshot),
	)
	return system, user
}

func formatAgent(a domain.Agent, tick int64) string {
	rules := a.Profile.CustomRules
	if rules == "" {
		rules = "(none)"
	}
	return fmt.Sprintf(
		"goal=%s style=%s tick=%d max_trade_pct=%.4f max_position_pct=%.4f cooldown_ticks=%d max_trades_per_window=%d custom_rules=%q",
		a.Profile.Goal, a.Profile.Style, tick,
		a.Profile.Constraints.MaxTradePct, a.Profile.Constraints.MaxPositionPct,
		a.Profile.Constraints.CooldownTicks, a.Profile.Constraints.MaxTradesPerWindow,
		rules,
	)
}

func formatPortfolio(p domain.Portfolio, markPrice float64) string {
	avgEntry := "none"
	if p.AvgEntryPrice != nil {
		avgEntry = fmt.Sprintf("%.8f", *p.AvgEntryPrice)
	}
	return fmt.Sprintf(
		"cash_mon=%.4f token_units=%.8f avg_entry_price=%s equity=%.4f pnl_pct=%.2f trades_this_window=%d",
		p.CashMon, p.TokenUnits, avgEntry, p.Equity(markPrice), p.PnLPct(markPrice), p.TradesThisWindow,
	)
}

// snapshotView is the compact JSON payload describing a MarketSnapshot,
// trimmed to the fields the planner actually reasons over (mirrors the
// teacher's formatMarketJSON "lite" projection for prompt-size discipline).
type snapshotView struct {
	Price           float64 `json:"price"`
	Ret1m           float64 `json:"ret_1m"`
	Ret5m           float64 `json:"ret_5m"`
	Vol5m           float64 `json:"vol_5m"`
	Events1h        int64   `json:"events_1h"`
	Volume1h        float64 `json:"volume_1h"`
	BuySellRatio    float64 `json:"buy_sell_ratio"`
	UniqueTraders   int64   `json:"unique_traders"`
	WhaleActivity   bool    `json:"whale_activity"`
	Momentum        string  `json:"momentum"`
	VolumeTrend     string  `json:"volume_trend"`
	PriceVolatility string  `json:"price_volatility"`
}

func formatSnapshot(s domain.MarketSnapshot) string {
	view := snapshotView{
		Price:           s.Price,
		Ret1m:           s.Ret1m,
		Ret5m:           s.Ret5m,
		Vol5m:           s.Vol5m,
		Events1h:        s.Events1h,
		Volume1h:        s.Volume1h,
		BuySellRatio:    s.BuySellRatio,
		UniqueTraders:   s.UniqueTraders,
		WhaleActivity:   s.WhaleActivity,
		Momentum:        string(s.Momentum),
		VolumeTrend:     string(s.VolumeTrend),
		PriceVolatility: string(s.PriceVolatility),
	}
	b, _ := json.Marshal(view)
	return string(b)
}
