// Package domain holds the value types shared by every core component:
// agents, arenas, epochs, portfolios, trades, decisions and leaderboard rows.
package domain

import (
	"strings"
	"time"
)

// Goal is an agent's stated optimization objective.
type Goal string

const (
	GoalMaximizePnL    Goal = "maximize_pnl"
	GoalRiskAdjusted   Goal = "risk_adjusted"
	GoalMinDrawdown    Goal = "min_drawdown"
)

// Style is an agent's risk appetite.
type Style string

const (
	StyleConservative Style = "conservative"
	StyleModerate     Style = "moderate"
	StyleAggressive   Style = "aggressive"
)

// Action is a trading action, shared by model decisions, guardrails output,
// and the on-chain executeTrade enum (BUY=0, SELL=1, HOLD=2).
type Action int

const (
	ActionBuy Action = iota
	ActionSell
	ActionHold
)

func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	case ActionHold:
		return "HOLD"
	default:
		return "UNKNOWN"
	}
}

// ParseAction maps a case-insensitive action string onto the Action enum.
// Unknown values default to HOLD so a malformed planner response degrades
// safely rather than panics.
func ParseAction(s string) Action {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return ActionBuy
	case "SELL":
		return ActionSell
	default:
		return ActionHold
	}
}

// Constraints bound an agent's per-trade and per-window behavior.
type Constraints struct {
	MaxTradePct      float64
	MaxPositionPct   float64
	CooldownTicks    int
	MaxTradesPerWindow int
}

// Filters gate whether the planner is even invoked for a quiet market.
type Filters struct {
	MinEvents1h     int
	MinVolumeMon1h  float64
}

// Profile is an agent's validated strategy configuration. It arrives as
// untyped JSON from storage and must be validated into this strict shape
// before use; invalid profiles skip the agent for the tick (spec.md §9).
type Profile struct {
	Goal        Goal
	Style       Style
	Constraints Constraints
	Filters     Filters
	CustomRules string // sanitized, <= 500 chars
}

// EffectiveFiltersDisabled reports whether both threshold filters are zero,
// which signals to the planner that liquidity gating is off for this agent.
func (f Filters) EffectiveFiltersDisabled() bool {
	return f.MinEvents1h == 0 && f.MinVolumeMon1h == 0
}

// Agent is a trading persona. Identity is dual: a stable off-chain integer
// id used for DB joins, and an on-chain id assigned once indexed.
type Agent struct {
	ID               int64
	OnChainID        *int64
	OwnerAddress     string
	Name             string
	SmartAccount     string
	EncryptedSigner  string
	ProfileJSON      string // raw storage form; ParseProfile validates it at the boundary
	Profile          Profile
	ProfileHash      string
	CreatedAt        time.Time
}

// Arena is a competitive context bound to one token address.
type Arena struct {
	ID           int64
	OnChainID    *int64
	TokenAddress string // lowercased, unique
	DisplayName  string
	CreatedAt    time.Time
}

// ArenaRegistration associates an Agent with an Arena. At most one active
// registration exists per (Agent, Arena) pair.
type ArenaRegistration struct {
	ID       int64
	AgentID  int64
	ArenaID  int64
	IsActive bool
}

// EpochStatus is an epoch's lifecycle state.
type EpochStatus string

const (
	EpochActive EpochStatus = "active"
	EpochEnded  EpochStatus = "ended"
)

// Epoch is a bounded trading window for one arena, identified by its
// on-chain epoch id.
type Epoch struct {
	ID                 int64
	ArenaID            int64
	OnChainEpochID      int64
	StartAt            time.Time
	EndAt              time.Time
	Status             EpochStatus
	RewardsDistributedAt *time.Time
	RewardsDistributedTx  string
	RewardsSweptAt     *time.Time
}

// EpochRegistration marks that an agent paid the renewal fee for an epoch.
// An agent may trade in the epoch only if this row exists.
type EpochRegistration struct {
	ID                  int64
	EpochID             int64
	AgentID             int64
	PendingRewardWei    string // decimal string, 18-decimal wei
	Claimed             bool
	ClaimedAmountWei    string
}

// Portfolio is per (Agent, Arena) bookkeeping state. Mutated only after a
// successful on-chain trade and reconciled from an authoritative on-chain
// portfolio read immediately afterward.
type Portfolio struct {
	AgentID          int64
	ArenaID          int64
	CashMon          float64 // MOLTI wallet balance, informational mirror
	TokenUnits       float64
	MoltiLocked      float64 // stake currently inside the arena contract
	AvgEntryPrice    *float64
	InitialCapital   float64
	TradesThisWindow int
	LastTradeTick    *int64
}

// Equity is cash plus the mark value of held tokens plus locked stake.
func (p Portfolio) Equity(markPrice float64) float64 {
	return p.CashMon + p.TokenUnits*markPrice + p.MoltiLocked
}

// PnLPct is percentage return of current equity vs. initial capital.
func (p Portfolio) PnLPct(markPrice float64) float64 {
	if p.InitialCapital <= 0 {
		return 0
	}
	return (p.Equity(markPrice) - p.InitialCapital) / p.InitialCapital * 100
}

// Trade is one executed trade row. Trade rows are only ever appended on a
// successful paper-ledger projection, so transaction status lives on
// AgentDecision, not Trade.
type Trade struct {
	ID                  int64
	AgentID             int64
	ArenaID             int64
	Tick                int64
	Action              Action
	SizePct             float64
	ExecutedPrice       float64
	TradeValueMon       float64
	AvgEntryPriceBefore *float64
	CashAfter           float64
	TokenAfter          float64
	Reason              string
	TxHash              string
	CreatedAt           time.Time
}

// DecisionStatus is the lifecycle state of an AgentDecision row.
type DecisionStatus string

const (
	DecisionPending       DecisionStatus = "pending"
	DecisionSuccess       DecisionStatus = "success"
	DecisionFailed        DecisionStatus = "failed"
	DecisionSkippedNoGas  DecisionStatus = "skipped_no_gas"
)

// AgentDecision is the append-only per-tick audit row for (agent, arena).
type AgentDecision struct {
	ID                int64
	AgentID           int64
	ArenaID           int64
	Tick              int64
	Action            Action
	SizePct           float64
	Confidence        float64
	Reason            string
	Price             float64
	PnLPctAtDecision  float64
	Status            DecisionStatus
	TxHash            string
	CreatedAt         time.Time
}

// LeaderboardRow is one agent's ranked standing within a LeaderboardSnapshot.
type LeaderboardRow struct {
	AgentID     int64
	Equity      float64
	PnLPct      float64
	CashMon     float64
	TokenUnits  float64
	MoltiLocked float64
	Volume      float64
	TradeCount  int
	Points      float64
	Rank        int
}

// LeaderboardSnapshot is a ranked board for one arena, tick, and epoch.
type LeaderboardSnapshot struct {
	ID        int64
	ArenaID   int64
	EpochID   int64
	Tick      int64
	Rankings  []LeaderboardRow
	CreatedAt time.Time
}

// MomentumLabel classifies short-term buy/sell pressure.
type MomentumLabel string

const (
	MomentumBuy     MomentumLabel = "B"
	MomentumSell    MomentumLabel = "S"
	MomentumNeutral MomentumLabel = "N"
)

// VolumeTrendLabel classifies tick-over-tick volume change.
type VolumeTrendLabel string

const (
	VolumeTrendIncreasing VolumeTrendLabel = "I"
	VolumeTrendDecreasing VolumeTrendLabel = "D"
	VolumeTrendStable     VolumeTrendLabel = "S"
)

// PriceVolatilityLabel classifies realized 5-minute volatility.
type PriceVolatilityLabel string

const (
	VolatilityHigh   PriceVolatilityLabel = "H"
	VolatilityMedium PriceVolatilityLabel = "M"
	VolatilityLow    PriceVolatilityLabel = "L"
)

// CompactEvent is a minimal recent-event tuple retained on a snapshot.
type CompactEvent struct {
	Type   string
	Price  float64
	Volume float64
}

// MarketSnapshot is the per-tick, per-token immutable record of derived
// market features consumed by the planner.
type MarketSnapshot struct {
	TokenAddress     string
	Tick             int64
	Price            float64
	Ret1m            float64
	Ret5m            float64
	Vol5m            float64
	Events1h         int64
	Volume1h         float64
	PriceTail        []float64
	BuyCount         int64
	SellCount        int64
	SwapCount        int64
	BuySellRatio     float64
	RecentEvents     []CompactEvent
	UniqueTraders    int64
	AvgVolumePerTrader float64
	LargestTrade     float64
	WhaleActivity    bool
	Momentum         MomentumLabel
	VolumeTrend      VolumeTrendLabel
	PriceVolatility  PriceVolatilityLabel
	ComputedAt       time.Time
}

// Decision is a proposed or finalized trading action for one (agent, arena)
// at one tick, shared between the planner's raw output and guardrails'
// overridden output.
type Decision struct {
	Action     Action
	SizePct    float64
	Confidence float64
	Reason     string
}
