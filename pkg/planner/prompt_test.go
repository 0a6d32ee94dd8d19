package planner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moltiarena/core/internal/domain"
)

func testInput() Input {
	avgEntry := 1.5
	return Input{
		Agent: domain.Agent{
			ID: 7,
			Profile: domain.Profile{
				Goal:  domain.GoalRiskAdjusted,
				Style: domain.StyleModerate,
				Constraints: domain.Constraints{
					MaxTradePct:        0.2,
					MaxPositionPct:     0.5,
					CooldownTicks:      3,
					MaxTradesPerWindow: 5,
				},
				CustomRules: "never buy into a whale dump",
			},
		},
		Arena: domain.Arena{ID: 2, TokenAddress: "0xabc"},
		Portfolio: domain.Portfolio{
			CashMon:        100,
			TokenUnits:     10,
			AvgEntryPrice:  &avgEntry,
			InitialCapital: 200,
		},
		Snapshot: domain.MarketSnapshot{
			Price:    2.0,
			Momentum: domain.MomentumBuy,
		},
		Tick: 42,
	}
}

func TestBuildPrompt(t *testing.T) {
	system, user := BuildPrompt(testInput())

	require.Contains(t, system, "BUY, SELL, or HOLD")
	require.Contains(t, user, "tick=42")
	require.Contains(t, user, "risk_adjusted")
	require.Contains(t, user, "moderate")
	require.Contains(t, user, "never buy into a whale dump")
	require.Contains(t, user, `"momentum":"B"`)
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	in := testInput()
	_, user1 := BuildPrompt(in)
	_, user2 := BuildPrompt(in)
	require.Equal(t, user1, user2)
	require.Equal(t, DigestString(user1), DigestString(user2))
}

func TestFormatPortfolio_NoAvgEntry(t *testing.T) {
	out := formatPortfolio(domain.Portfolio{CashMon: 50, InitialCapital: 50}, 1.0)
	require.True(t, strings.Contains(out, "avg_entry_price=none"))
}
