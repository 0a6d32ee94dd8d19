package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moltiarena/core/internal/domain"
)

func TestClamp01(t *testing.T) {
	require.Equal(t, 0.0, clamp01(-0.5))
	require.Equal(t, 1.0, clamp01(1.5))
	require.Equal(t, 0.25, clamp01(0.25))
}

func TestGroupByAgent_SortsArenasAscending(t *testing.T) {
	contexts := []agentContext{
		{agent: domain.Agent{ID: 1}, arena: domain.Arena{ID: 5}},
		{agent: domain.Agent{ID: 1}, arena: domain.Arena{ID: 2}},
		{agent: domain.Agent{ID: 2}, arena: domain.Arena{ID: 1}},
	}
	grouped := groupByAgent(contexts)
	require.Len(t, grouped, 2)
	require.Equal(t, []int64{2, 5}, []int64{grouped[1][0].arena.ID, grouped[1][1].arena.ID})
	require.Len(t, grouped[2], 1)
}

// TestScoreAndRank_SoleParticipantRanksFirst mirrors spec scenario S6: a
// sole agent who traded this epoch gets a non-negative points score and
// rank 1.
func TestScoreAndRank_SoleParticipantRanksFirst(t *testing.T) {
	candidates := []leaderboardCandidate{
		{
			agentID: 1,
			portfolio: domain.Portfolio{
				CashMon: 9, TokenUnits: 0.5, MoltiLocked: 1, InitialCapital: 10,
			},
			volume:     1.0,
			tradeCount: 1,
		},
	}
	rows := scoreAndRank(candidates, 2.0)
	require.Len(t, rows, 1)
	require.Equal(t, 1, rows[0].Rank)
	require.GreaterOrEqual(t, rows[0].Points, 0.0)
	// sole participant normalizes volume/trades to 1 and pnl is computed,
	// not forced neutral, since the agent did trade this epoch.
	require.InDelta(t, 10.0, rows[0].Equity, 1e-9)
}

// TestScoreAndRank_InactiveAgentGetsNeutralPoints locks in the exact 0.175
// neutral-points constant spec.md §9 calls out as load-bearing for
// leaderboard stability on quiet days.
func TestScoreAndRank_InactiveAgentGetsNeutralPoints(t *testing.T) {
	candidates := []leaderboardCandidate{
		{agentID: 7, portfolio: domain.Portfolio{CashMon: 10, InitialCapital: 10}, volume: 0, tradeCount: 0},
	}
	rows := scoreAndRank(candidates, 1.0)
	require.Len(t, rows, 1)
	require.InDelta(t, 0.175, rows[0].Points, 1e-9)
}

// TestScoreAndRank_TieBrokenByAscendingAgentID checks the deterministic
// tie-break rule independent of insertion order.
func TestScoreAndRank_TieBrokenByAscendingAgentID(t *testing.T) {
	candidates := []leaderboardCandidate{
		{agentID: 9, portfolio: domain.Portfolio{CashMon: 10, InitialCapital: 10}, volume: 0, tradeCount: 0},
		{agentID: 3, portfolio: domain.Portfolio{CashMon: 10, InitialCapital: 10}, volume: 0, tradeCount: 0},
	}
	rows := scoreAndRank(candidates, 1.0)
	require.Len(t, rows, 2)
	require.Equal(t, int64(3), rows[0].AgentID)
	require.Equal(t, 1, rows[0].Rank)
	require.Equal(t, int64(9), rows[1].AgentID)
	require.Equal(t, 2, rows[1].Rank)
}

// TestScoreAndRank_RanksByDescendingPoints checks a higher-volume trader
// outranks a quiet one.
func TestScoreAndRank_RanksByDescendingPoints(t *testing.T) {
	candidates := []leaderboardCandidate{
		{agentID: 1, portfolio: domain.Portfolio{CashMon: 10, InitialCapital: 10}, volume: 0, tradeCount: 0},
		{agentID: 2, portfolio: domain.Portfolio{CashMon: 10, InitialCapital: 10}, volume: 100, tradeCount: 5},
	}
	rows := scoreAndRank(candidates, 1.0)
	require.Len(t, rows, 2)
	require.Equal(t, int64(2), rows[0].AgentID)
	require.Equal(t, 1, rows[0].Rank)
}
