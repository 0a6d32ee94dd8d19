package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moltiarena/core/internal/domain"
)

func TestBuildMultiPrompt(t *testing.T) {
	agent := testInput().Agent
	arenas := []ArenaInput{
		{Arena: domain.Arena{ID: 1}, Portfolio: domain.Portfolio{CashMon: 10, InitialCapital: 10}, Snapshot: domain.MarketSnapshot{Price: 1.0}},
		{Arena: domain.Arena{ID: 2}, Portfolio: domain.Portfolio{CashMon: 20, InitialCapital: 20}, Snapshot: domain.MarketSnapshot{Price: 2.0}},
	}

	system, user := BuildMultiPrompt(agent, 10, arenas)
	require.Contains(t, system, "exactly one decision per market")
	require.Contains(t, user, "market[0] (arena=1)")
	require.Contains(t, user, "market[1] (arena=2)")
}

func TestDecideTrades_EmptyArenas(t *testing.T) {
	c := &Client{}
	out := c.DecideTrades(nil, domain.Agent{}, 1, nil)
	require.Nil(t, out)
}
