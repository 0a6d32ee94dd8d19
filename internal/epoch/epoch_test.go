package epoch

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestWinnerSplit_LinearWeightedWithRemainder mirrors spec scenario S5:
// pool=1000 wei over 10 ranked agents yields [501, 333, 166].
func TestWinnerSplit_LinearWeightedWithRemainder(t *testing.T) {
	ranked := make([]int64, 10)
	for i := range ranked {
		ranked[i] = int64(i + 1)
	}
	splits := winnerSplit(big.NewInt(1000), ranked)
	require.Len(t, splits, 3)
	require.Equal(t, int64(501), splits[0].AmountWei.Int64())
	require.Equal(t, int64(333), splits[1].AmountWei.Int64())
	require.Equal(t, int64(166), splits[2].AmountWei.Int64())

	sum := big.NewInt(0)
	for _, s := range splits {
		sum.Add(sum, s.AmountWei)
	}
	require.Equal(t, int64(1000), sum.Int64())
}

func TestWinnerSplit_PreservesRankOrder(t *testing.T) {
	ranked := []int64{7, 3, 9}
	splits := winnerSplit(big.NewInt(300), ranked)
	require.Len(t, splits, 1)
	require.Equal(t, int64(7), splits[0].AgentID)
}

func TestWinnerSplit_ZeroPoolYieldsNoSplits(t *testing.T) {
	require.Empty(t, winnerSplit(big.NewInt(0), []int64{1, 2, 3}))
}

func TestWinnerSplit_EmptyRankingsYieldsNoSplits(t *testing.T) {
	require.Empty(t, winnerSplit(big.NewInt(1000), nil))
}

func TestWinnerSplit_SingleAgentTakesWholePool(t *testing.T) {
	splits := winnerSplit(big.NewInt(1000), []int64{1})
	require.Len(t, splits, 1)
	require.Equal(t, int64(1000), splits[0].AmountWei.Int64())
}

func TestController_DemoModeBelowADay(t *testing.T) {
	c := New(Deps{EpochDuration: 10 * time.Minute})
	require.True(t, c.demoMode())
}

func TestController_DailyModeAtOrAboveADay(t *testing.T) {
	c := New(Deps{EpochDuration: 24 * time.Hour})
	require.False(t, c.demoMode())
}

func TestController_NextEpochWindow_DemoModeClockAnchored(t *testing.T) {
	c := New(Deps{EpochDuration: 15 * time.Minute})
	now := time.Date(2026, 3, 5, 13, 7, 0, 0, time.UTC)
	start, end := c.nextEpochWindow(now)
	require.Equal(t, now.Unix(), start)
	require.Equal(t, now.Add(15*time.Minute).Unix(), end)
}

func TestController_NextEpochWindow_DailyModeAnchoredToMidnightUTC(t *testing.T) {
	c := New(Deps{EpochDuration: 24 * time.Hour})
	now := time.Date(2026, 3, 5, 13, 7, 0, 0, time.UTC)
	start, end := c.nextEpochWindow(now)
	require.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC).Unix(), start)
	require.Equal(t, time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC).Unix(), end)
}

func TestController_ShouldAct_DailyModeOutsideActionWindow(t *testing.T) {
	c := New(Deps{EpochDuration: 24 * time.Hour})
	require.False(t, c.shouldAct(time.Date(2026, 3, 5, 0, 5, 0, 0, time.UTC)))
	require.False(t, c.shouldAct(time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)))
}

func TestController_ShouldAct_DailyModeRunsOnceWithinWindow(t *testing.T) {
	c := New(Deps{EpochDuration: 24 * time.Hour})
	moment := time.Date(2026, 3, 5, 0, 1, 0, 0, time.UTC)
	require.True(t, c.shouldAct(moment))
	c.lastDailyRun = moment.Format("2006-01-02")
	require.False(t, c.shouldAct(moment))
}

func TestController_ShouldAct_DemoModeAlwaysActs(t *testing.T) {
	c := New(Deps{EpochDuration: 5 * time.Minute})
	require.True(t, c.shouldAct(time.Date(2026, 3, 5, 13, 0, 0, 0, time.UTC)))
	require.True(t, c.shouldAct(time.Date(2026, 3, 5, 13, 1, 0, 0, time.UTC)))
}
