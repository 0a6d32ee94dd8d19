package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const validProfileJSON = `{
	"goal": "maximize_pnl",
	"style": "moderate",
	"constraints": {"maxTradePct": 0.2, "maxPositionPct": 0.5, "cooldownTicks": 5, "maxTradesPerWindow": 10},
	"filters": {"minEvents1h": 100, "minVolumeMon1h": 10000},
	"customRules": "prefer momentum entries"
}`

func TestParseProfile_Valid(t *testing.T) {
	p, err := ParseProfile(validProfileJSON)
	require.NoError(t, err)
	require.Equal(t, GoalMaximizePnL, p.Goal)
	require.Equal(t, StyleModerate, p.Style)
	require.Equal(t, 0.2, p.Constraints.MaxTradePct)
	require.Equal(t, 5, p.Constraints.CooldownTicks)
	require.Equal(t, 100, p.Filters.MinEvents1h)
}

func TestParseProfile_UnknownGoal(t *testing.T) {
	_, err := ParseProfile(`{"goal":"moon","style":"moderate","constraints":{"maxTradePct":0.1,"maxPositionPct":0.1}}`)
	require.Error(t, err)
}

func TestParseProfile_UnknownStyle(t *testing.T) {
	_, err := ParseProfile(`{"goal":"maximize_pnl","style":"yolo","constraints":{"maxTradePct":0.1,"maxPositionPct":0.1}}`)
	require.Error(t, err)
}

func TestParseProfile_OutOfRangeConstraint(t *testing.T) {
	_, err := ParseProfile(`{"goal":"maximize_pnl","style":"moderate","constraints":{"maxTradePct":1.5,"maxPositionPct":0.1}}`)
	require.Error(t, err)
}

func TestParseProfile_NegativeCooldown(t *testing.T) {
	_, err := ParseProfile(`{"goal":"maximize_pnl","style":"moderate","constraints":{"maxTradePct":0.1,"maxPositionPct":0.1,"cooldownTicks":-1}}`)
	require.Error(t, err)
}

func TestParseProfile_MalformedJSON(t *testing.T) {
	_, err := ParseProfile(`not json`)
	require.Error(t, err)
}

func TestParseProfile_TruncatesLongCustomRules(t *testing.T) {
	raw := `{"goal":"maximize_pnl","style":"moderate","constraints":{"maxTradePct":0.1,"maxPositionPct":0.1},"customRules":"` +
		strings.Repeat("a", 600) + `"}`
	p, err := ParseProfile(raw)
	require.NoError(t, err)
	require.Len(t, p.CustomRules, maxCustomRulesLen)
}
