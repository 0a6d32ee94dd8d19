package domain

import (
	"encoding/json"
	"fmt"
)

// rawProfile is the untyped shape a Profile arrives as from storage
// (agents.profile_json), per spec.md §9: "Agent profile JSON arrives
// untyped from storage; it is validated into a strict value with
// enumerated goal/style and bounded numeric ranges before use."
type rawProfile struct {
	Goal        string  `json:"goal"`
	Style       string  `json:"style"`
	Constraints struct {
		MaxTradePct        float64 `json:"maxTradePct"`
		MaxPositionPct     float64 `json:"maxPositionPct"`
		CooldownTicks      int     `json:"cooldownTicks"`
		MaxTradesPerWindow int     `json:"maxTradesPerWindow"`
	} `json:"constraints"`
	Filters struct {
		MinEvents1h    int     `json:"minEvents1h"`
		MinVolumeMon1h float64 `json:"minVolumeMon1h"`
	} `json:"filters"`
	CustomRules string `json:"customRules"`
}

const maxCustomRulesLen = 500

// ParseProfile validates raw JSON into a strict Profile, rejecting unknown
// goal/style values and out-of-range constraints. A failed validation skips
// the agent for the tick rather than panicking or defaulting silently
// (spec.md §4.5 step 3, §9).
func ParseProfile(raw string) (Profile, error) {
	var rp rawProfile
	if err := json.Unmarshal([]byte(raw), &rp); err != nil {
		return Profile{}, fmt.Errorf("domain: parse profile json: %w", err)
	}

	goal := Goal(rp.Goal)
	switch goal {
	case GoalMaximizePnL, GoalRiskAdjusted, GoalMinDrawdown:
	default:
		return Profile{}, fmt.Errorf("domain: unknown profile goal %q", rp.Goal)
	}

	style := Style(rp.Style)
	switch style {
	case StyleConservative, StyleModerate, StyleAggressive:
	default:
		return Profile{}, fmt.Errorf("domain: unknown profile style %q", rp.Style)
	}

	c := rp.Constraints
	if c.MaxTradePct <= 0 || c.MaxTradePct > 1 {
		return Profile{}, fmt.Errorf("domain: maxTradePct out of range (0,1]: %v", c.MaxTradePct)
	}
	if c.MaxPositionPct <= 0 || c.MaxPositionPct > 1 {
		return Profile{}, fmt.Errorf("domain: maxPositionPct out of range (0,1]: %v", c.MaxPositionPct)
	}
	if c.CooldownTicks < 0 {
		return Profile{}, fmt.Errorf("domain: cooldownTicks cannot be negative: %v", c.CooldownTicks)
	}
	if c.MaxTradesPerWindow < 0 {
		return Profile{}, fmt.Errorf("domain: maxTradesPerWindow cannot be negative: %v", c.MaxTradesPerWindow)
	}

	f := rp.Filters
	if f.MinEvents1h < 0 {
		return Profile{}, fmt.Errorf("domain: minEvents1h cannot be negative: %v", f.MinEvents1h)
	}
	if f.MinVolumeMon1h < 0 {
		return Profile{}, fmt.Errorf("domain: minVolumeMon1h cannot be negative: %v", f.MinVolumeMon1h)
	}

	customRules := rp.CustomRules
	if len(customRules) > maxCustomRulesLen {
		customRules = customRules[:maxCustomRulesLen]
	}

	return Profile{
		Goal:  goal,
		Style: style,
		Constraints: Constraints{
			MaxTradePct:        c.MaxTradePct,
			MaxPositionPct:     c.MaxPositionPct,
			CooldownTicks:      c.CooldownTicks,
			MaxTradesPerWindow: c.MaxTradesPerWindow,
		},
		Filters: Filters{
			MinEvents1h:    f.MinEvents1h,
			MinVolumeMon1h: f.MinVolumeMon1h,
		},
		CustomRules: customRules,
	}, nil
}
