// Package cli echoes the loaded configuration at startup, adapted from
// the teacher's internal/cli/logging.go onto the arena runtime's
// Chain/Bundler/Ingest/Engine/Epoch sections.
package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/moltiarena/core/internal/config"
)

// ConfigSummaryLines returns human readable lines describing the loaded
// app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Postgres: %s", presence(cfg.Postgres.DataSource != "")),
		fmt.Sprintf("TTL (short/medium/long): %ds / %ds / %ds", cfg.TTL.Short, cfg.TTL.Medium, cfg.TTL.Long),
		fmt.Sprintf("Chain: rpc=%s chainID=%d arena=%s", presence(cfg.Chain.RPCURL != ""), cfg.Chain.ChainID, presence(cfg.Chain.ArenaAddress != "")),
		fmt.Sprintf("Bundler: %s operatorKeyEnv=%s", presence(cfg.Bundler.URL != ""), cfg.Bundler.OperatorKeyEnv),
		fmt.Sprintf("Ingest: %s", presence(strings.TrimSpace(cfg.Ingest.URL) != "")),
		fmt.Sprintf("Engine: tickInterval=%s concurrency=%d", cfg.Engine.TickInterval, cfg.Engine.Concurrency),
		fmt.Sprintf("Epoch: duration=%s claimWindow=%s", cfg.Epoch.Duration, cfg.Epoch.ClaimWindow),
		sectionLine("Planner config", cfg.Planner.File, cfg.Planner.Value != nil),
	}

	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func sectionLine(name, file string, hydrated bool) string {
	switch {
	case strings.TrimSpace(file) != "":
		return fmt.Sprintf("%s: %s", name, file)
	case hydrated:
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: not configured", name)
	}
}
