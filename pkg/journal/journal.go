// Package journal persists one audit record per (agent, arena, tick)
// decision cycle to disk as JSON, grounded on the teacher's per-trader
// cycle journal but retargeted to the arena domain's decision unit.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CycleRecord captures one end-to-end (agent, arena, tick) decision cycle
// for audit and analysis: the proposed and guardrail-adjusted decisions,
// the market/portfolio inputs behind them, and the outcome.
type CycleRecord struct {
	Timestamp       time.Time      `json:"timestamp"`
	AgentID         int64          `json:"agent_id"`
	ArenaID         int64          `json:"arena_id"`
	Tick            int64          `json:"tick"`
	CycleNumber     int            `json:"cycle_number"`
	PromptDigest    string         `json:"prompt_digest,omitempty"`
	ProposedAction  string         `json:"proposed_action,omitempty"`
	ProposedSizePct float64        `json:"proposed_size_pct,omitempty"`
	FinalAction     string         `json:"final_action,omitempty"`
	FinalSizePct    float64        `json:"final_size_pct,omitempty"`
	FinalReason     string         `json:"final_reason,omitempty"`
	MarketSnapshot  map[string]any `json:"market_snapshot,omitempty"`
	PortfolioBefore map[string]any `json:"portfolio_before,omitempty"`
	TxHash          string         `json:"tx_hash,omitempty"`
	Success         bool           `json:"success"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// Writer persists cycle records to a directory as one JSON file per cycle.
type Writer struct {
	dir   string
	seq   int
	nowFn func() time.Time
}

// NewWriter constructs a journal writer rooted at dir, creating it if
// necessary.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "journal"
	}
	_ = os.MkdirAll(dir, 0o755)
	return &Writer{dir: dir, nowFn: time.Now}
}

// WriteCycle writes a cycle record to a timestamped JSON file and returns
// its path.
func (w *Writer) WriteCycle(rec *CycleRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("journal: nil record")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = w.nowFn()
	}
	w.seq++
	rec.CycleNumber = w.seq
	name := fmt.Sprintf("cycle_%s_agent%d_arena%d_tick%d.json",
		rec.Timestamp.UTC().Format("20060102_150405"), rec.AgentID, rec.ArenaID, rec.Tick)
	path := filepath.Join(w.dir, name)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
