package model

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"github.com/moltiarena/core/internal/domain"
)

// TradesModel persists append-only domain.Trade rows, unique by
// (agent, arena, tick) per spec.md §6.
type TradesModel struct {
	conn sqlx.SqlConn
}

// NewTradesModel constructs a TradesModel.
func NewTradesModel(conn sqlx.SqlConn) *TradesModel {
	return &TradesModel{conn: conn}
}

// InsertTradeInTx appends a trade row within an existing transaction session.
// ON CONFLICT DO NOTHING enforces at-most-once per (agent, arena, tick),
// matching the idempotent-recovery invariant in spec.md §1.
func InsertTradeInTx(ctx context.Context, session sqlx.Session, t domain.Trade) error {
	const query = `
INSERT INTO public.trades (agent_id, arena_id, tick, action, size_pct, executed_price,
    trade_value_mon, avg_entry_price_before, cash_after, token_after, reason, tx_hash, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
ON CONFLICT (agent_id, arena_id, tick) DO NOTHING`

	_, err := session.ExecCtx(ctx, query,
		t.AgentID, t.ArenaID, t.Tick, t.Action.String(), t.SizePct, t.ExecutedPrice,
		t.TradeValueMon, nullableFloat(t.AvgEntryPriceBefore), t.CashAfter, t.TokenAfter, t.Reason, t.TxHash)
	if err != nil {
		return fmt.Errorf("trades.InsertInTx: %w", err)
	}
	return nil
}

// VolumeAndCountByEpoch sums tradeValueMon and counts trades per agent for
// an arena within an epoch's time window, feeding the leaderboard's volume
// and trade-count normalization (spec.md §4.5 step 8).
func (m *TradesModel) VolumeAndCountByEpoch(ctx context.Context, arenaID int64, startAt, endAt sql.NullTime) (map[int64]AgentVolume, error) {
	const query = `
SELECT agent_id, COALESCE(SUM(trade_value_mon), 0) AS volume, COUNT(*) AS trades
FROM public.trades
WHERE arena_id = $1 AND created_at >= $2 AND created_at < $3
GROUP BY agent_id`

	var rows []struct {
		AgentId int64
		Volume  float64
		Trades  int64
	}
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, arenaID, startAt, endAt); err != nil {
		return nil, fmt.Errorf("trades.VolumeAndCountByEpoch: %w", err)
	}
	out := make(map[int64]AgentVolume, len(rows))
	for _, r := range rows {
		out[r.AgentId] = AgentVolume{Volume: r.Volume, TradeCount: int(r.Trades)}
	}
	return out, nil
}

// AgentVolume is the per-agent volume/trade-count rollup for one epoch.
type AgentVolume struct {
	Volume     float64
	TradeCount int
}

// DecisionsModel persists domain.AgentDecision rows.
type DecisionsModel struct {
	conn sqlx.SqlConn
}

// NewDecisionsModel constructs a DecisionsModel.
func NewDecisionsModel(conn sqlx.SqlConn) *DecisionsModel {
	return &DecisionsModel{conn: conn}
}

// InsertPending inserts the initial AgentDecision row for a tick and
// returns its id, which downstream steps finalize (spec.md §4.5 step 6c).
func (m *DecisionsModel) InsertPending(ctx context.Context, d domain.AgentDecision) (int64, error) {
	const query = `
INSERT INTO public.agent_decisions (agent_id, arena_id, tick, action, size_pct, confidence,
    reason, price, pnl_pct_at_decision, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
RETURNING id`

	var id int64
	err := m.conn.QueryRowCtx(ctx, &id, query,
		d.AgentID, d.ArenaID, d.Tick, d.Action.String(), d.SizePct, d.Confidence,
		d.Reason, d.Price, d.PnLPctAtDecision, string(d.Status))
	if err != nil {
		return 0, fmt.Errorf("agent_decisions.InsertPending: %w", err)
	}
	return id, nil
}

// FinalizeDecisionInTx updates a decision row's terminal status and tx hash within
// the same transaction as the portfolio/trade writes.
func FinalizeDecisionInTx(ctx context.Context, session sqlx.Session, id int64, status domain.DecisionStatus, txHash string) error {
	const query = `UPDATE public.agent_decisions SET status = $2, tx_hash = $3 WHERE id = $1`
	_, err := session.ExecCtx(ctx, query, id, string(status), txHash)
	if err != nil {
		return fmt.Errorf("agent_decisions.FinalizeInTx: %w", err)
	}
	return nil
}

// Finalize updates a decision's status outside of any larger transaction
// (used for skipped_no_gas / failed-before-tx-build paths).
func (m *DecisionsModel) Finalize(ctx context.Context, id int64, status domain.DecisionStatus, txHash string) error {
	const query = `UPDATE public.agent_decisions SET status = $2, tx_hash = $3 WHERE id = $1`
	_, err := m.conn.ExecCtx(ctx, query, id, string(status), txHash)
	if err != nil {
		return fmt.Errorf("agent_decisions.Finalize: %w", err)
	}
	return nil
}
