package model

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"github.com/moltiarena/core/internal/domain"
)

// PortfoliosModel persists domain.Portfolio rows, keyed by (agent, arena).
type PortfoliosModel struct {
	conn sqlx.SqlConn
}

// NewPortfoliosModel constructs a PortfoliosModel.
func NewPortfoliosModel(conn sqlx.SqlConn) *PortfoliosModel {
	return &PortfoliosModel{conn: conn}
}

// Find loads one portfolio row, or nil if it doesn't exist yet.
func (m *PortfoliosModel) Find(ctx context.Context, agentID, arenaID int64) (*domain.Portfolio, error) {
	const query = `
SELECT agent_id, arena_id, cash_mon, token_units, molti_locked, avg_entry_price,
       initial_capital, trades_this_window, last_trade_tick
FROM public.portfolios WHERE agent_id = $1 AND arena_id = $2`

	var row portfolioRow
	err := m.conn.QueryRowCtx(ctx, &row, query, agentID, arenaID)
	if err == sqlx.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("portfolios.Find: %w", err)
	}
	return row.toDomain(), nil
}

// UpsertPortfolioInTx writes the full portfolio state within an existing session, as
// the last step of the Tick Engine's atomic (portfolio, trade, decision)
// commit (spec.md §4.5 step 6h).
func UpsertPortfolioInTx(ctx context.Context, session sqlx.Session, p domain.Portfolio) error {
	const query = `
INSERT INTO public.portfolios (agent_id, arena_id, cash_mon, token_units, molti_locked,
    avg_entry_price, initial_capital, trades_this_window, last_trade_tick)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (agent_id, arena_id) DO UPDATE SET
    cash_mon = EXCLUDED.cash_mon,
    token_units = EXCLUDED.token_units,
    molti_locked = EXCLUDED.molti_locked,
    avg_entry_price = EXCLUDED.avg_entry_price,
    trades_this_window = EXCLUDED.trades_this_window,
    last_trade_tick = EXCLUDED.last_trade_tick`

	_, err := session.ExecCtx(ctx, query,
		p.AgentID, p.ArenaID, p.CashMon, p.TokenUnits, p.MoltiLocked,
		nullableFloat(p.AvgEntryPrice), p.InitialCapital, p.TradesThisWindow, nullableInt(p.LastTradeTick))
	if err != nil {
		return fmt.Errorf("portfolios.UpsertInTx: %w", err)
	}
	return nil
}

type portfolioRow struct {
	AgentId          int64
	ArenaId          int64
	CashMon          float64
	TokenUnits       float64
	MoltiLocked      float64
	AvgEntryPrice    sql.NullFloat64
	InitialCapital   float64
	TradesThisWindow int
	LastTradeTick    sql.NullInt64
}

func (r portfolioRow) toDomain() *domain.Portfolio {
	out := &domain.Portfolio{
		AgentID:          r.AgentId,
		ArenaID:          r.ArenaId,
		CashMon:          r.CashMon,
		TokenUnits:       r.TokenUnits,
		MoltiLocked:      r.MoltiLocked,
		InitialCapital:   r.InitialCapital,
		TradesThisWindow: r.TradesThisWindow,
	}
	if r.AvgEntryPrice.Valid {
		v := r.AvgEntryPrice.Float64
		out.AvgEntryPrice = &v
	}
	if r.LastTradeTick.Valid {
		v := r.LastTradeTick.Int64
		out.LastTradeTick = &v
	}
	return out
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullableInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
