package model

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"github.com/moltiarena/core/internal/domain"
)

// ArenasModel persists domain.Arena rows.
type ArenasModel struct {
	conn sqlx.SqlConn
}

// NewArenasModel constructs an ArenasModel.
func NewArenasModel(conn sqlx.SqlConn) *ArenasModel {
	return &ArenasModel{conn: conn}
}

// WithActiveRegistration returns arenas that have at least one active
// registration, the Tick Engine's workset (spec.md §4.5 step 1).
func (m *ArenasModel) WithActiveRegistration(ctx context.Context) ([]domain.Arena, error) {
	const query = `
SELECT DISTINCT a.id, a.on_chain_id, a.token_address, a.display_name, a.created_at
FROM public.arenas a
JOIN public.arena_registrations r ON r.arena_id = a.id
WHERE r.is_active = true`

	var rows []arenaRow
	if err := m.conn.QueryRowsCtx(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("arenas.WithActiveRegistration: %w", err)
	}
	out := make([]domain.Arena, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.toDomain())
	}
	return out, nil
}

// FindByToken loads an arena by its (lowercased) token address.
func (m *ArenasModel) FindByToken(ctx context.Context, tokenAddress string) (*domain.Arena, error) {
	const query = `
SELECT id, on_chain_id, token_address, display_name, created_at
FROM public.arenas WHERE token_address = $1`

	var row arenaRow
	err := m.conn.QueryRowCtx(ctx, &row, query, strings.ToLower(strings.TrimSpace(tokenAddress)))
	if err == sqlx.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("arenas.FindByToken: %w", err)
	}
	return row.toDomain(), nil
}

type arenaRow struct {
	Id           int64
	OnChainId    sql.NullInt64
	TokenAddress string
	DisplayName  sql.NullString
	CreatedAt    sql.NullTime
}

func (r arenaRow) toDomain() *domain.Arena {
	out := &domain.Arena{ID: r.Id, TokenAddress: r.TokenAddress}
	if r.OnChainId.Valid {
		v := r.OnChainId.Int64
		out.OnChainID = &v
	}
	if r.DisplayName.Valid {
		out.DisplayName = r.DisplayName.String
	}
	if r.CreatedAt.Valid {
		out.CreatedAt = r.CreatedAt.Time
	}
	return out
}

// ArenaRegistrationsModel persists domain.ArenaRegistration rows.
type ArenaRegistrationsModel struct {
	conn sqlx.SqlConn
}

// NewArenaRegistrationsModel constructs an ArenaRegistrationsModel.
func NewArenaRegistrationsModel(conn sqlx.SqlConn) *ArenaRegistrationsModel {
	return &ArenaRegistrationsModel{conn: conn}
}

// ActiveForArena returns active registrations for one arena.
func (m *ArenaRegistrationsModel) ActiveForArena(ctx context.Context, arenaID int64) ([]domain.ArenaRegistration, error) {
	const query = `
SELECT id, agent_id, arena_id, is_active
FROM public.arena_registrations WHERE arena_id = $1 AND is_active = true`

	var rows []struct {
		Id       int64
		AgentId  int64
		ArenaId  int64
		IsActive bool
	}
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, arenaID); err != nil {
		return nil, fmt.Errorf("arena_registrations.ActiveForArena: %w", err)
	}
	out := make([]domain.ArenaRegistration, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.ArenaRegistration{ID: r.Id, AgentID: r.AgentId, ArenaID: r.ArenaId, IsActive: r.IsActive})
	}
	return out, nil
}

// CountActiveForArena counts active registrations, used by the Epoch
// Controller to skip epoch creation for an arena with none.
func (m *ArenaRegistrationsModel) CountActiveForArena(ctx context.Context, arenaID int64) (int64, error) {
	const query = `SELECT COUNT(*) FROM public.arena_registrations WHERE arena_id = $1 AND is_active = true`
	var count int64
	if err := m.conn.QueryRowCtx(ctx, &count, query, arenaID); err != nil {
		return 0, fmt.Errorf("arena_registrations.CountActiveForArena: %w", err)
	}
	return count, nil
}
