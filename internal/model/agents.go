// Package model holds self-contained row models over sqlx.SqlConn. The
// teacher's goctl code-generation output (the defaultXModel base types) was
// not retained in this module's reference material, so these models are
// written directly against sqlx rather than wrapping a generated base type
// -- the shape (typed query methods, nullable-safe scanning, raw SQL with
// positional placeholders) still follows the teacher's internal/model.
package model

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"github.com/moltiarena/core/internal/domain"
)

// AgentsModel persists domain.Agent rows.
type AgentsModel struct {
	conn sqlx.SqlConn
}

// NewAgentsModel constructs an AgentsModel over the given connection.
func NewAgentsModel(conn sqlx.SqlConn) *AgentsModel {
	return &AgentsModel{conn: conn}
}

// FindByID loads one agent by its off-chain id.
func (m *AgentsModel) FindByID(ctx context.Context, id int64) (*domain.Agent, error) {
	const query = `
SELECT id, on_chain_id, owner_address, name, smart_account, encrypted_signer,
       profile_json, profile_hash, created_at
FROM public.agents WHERE id = $1`

	var row agentRow
	if err := m.conn.QueryRowCtx(ctx, &row, query, id); err != nil {
		if err == sqlx.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("agents.FindByID: %w", err)
	}
	return row.toDomain(), nil
}

// ActiveForArena returns agents with an active registration to the given
// arena, used by the Tick Engine to build its per-tick workset.
func (m *AgentsModel) ActiveForArena(ctx context.Context, arenaID int64) ([]domain.Agent, error) {
	const query = `
SELECT a.id, a.on_chain_id, a.owner_address, a.name, a.smart_account, a.encrypted_signer,
       a.profile_json, a.profile_hash, a.created_at
FROM public.agents a
JOIN public.arena_registrations r ON r.agent_id = a.id
WHERE r.arena_id = $1 AND r.is_active = true`

	var rows []agentRow
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, arenaID); err != nil {
		return nil, fmt.Errorf("agents.ActiveForArena: %w", err)
	}
	out := make([]domain.Agent, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.toDomain())
	}
	return out, nil
}

// UpsertOnChainID links the off-chain agent row to its on-chain id once
// indexed.
func (m *AgentsModel) UpsertOnChainID(ctx context.Context, id, onChainID int64) error {
	const query = `UPDATE public.agents SET on_chain_id = $2 WHERE id = $1`
	_, err := m.conn.ExecCtx(ctx, query, id, onChainID)
	if err != nil {
		return fmt.Errorf("agents.UpsertOnChainID: %w", err)
	}
	return nil
}

type agentRow struct {
	Id              int64
	OnChainId       sql.NullInt64
	OwnerAddress    string
	Name            string
	SmartAccount    string
	EncryptedSigner string
	ProfileJson     string
	ProfileHash     string
	CreatedAt       sql.NullTime
}

func (r agentRow) toDomain() *domain.Agent {
	a := &domain.Agent{
		ID:              r.Id,
		OwnerAddress:    r.OwnerAddress,
		Name:            r.Name,
		SmartAccount:    r.SmartAccount,
		EncryptedSigner: r.EncryptedSigner,
		ProfileJSON:     r.ProfileJson,
		ProfileHash:     r.ProfileHash,
	}
	if r.OnChainId.Valid {
		v := r.OnChainId.Int64
		a.OnChainID = &v
	}
	if r.CreatedAt.Valid {
		a.CreatedAt = r.CreatedAt.Time
	}
	return a
}
