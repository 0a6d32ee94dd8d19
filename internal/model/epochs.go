package model

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"github.com/moltiarena/core/internal/domain"
)

// EpochsModel persists domain.Epoch rows.
type EpochsModel struct {
	conn sqlx.SqlConn
}

// NewEpochsModel constructs an EpochsModel.
func NewEpochsModel(conn sqlx.SqlConn) *EpochsModel {
	return &EpochsModel{conn: conn}
}

// CurrentActive returns the active epoch for an arena whose [start, end)
// contains now, or nil if none exists.
func (m *EpochsModel) CurrentActive(ctx context.Context, arenaID int64, now time.Time) (*domain.Epoch, error) {
	const query = `
SELECT id, arena_id, on_chain_epoch_id, start_at, end_at, status,
       rewards_distributed_at, rewards_distributed_tx, rewards_swept_at
FROM public.epochs
WHERE arena_id = $1 AND status = 'active' AND start_at <= $2 AND end_at > $2
ORDER BY start_at DESC LIMIT 1`

	var row epochRow
	err := m.conn.QueryRowCtx(ctx, &row, query, arenaID, now.UTC())
	if err == sqlx.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("epochs.CurrentActive: %w", err)
	}
	return row.toDomain(), nil
}

// ByOnChainID loads an epoch by (arena, on-chain epoch id).
func (m *EpochsModel) ByOnChainID(ctx context.Context, arenaID, onChainEpochID int64) (*domain.Epoch, error) {
	const query = `
SELECT id, arena_id, on_chain_epoch_id, start_at, end_at, status,
       rewards_distributed_at, rewards_distributed_tx, rewards_swept_at
FROM public.epochs WHERE arena_id = $1 AND on_chain_epoch_id = $2`

	var row epochRow
	err := m.conn.QueryRowCtx(ctx, &row, query, arenaID, onChainEpochID)
	if err == sqlx.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("epochs.ByOnChainID: %w", err)
	}
	return row.toDomain(), nil
}

// Create inserts a new epoch row, idempotent by (arena_id, on_chain_epoch_id).
func (m *EpochsModel) Create(ctx context.Context, e domain.Epoch) (int64, error) {
	const query = `
INSERT INTO public.epochs (arena_id, on_chain_epoch_id, start_at, end_at, status)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (arena_id, on_chain_epoch_id) DO UPDATE SET status = EXCLUDED.status
RETURNING id`

	var id int64
	if err := m.conn.QueryRowCtx(ctx, &id, query, e.ArenaID, e.OnChainEpochID, e.StartAt.UTC(), e.EndAt.UTC(), string(e.Status)); err != nil {
		return 0, fmt.Errorf("epochs.Create: %w", err)
	}
	return id, nil
}

// MarkEnded flips an epoch's status to ended.
func (m *EpochsModel) MarkEnded(ctx context.Context, id int64) error {
	const query = `UPDATE public.epochs SET status = 'ended' WHERE id = $1`
	_, err := m.conn.ExecCtx(ctx, query, id)
	if err != nil {
		return fmt.Errorf("epochs.MarkEnded: %w", err)
	}
	return nil
}

// MarkRewardsDistributed stamps rewardsDistributedAt, guarding idempotency:
// the UPDATE only takes effect the first time (WHERE ... IS NULL).
func (m *EpochsModel) MarkRewardsDistributed(ctx context.Context, id int64, txHash string, at time.Time) (bool, error) {
	const query = `
UPDATE public.epochs SET rewards_distributed_at = $2, rewards_distributed_tx = $3
WHERE id = $1 AND rewards_distributed_at IS NULL`

	res, err := m.conn.ExecCtx(ctx, query, id, at.UTC(), txHash)
	if err != nil {
		return false, fmt.Errorf("epochs.MarkRewardsDistributed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkRewardsSwept stamps rewardsSweptAt, idempotently.
func (m *EpochsModel) MarkRewardsSwept(ctx context.Context, id int64, at time.Time) (bool, error) {
	const query = `UPDATE public.epochs SET rewards_swept_at = $2 WHERE id = $1 AND rewards_swept_at IS NULL`
	res, err := m.conn.ExecCtx(ctx, query, id, at.UTC())
	if err != nil {
		return false, fmt.Errorf("epochs.MarkRewardsSwept: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

type epochRow struct {
	Id                   int64
	ArenaId              int64
	OnChainEpochId       int64
	StartAt              time.Time
	EndAt                time.Time
	Status               string
	RewardsDistributedAt sql.NullTime
	RewardsDistributedTx sql.NullString
	RewardsSweptAt       sql.NullTime
}

func (r epochRow) toDomain() *domain.Epoch {
	out := &domain.Epoch{
		ID:             r.Id,
		ArenaID:        r.ArenaId,
		OnChainEpochID: r.OnChainEpochId,
		StartAt:        r.StartAt,
		EndAt:          r.EndAt,
		Status:         domain.EpochStatus(r.Status),
	}
	if r.RewardsDistributedAt.Valid {
		t := r.RewardsDistributedAt.Time
		out.RewardsDistributedAt = &t
	}
	if r.RewardsDistributedTx.Valid {
		out.RewardsDistributedTx = r.RewardsDistributedTx.String
	}
	if r.RewardsSweptAt.Valid {
		t := r.RewardsSweptAt.Time
		out.RewardsSweptAt = &t
	}
	return out
}

// EpochRegistrationsModel persists domain.EpochRegistration rows.
type EpochRegistrationsModel struct {
	conn sqlx.SqlConn
}

// NewEpochRegistrationsModel constructs an EpochRegistrationsModel.
func NewEpochRegistrationsModel(conn sqlx.SqlConn) *EpochRegistrationsModel {
	return &EpochRegistrationsModel{conn: conn}
}

// CountForEpoch counts registrations for an epoch.
func (m *EpochRegistrationsModel) CountForEpoch(ctx context.Context, epochID int64) (int64, error) {
	const query = `SELECT COUNT(*) FROM public.epoch_registrations WHERE epoch_id = $1`
	var count int64
	if err := m.conn.QueryRowCtx(ctx, &count, query, epochID); err != nil {
		return 0, fmt.Errorf("epoch_registrations.CountForEpoch: %w", err)
	}
	return count, nil
}

// Exists reports whether (epoch, agent) has a registration row — the
// gating check in spec.md §3 ("an agent may trade in an epoch only if this
// row exists").
func (m *EpochRegistrationsModel) Exists(ctx context.Context, epochID, agentID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM public.epoch_registrations WHERE epoch_id = $1 AND agent_id = $2)`
	var exists bool
	if err := m.conn.QueryRowCtx(ctx, &exists, query, epochID, agentID); err != nil {
		return false, fmt.Errorf("epoch_registrations.Exists: %w", err)
	}
	return exists, nil
}

// MissingAgents returns the on-chain-registered agent ids for an arena that
// lack an EpochRegistration row for the given epoch.
func (m *EpochRegistrationsModel) MissingAgents(ctx context.Context, arenaID, epochID int64) ([]int64, error) {
	const query = `
SELECT a.id FROM public.agents a
JOIN public.arena_registrations r ON r.agent_id = a.id
WHERE r.arena_id = $1 AND r.is_active = true AND a.on_chain_id IS NOT NULL
AND NOT EXISTS (
  SELECT 1 FROM public.epoch_registrations er WHERE er.epoch_id = $2 AND er.agent_id = a.id
)`
	var ids []int64
	if err := m.conn.QueryRowsCtx(ctx, &ids, query, arenaID, epochID); err != nil {
		return nil, fmt.Errorf("epoch_registrations.MissingAgents: %w", err)
	}
	return ids, nil
}

// Create inserts an EpochRegistration row for a freshly renewed agent.
func (m *EpochRegistrationsModel) Create(ctx context.Context, epochID, agentID int64) error {
	const query = `
INSERT INTO public.epoch_registrations (epoch_id, agent_id, claimed)
VALUES ($1, $2, false)
ON CONFLICT (epoch_id, agent_id) DO NOTHING`
	_, err := m.conn.ExecCtx(ctx, query, epochID, agentID)
	if err != nil {
		return fmt.Errorf("epoch_registrations.Create: %w", err)
	}
	return nil
}

// SetPendingReward persists the wei amount assigned at distribution time.
func (m *EpochRegistrationsModel) SetPendingReward(ctx context.Context, epochID, agentID int64, weiAmount string) error {
	const query = `UPDATE public.epoch_registrations SET pending_reward_wei = $3 WHERE epoch_id = $1 AND agent_id = $2`
	_, err := m.conn.ExecCtx(ctx, query, epochID, agentID, weiAmount)
	if err != nil {
		return fmt.Errorf("epoch_registrations.SetPendingReward: %w", err)
	}
	return nil
}

// UnclaimedForEpoch returns registrations carrying a still-unclaimed pending
// reward, the sweep step's candidate set (spec.md §4.6: "the set of winners
// whose claim is still open").
func (m *EpochRegistrationsModel) UnclaimedForEpoch(ctx context.Context, epochID int64) ([]domain.EpochRegistration, error) {
	const query = `
SELECT id, epoch_id, agent_id, pending_reward_wei, claimed, claimed_amount_wei
FROM public.epoch_registrations
WHERE epoch_id = $1 AND pending_reward_wei IS NOT NULL AND pending_reward_wei <> '' AND pending_reward_wei <> '0' AND claimed = false`

	var rows []struct {
		Id               int64
		EpochId          int64
		AgentId          int64
		PendingRewardWei sql.NullString
		Claimed          bool
		ClaimedAmountWei sql.NullString
	}
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, epochID); err != nil {
		return nil, fmt.Errorf("epoch_registrations.UnclaimedForEpoch: %w", err)
	}
	out := make([]domain.EpochRegistration, 0, len(rows))
	for _, r := range rows {
		reg := domain.EpochRegistration{ID: r.Id, EpochID: r.EpochId, AgentID: r.AgentId, Claimed: r.Claimed}
		if r.PendingRewardWei.Valid {
			reg.PendingRewardWei = r.PendingRewardWei.String
		}
		if r.ClaimedAmountWei.Valid {
			reg.ClaimedAmountWei = r.ClaimedAmountWei.String
		}
		out = append(out, reg)
	}
	return out, nil
}
