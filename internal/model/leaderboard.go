package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"github.com/moltiarena/core/internal/domain"
)

// LeaderboardModel persists domain.LeaderboardSnapshot rows.
type LeaderboardModel struct {
	conn sqlx.SqlConn
}

// NewLeaderboardModel constructs a LeaderboardModel.
func NewLeaderboardModel(conn sqlx.SqlConn) *LeaderboardModel {
	return &LeaderboardModel{conn: conn}
}

// Insert persists a snapshot, required index per spec.md §6:
// (arena, epoch, createdAt desc).
func (m *LeaderboardModel) Insert(ctx context.Context, snap domain.LeaderboardSnapshot) error {
	payload, err := json.Marshal(snap.Rankings)
	if err != nil {
		return fmt.Errorf("leaderboard.Insert: marshal rankings: %w", err)
	}
	const query = `
INSERT INTO public.leaderboard_snapshots (arena_id, epoch_id, tick, rankings_json, created_at)
VALUES ($1, $2, $3, $4, NOW())`
	_, err = m.conn.ExecCtx(ctx, query, snap.ArenaID, snap.EpochID, snap.Tick, payload)
	if err != nil {
		return fmt.Errorf("leaderboard.Insert: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot for (arena, epoch), used by the
// Epoch Controller's reward-distribution step.
func (m *LeaderboardModel) Latest(ctx context.Context, arenaID, epochID int64) (*domain.LeaderboardSnapshot, error) {
	const query = `
SELECT id, arena_id, epoch_id, tick, rankings_json, created_at
FROM public.leaderboard_snapshots
WHERE arena_id = $1 AND epoch_id = $2
ORDER BY created_at DESC LIMIT 1`

	var row struct {
		Id           int64
		ArenaId      int64
		EpochId      int64
		Tick         int64
		RankingsJson []byte
		CreatedAt    interface{}
	}
	err := m.conn.QueryRowCtx(ctx, &row, query, arenaID, epochID)
	if err == sqlx.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("leaderboard.Latest: %w", err)
	}
	var rankings []domain.LeaderboardRow
	if err := json.Unmarshal(row.RankingsJson, &rankings); err != nil {
		return nil, fmt.Errorf("leaderboard.Latest: unmarshal rankings: %w", err)
	}
	return &domain.LeaderboardSnapshot{
		ID:       row.Id,
		ArenaID:  row.ArenaId,
		EpochID:  row.EpochId,
		Tick:     row.Tick,
		Rankings: rankings,
	}, nil
}
