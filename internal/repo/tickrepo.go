// Package repo implements the Tick Engine's transactional commit facade: one
// Postgres transaction per agent-tick that writes the portfolio, the trade
// row, and the finalized decision row atomically, grounded on the teacher's
// internal/persistence/engine.Service.RecordConversation TransactCtx pattern.
package repo

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"github.com/moltiarena/core/internal/domain"
	"github.com/moltiarena/core/internal/model"
)

// TickRepo composes the per-tick model writes into one atomic commit.
type TickRepo struct {
	conn     sqlx.SqlConn
	decision *model.DecisionsModel
}

// NewTickRepo constructs a TickRepo.
func NewTickRepo(conn sqlx.SqlConn, decision *model.DecisionsModel) *TickRepo {
	return &TickRepo{conn: conn, decision: decision}
}

// CommitTrade atomically persists the post-trade portfolio, the trade row
// (if one was generated — HOLD decisions pass a nil trade), and finalizes
// the pending decision row, per spec.md §4.5 step 6's "single atomic write"
// requirement.
func (r *TickRepo) CommitTrade(ctx context.Context, portfolio domain.Portfolio, trade *domain.Trade, decisionID int64, status domain.DecisionStatus, txHash string) error {
	err := r.conn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		if err := model.UpsertPortfolioInTx(ctx, session, portfolio); err != nil {
			return err
		}
		if trade != nil {
			if err := model.InsertTradeInTx(ctx, session, *trade); err != nil {
				return err
			}
		}
		if err := model.FinalizeDecisionInTx(ctx, session, decisionID, status, txHash); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tickrepo.CommitTrade: %w", err)
	}
	return nil
}

// FinalizeSkipped finalizes a decision that never reached the ledger (e.g.
// skipped_no_gas) without touching the portfolio or trade tables.
func (r *TickRepo) FinalizeSkipped(ctx context.Context, decisionID int64, status domain.DecisionStatus) error {
	if err := r.decision.Finalize(ctx, decisionID, status, ""); err != nil {
		return fmt.Errorf("tickrepo.FinalizeSkipped: %w", err)
	}
	return nil
}
