// Package ledger implements the pure off-chain trade projection used for
// bookkeeping. Its output is always overwritten by an authoritative
// on-chain read afterward; the ledger exists only to derive tradeValueMon
// and the avgEntryPrice lineage the contract does not expose (spec.md §9).
package ledger

import (
	"github.com/moltiarena/core/internal/domain"
)

// State is the slice of Portfolio fields the paper ledger projects.
type State struct {
	CashMon          float64
	TokenUnits       float64
	AvgEntryPrice    *float64
	TradesThisWindow int
	LastTradeTick    *int64
}

// Result is the ledger's output: the next portfolio state and, unless the
// decision was a HOLD, the trade record to append.
type Result struct {
	Next  State
	Trade *domain.Trade
}

// ExecutePaperTrade computes the next in-process portfolio state and the
// trade record (if any) from (tick, stateBefore, decision, price).
func ExecutePaperTrade(tick int64, agentID, arenaID int64, before State, price float64, decision domain.Decision) Result {
	next := before

	if decision.Action == domain.ActionHold {
		return Result{Next: next, Trade: nil}
	}

	next.TradesThisWindow++
	next.LastTradeTick = &tick

	switch decision.Action {
	case domain.ActionBuy:
		spent := before.CashMon * decision.SizePct
		if price <= 0 {
			return Result{Next: next, Trade: nil}
		}
		bought := spent / price
		next.CashMon = before.CashMon - spent
		next.TokenUnits = before.TokenUnits + bought
		next.AvgEntryPrice = weightedAverageEntry(before.TokenUnits, before.AvgEntryPrice, bought, price)

		trade := &domain.Trade{
			AgentID:             agentID,
			ArenaID:             arenaID,
			Tick:                tick,
			Action:              domain.ActionBuy,
			SizePct:             decision.SizePct,
			ExecutedPrice:       price,
			TradeValueMon:       spent,
			AvgEntryPriceBefore: before.AvgEntryPrice,
			CashAfter:           next.CashMon,
			TokenAfter:          next.TokenUnits,
			Reason:              decision.Reason,
		}
		return Result{Next: next, Trade: trade}

	case domain.ActionSell:
		delivered := before.TokenUnits * decision.SizePct
		proceeds := delivered * price
		next.TokenUnits = before.TokenUnits - delivered
		next.CashMon = before.CashMon + proceeds
		if next.TokenUnits > 0 {
			next.AvgEntryPrice = before.AvgEntryPrice
		} else {
			next.AvgEntryPrice = nil
		}

		trade := &domain.Trade{
			AgentID:             agentID,
			ArenaID:             arenaID,
			Tick:                tick,
			Action:              domain.ActionSell,
			SizePct:             decision.SizePct,
			ExecutedPrice:       price,
			TradeValueMon:       proceeds,
			AvgEntryPriceBefore: before.AvgEntryPrice,
			CashAfter:           next.CashMon,
			TokenAfter:          next.TokenUnits,
			Reason:              decision.Reason,
		}
		return Result{Next: next, Trade: trade}
	}

	return Result{Next: next, Trade: nil}
}

func weightedAverageEntry(unitsBefore float64, avgBefore *float64, unitsBought, price float64) *float64 {
	prevValue := 0.0
	if avgBefore != nil {
		prevValue = unitsBefore * *avgBefore
	}
	totalUnits := unitsBefore + unitsBought
	if totalUnits <= 0 {
		return avgBefore
	}
	avg := (prevValue + unitsBought*price) / totalUnits
	return &avg
}
