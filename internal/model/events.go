package model

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// MarketEventType mirrors the Event Store's event taxonomy (spec.md §4.2).
type MarketEventType string

const (
	EventBuy    MarketEventType = "Buy"
	EventSell   MarketEventType = "Sell"
	EventSwap   MarketEventType = "Swap"
	EventCreate MarketEventType = "Create"
	EventSync   MarketEventType = "Sync"
)

// MarketEvent is a validated, normalized row as stored by the Event Store.
type MarketEvent struct {
	TokenAddress string
	Type         MarketEventType
	Price        *float64
	Volume       *float64
	Trader       *string
	Pool         *string
	TxHash       *string
	AmountIn     *float64
	AmountOut    *float64
	CreatedAt    time.Time
}

// MarketEventsModel persists MarketEvent rows.
type MarketEventsModel struct {
	conn sqlx.SqlConn
}

// NewMarketEventsModel constructs a MarketEventsModel.
func NewMarketEventsModel(conn sqlx.SqlConn) *MarketEventsModel {
	return &MarketEventsModel{conn: conn}
}

// Insert appends one event row.
func (m *MarketEventsModel) Insert(ctx context.Context, e MarketEvent) error {
	const query = `
INSERT INTO public.market_events (token_address, type, price, volume, trader, pool, tx_hash,
    amount_in, amount_out, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := m.conn.ExecCtx(ctx, query,
		e.TokenAddress, string(e.Type), e.Price, e.Volume, e.Trader, e.Pool, e.TxHash,
		e.AmountIn, e.AmountOut, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("market_events.Insert: %w", err)
	}
	return nil
}

// InsertBatch appends many events in one round trip, de-duplicating by
// tx_hash where present (spec.md §8: "re-ingesting the same event batch
// with storeBatch does not duplicate rows").
func (m *MarketEventsModel) InsertBatch(ctx context.Context, events []MarketEvent) error {
	if len(events) == 0 {
		return nil
	}
	return m.conn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		const query = `
INSERT INTO public.market_events (token_address, type, price, volume, trader, pool, tx_hash,
    amount_in, amount_out, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (tx_hash) WHERE tx_hash IS NOT NULL DO NOTHING`
		for _, e := range events {
			if _, err := session.ExecCtx(ctx, query,
				e.TokenAddress, string(e.Type), e.Price, e.Volume, e.Trader, e.Pool, e.TxHash,
				e.AmountIn, e.AmountOut, e.CreatedAt.UTC()); err != nil {
				return fmt.Errorf("market_events.InsertBatch: %w", err)
			}
		}
		return nil
	})
}

// CleanupOlderThan deletes events created before the cutoff.
func (m *MarketEventsModel) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM public.market_events WHERE created_at < $1`
	res, err := m.conn.ExecCtx(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("market_events.CleanupOlderThan: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// AggregatedStats is the windowed rollup served by aggregatedStats.
type AggregatedStats struct {
	Total         int64
	Volume        float64
	BuyCount      int64
	SellCount     int64
	SwapCount     int64
	UniqueTraders int64
	MinPrice      float64
	AvgPrice      float64
	MaxPrice      float64
}

// AggregatedStats computes the windowed rollup for (token, start, end).
func (m *MarketEventsModel) AggregatedStats(ctx context.Context, token string, start, end time.Time) (AggregatedStats, error) {
	const query = `
SELECT
    COUNT(*) AS total,
    COALESCE(SUM(volume), 0) AS volume,
    COUNT(*) FILTER (WHERE type = 'Buy') AS buy_count,
    COUNT(*) FILTER (WHERE type = 'Sell') AS sell_count,
    COUNT(*) FILTER (WHERE type = 'Swap') AS swap_count,
    COUNT(DISTINCT trader) AS unique_traders,
    COALESCE(MIN(price), 0) AS min_price,
    COALESCE(AVG(price), 0) AS avg_price,
    COALESCE(MAX(price), 0) AS max_price
FROM public.market_events
WHERE token_address = $1 AND created_at >= $2 AND created_at < $3`

	var row AggregatedStats
	if err := m.conn.QueryRowCtx(ctx, &row, query, token, start.UTC(), end.UTC()); err != nil {
		return AggregatedStats{}, fmt.Errorf("market_events.AggregatedStats: %w", err)
	}
	return row, nil
}

// RecentEvents returns the last n compact [type, price, volume] tuples in
// chronological order, restricted to Buy/Sell/Swap rows with both price and
// volume present (spec.md §4.2).
func (m *MarketEventsModel) RecentEvents(ctx context.Context, token string, n int) ([]CompactEventRow, error) {
	if n <= 0 {
		n = 5
	}
	const query = `
SELECT type, price, volume FROM (
  SELECT type, price, volume, created_at
  FROM public.market_events
  WHERE token_address = $1 AND type IN ('Buy', 'Sell', 'Swap')
    AND price IS NOT NULL AND volume IS NOT NULL
  ORDER BY created_at DESC LIMIT $2
) t ORDER BY created_at ASC`

	var rows []CompactEventRow
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, token, n); err != nil {
		return nil, fmt.Errorf("market_events.RecentEvents: %w", err)
	}
	return rows, nil
}

// CompactEventRow is a [type, price, volume] tuple.
type CompactEventRow struct {
	Type   string
	Price  float64
	Volume float64
}

// TraderMetrics is the per-trader rollup for whale detection.
type TraderMetrics struct {
	UniqueTraders      int64
	AvgVolumePerTrader float64
	LargestTrade       float64
	WhaleActivity      bool
}

// TraderMetrics computes unique-trader and largest-trade stats over a
// window, flagging whale activity at >= the given threshold (default 50).
func (m *MarketEventsModel) TraderMetrics(ctx context.Context, token string, start, end time.Time, whaleThreshold float64) (TraderMetrics, error) {
	if whaleThreshold <= 0 {
		whaleThreshold = 50
	}
	const query = `
SELECT
    COUNT(DISTINCT trader) AS unique_traders,
    COALESCE(SUM(volume) / NULLIF(COUNT(DISTINCT trader), 0), 0) AS avg_volume_per_trader,
    COALESCE(MAX(volume), 0) AS largest_trade
FROM public.market_events
WHERE token_address = $1 AND created_at >= $2 AND created_at < $3 AND trader IS NOT NULL`

	var row struct {
		UniqueTraders      int64
		AvgVolumePerTrader float64
		LargestTrade       float64
	}
	if err := m.conn.QueryRowCtx(ctx, &row, query, token, start.UTC(), end.UTC()); err != nil {
		return TraderMetrics{}, fmt.Errorf("market_events.TraderMetrics: %w", err)
	}
	return TraderMetrics{
		UniqueTraders:      row.UniqueTraders,
		AvgVolumePerTrader: row.AvgVolumePerTrader,
		LargestTrade:       row.LargestTrade,
		WhaleActivity:      row.LargestTrade >= whaleThreshold,
	}, nil
}
