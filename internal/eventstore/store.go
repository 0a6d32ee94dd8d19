// Package eventstore implements the Event Store (component B): validated
// persistence of raw market events and windowed aggregates for the Market
// Aggregator, with a read-through cache and "never throw to the caller"
// failure semantics (spec.md §4.2), grounded on the teacher's
// internal/repo/dbrepo.go fallback pattern.
package eventstore

import (
	"context"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/cache"

	"github.com/moltiarena/core/internal/aggregator"
	"github.com/moltiarena/core/internal/cache/keys"
	"github.com/moltiarena/core/internal/model"
)

const (
	maxPrice    = 1e12
	maxVolume   = 1e15
	maxStrLen   = 256
	addrHexLen  = 40 // 20 bytes
	txHashHexLen = 64 // 32 bytes
)

// Store implements the Event Store's public surface.
type Store struct {
	events *model.MarketEventsModel
	cache  cache.Cache
	ttl    keys.TTLSet
}

// New constructs a Store. cache may be a no-op/disabled cache.Cache; with a
// zero TTLSet the windowed-stats TTL is 0 and those stats are not cached.
func New(events *model.MarketEventsModel, c cache.Cache, ttl keys.TTLSet) *Store {
	return &Store{events: events, cache: c, ttl: ttl}
}

// StoreEvent validates and persists one event. It always returns nil:
// invalid events and insert failures are logged and dropped, and the
// aggregator's own ApplyEvent path never calls this synchronously on the
// hot path. Events that repeat a tx
// hash already seen within the dedup guard's TTL are dropped silently,
// since on-chain feeds occasionally redeliver the same log.
func (s *Store) StoreEvent(ctx context.Context, e model.MarketEvent) error {
	validated, ok := validate(e)
	if !ok {
		logx.WithContext(ctx).Errorf("eventstore: dropped invalid event token=%s type=%s", e.TokenAddress, e.Type)
		return nil
	}
	if validated.TxHash != nil && s.seenTxHash(ctx, *validated.TxHash) {
		return nil
	}
	if validated.CreatedAt.IsZero() {
		validated.CreatedAt = time.Now().UTC()
	}
	if err := s.events.Insert(ctx, validated); err != nil {
		logx.WithContext(ctx).Errorf("eventstore: storeEvent failed token=%s err=%v", e.TokenAddress, err)
		return nil
	}
	return nil
}

// seenTxHash reports whether txHash was already ingested recently, marking
// it seen as a side effect. A disabled cache always reports unseen, so
// dedup is best-effort rather than a correctness guarantee.
func (s *Store) seenTxHash(ctx context.Context, txHash string) bool {
	if s.cache == nil {
		return false
	}
	key := keys.EventIngestGuardKey(txHash)
	var marker int
	if err := s.cache.GetCtx(ctx, key, &marker); err == nil {
		return true
	} else if !s.cache.IsNotFound(err) {
		logx.WithContext(ctx).Errorf("eventstore: ingest guard lookup failed tx=%s err=%v", txHash, err)
	}
	if err := s.cache.SetWithExpireCtx(ctx, key, 1, keys.EventIngestGuardTTL()); err != nil {
		logx.WithContext(ctx).Errorf("eventstore: ingest guard set failed tx=%s err=%v", txHash, err)
	}
	return false
}

// StoreBatch validates and persists many events, deduplicating by tx hash.
func (s *Store) StoreBatch(ctx context.Context, evs []model.MarketEvent) error {
	validated := make([]model.MarketEvent, 0, len(evs))
	for _, e := range evs {
		v, ok := validate(e)
		if !ok {
			continue
		}
		if v.CreatedAt.IsZero() {
			v.CreatedAt = time.Now().UTC()
		}
		validated = append(validated, v)
	}
	if len(validated) == 0 {
		return nil
	}
	if err := s.events.InsertBatch(ctx, validated); err != nil {
		logx.WithContext(ctx).Errorf("eventstore: storeBatch failed count=%d err=%v", len(validated), err)
	}
	return nil
}

// CleanupOlderThan deletes events before the cutoff, logging failure rather
// than propagating it — cleanup is best-effort housekeeping.
func (s *Store) CleanupOlderThan(ctx context.Context, cutoff time.Time) {
	if _, err := s.events.CleanupOlderThan(ctx, cutoff); err != nil {
		logx.WithContext(ctx).Errorf("eventstore: cleanup failed cutoff=%s err=%v", cutoff, err)
	}
}

// AggregatedStatsLastHour implements aggregator.Store, returning the past
// hour's windowed stats and satisfying the "never fail" contract with a
// zero-value fallback on error. Reads go through the cache first — the
// aggregator polls this every tick, and the trailing-hour window barely
// moves between polls — falling back to Postgres on a miss or disabled
// cache and repopulating the cache afterward.
func (s *Store) AggregatedStatsLastHour(ctx context.Context, token string) (aggregator.WindowedStats, error) {
	key := keys.MarketEventsHourKey(token)
	var cached aggregator.WindowedStats
	if s.getCache(ctx, key, &cached) {
		return cached, nil
	}

	now := time.Now().UTC()
	stats, err := s.events.AggregatedStats(ctx, token, now.Add(-time.Hour), now)
	if err != nil {
		logx.WithContext(ctx).Errorf("eventstore: aggregatedStats failed token=%s err=%v", token, err)
		return aggregator.WindowedStats{}, nil
	}

	tm, err := s.events.TraderMetrics(ctx, token, now.Add(-time.Hour), now, 50)
	if err != nil {
		logx.WithContext(ctx).Errorf("eventstore: traderMetrics failed token=%s err=%v", token, err)
		tm = model.TraderMetrics{}
	}

	var latestPrice float64
	var hasLatestPrice bool
	if recent, rerr := s.events.RecentEvents(ctx, token, 1); rerr != nil {
		logx.WithContext(ctx).Errorf("eventstore: latest price lookup failed token=%s err=%v", token, rerr)
	} else if len(recent) > 0 {
		latestPrice, hasLatestPrice = recent[len(recent)-1].Price, true
	}

	result := aggregator.WindowedStats{
		EventsCount:        stats.Total,
		Volume:             stats.Volume,
		BuyCount:           stats.BuyCount,
		SellCount:          stats.SellCount,
		UniqueTraders:      tm.UniqueTraders,
		AvgVolumePerTrader: tm.AvgVolumePerTrader,
		LargestTrade:       tm.LargestTrade,
		LatestPrice:        latestPrice,
		HasLatestPrice:     hasLatestPrice,
	}
	s.setCache(ctx, key, keys.MarketEventsHourTTL(s.ttl), result)
	return result, nil
}

// getCache loads v from the cache, reporting whether it found a fresh
// value. A disabled cache or a lookup failure both report a miss, since
// eventstore must never fail a caller just because Redis is unavailable.
func (s *Store) getCache(ctx context.Context, key string, v interface{}) bool {
	if s.cache == nil {
		return false
	}
	if err := s.cache.GetCtx(ctx, key, v); err != nil {
		if !s.cache.IsNotFound(err) {
			logx.WithContext(ctx).Errorf("eventstore: cache get failed key=%s err=%v", key, err)
		}
		return false
	}
	return true
}

// setCache best-effort populates the cache, logging rather than failing
// the caller on a write error.
func (s *Store) setCache(ctx context.Context, key string, ttl time.Duration, v interface{}) {
	if s.cache == nil || ttl <= 0 {
		return
	}
	if err := s.cache.SetWithExpireCtx(ctx, key, v, ttl); err != nil {
		logx.WithContext(ctx).Errorf("eventstore: cache set failed key=%s err=%v", key, err)
	}
}

// RecentEvents returns the last n compact events, or an empty slice on
// failure.
func (s *Store) RecentEvents(ctx context.Context, token string, n int) []model.CompactEventRow {
	rows, err := s.events.RecentEvents(ctx, token, n)
	if err != nil {
		logx.WithContext(ctx).Errorf("eventstore: recentEvents failed token=%s err=%v", token, err)
		return []model.CompactEventRow{}
	}
	return rows
}

// validate normalizes and bounds-checks an event per spec.md §4.2.
func validate(e model.MarketEvent) (model.MarketEvent, bool) {
	token := normalizeAddress(e.TokenAddress)
	if token == "" {
		return model.MarketEvent{}, false
	}
	e.TokenAddress = token

	switch e.Type {
	case model.EventBuy, model.EventSell, model.EventSwap, model.EventCreate, model.EventSync:
	default:
		return model.MarketEvent{}, false
	}

	if e.Price != nil {
		if *e.Price < 0 || *e.Price > maxPrice {
			return model.MarketEvent{}, false
		}
	}
	if e.Volume != nil {
		if *e.Volume < 0 || *e.Volume > maxVolume {
			return model.MarketEvent{}, false
		}
	}
	if e.Trader != nil {
		addr := normalizeAddress(*e.Trader)
		if addr == "" {
			e.Trader = nil
		} else {
			e.Trader = &addr
		}
	}
	if e.TxHash != nil {
		h := normalizeTxHash(*e.TxHash)
		if h == "" {
			e.TxHash = nil
		} else {
			e.TxHash = &h
		}
	}
	if e.Pool != nil {
		*e.Pool = clamp(*e.Pool, maxStrLen)
	}
	return e, true
}

func normalizeAddress(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	if len(s) != addrHexLen || !isHex(s) {
		return ""
	}
	return "0x" + s
}

func normalizeTxHash(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	if len(s) != txHashHexLen || !isHex(s) {
		return ""
	}
	return "0x" + s
}

func isHex(s string) bool {
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}

func clamp(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
