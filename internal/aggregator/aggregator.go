// Package aggregator implements the Market Aggregator: a live, bounded
// per-token state updated from a push stream, emitting one snapshot per
// token per tick.
package aggregator

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/moltiarena/core/internal/domain"
)

const priceTailCap = 10

// Event is a single market event fed in from the ingest subscriber.
type Event struct {
	TokenAddress string
	Price        float64 // NaN/0 meaning "no price in this event" is caller's job to avoid; pass Finite() only
	VolumeMon    float64
	Trader       string
	HasPrice     bool
	HasVolume    bool
	HasTrader    bool
}

// WindowedStats is what the Event Store serves for the trailing hour. The
// aggregator falls back to local per-tick counters when the store errors.
type WindowedStats struct {
	EventsCount        int64
	Volume             float64
	BuyCount           int64
	SellCount          int64
	UniqueTraders       int64
	AvgVolumePerTrader  float64
	LargestTrade        float64
	LatestPrice         float64
	HasLatestPrice      bool
}

// Store is the subset of the Event Store the aggregator depends on.
type Store interface {
	AggregatedStatsLastHour(ctx context.Context, token string) (WindowedStats, error)
}

// tokenState is the mutable per-token aggregate. Writes come only from the
// single-writer ApplyEvent callback; reads happen at tick boundaries.
type tokenState struct {
	lastPrice          float64
	priceTail          []float64
	eventsThisTick     int64
	volumeThisTick     float64
	uniqueTradersTick  map[string]struct{}
	tick               int64
	prevTickVolume     float64
}

// Aggregator owns all per-token state and the Event Store dependency used
// to enrich tick snapshots with hourly windows.
type Aggregator struct {
	mu     sync.Mutex
	tokens map[string]*tokenState
	store  Store
	latest map[string]domain.MarketSnapshot
}

// New constructs an Aggregator. store may be nil, in which case snapshots
// use only the in-memory per-tick counters.
func New(store Store) *Aggregator {
	return &Aggregator{
		tokens: make(map[string]*tokenState),
		store:  store,
		latest: make(map[string]domain.MarketSnapshot),
	}
}

// Latest returns the most recently emitted snapshot for token, as of the
// last call to Tick. The Tick Engine's independent cadence (spec.md §5)
// reads this instead of forcing an aggregator tick of its own.
func (a *Aggregator) Latest(token string) (domain.MarketSnapshot, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	a.mu.Lock()
	defer a.mu.Unlock()
	snap, ok := a.latest[token]
	return snap, ok
}

func (a *Aggregator) get(token string) *tokenState {
	ts, ok := a.tokens[token]
	if !ok {
		ts = &tokenState{lastPrice: 1, uniqueTradersTick: make(map[string]struct{})}
		a.tokens[token] = ts
	}
	return ts
}

// ApplyEvent ingests one market event. It is O(1), never blocks, and never
// fails — malformed fields are simply skipped.
func (a *Aggregator) ApplyEvent(ev Event) {
	token := strings.ToLower(strings.TrimSpace(ev.TokenAddress))
	if token == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	ts := a.get(token)
	if ev.HasPrice && !math.IsNaN(ev.Price) && !math.IsInf(ev.Price, 0) && ev.Price > 0 {
		ts.lastPrice = ev.Price
		ts.priceTail = append(ts.priceTail, ev.Price)
		if len(ts.priceTail) > priceTailCap {
			ts.priceTail = ts.priceTail[len(ts.priceTail)-priceTailCap:]
		}
	}
	ts.eventsThisTick++
	if ev.HasVolume && ev.VolumeMon > 0 {
		ts.volumeThisTick += ev.VolumeMon
	}
	if ev.HasTrader {
		trader := strings.ToLower(strings.TrimSpace(ev.Trader))
		if trader != "" {
			ts.uniqueTradersTick[trader] = struct{}{}
		}
	}
}

// Tick computes and returns a snapshot for every known token, then resets
// per-tick counters (the price tail is retained across ticks).
func (a *Aggregator) Tick(ctx context.Context) []domain.MarketSnapshot {
	a.mu.Lock()
	tokens := make([]string, 0, len(a.tokens))
	for token := range a.tokens {
		tokens = append(tokens, token)
	}
	a.mu.Unlock()

	snapshots := make([]domain.MarketSnapshot, 0, len(tokens))
	for _, token := range tokens {
		snap := a.tickOne(ctx, token)
		snapshots = append(snapshots, snap)

		a.mu.Lock()
		a.latest[token] = snap
		a.mu.Unlock()
	}
	return snapshots
}

func (a *Aggregator) tickOne(ctx context.Context, token string) domain.MarketSnapshot {
	a.mu.Lock()
	ts := a.get(token)
	ts.tick++

	tail := append([]float64(nil), ts.priceTail...)
	price := ts.lastPrice
	eventsThisTick := ts.eventsThisTick
	volumeThisTick := ts.volumeThisTick
	prevTickVolume := ts.prevTickVolume
	uniqueLocal := int64(len(ts.uniqueTradersTick))
	tick := ts.tick
	a.mu.Unlock()

	var window WindowedStats
	if a.store != nil {
		stats, err := a.store.AggregatedStatsLastHour(ctx, token)
		if err != nil {
			logx.WithContext(ctx).Errorf("aggregator: store lookup failed token=%s err=%v", token, err)
		} else {
			window = stats
		}
	}

	events1h := window.EventsCount
	volume1h := window.Volume
	if events1h == 0 && volume1h == 0 {
		// Store unavailable or empty: fall back to the per-tick counters.
		events1h = eventsThisTick
		volume1h = volumeThisTick
	}

	if price == 1 && window.HasLatestPrice {
		price = window.LatestPrice
	}

	ret1m := percentReturn(tail, 2)
	ret5m := percentReturn(tail, 5)
	vol5m := populationStdDevPct(tail) * 100

	buySellRatio := buySellRatio(window.BuyCount, window.SellCount)

	momentum := domain.MomentumNeutral
	if buySellRatio > 1.5 {
		momentum = domain.MomentumBuy
	} else if buySellRatio < 0.67 {
		momentum = domain.MomentumSell
	}

	volumeTrend := domain.VolumeTrendStable
	if prevTickVolume > 0 {
		delta := (volumeThisTick - prevTickVolume) / prevTickVolume
		if delta > 0.10 {
			volumeTrend = domain.VolumeTrendIncreasing
		} else if delta < -0.10 {
			volumeTrend = domain.VolumeTrendDecreasing
		}
	}

	priceVolatility := domain.VolatilityLow
	if vol5m > 5 {
		priceVolatility = domain.VolatilityHigh
	} else if vol5m > 2 {
		priceVolatility = domain.VolatilityMedium
	}

	uniqueTraders := window.UniqueTraders
	avgVolumePerTrader := window.AvgVolumePerTrader
	largestTrade := window.LargestTrade
	if uniqueTraders == 0 {
		uniqueTraders = uniqueLocal
		largestTrade = volumeThisTick
		if uniqueLocal > 0 {
			avgVolumePerTrader = volumeThisTick / float64(uniqueLocal)
		}
	}

	snap := domain.MarketSnapshot{
		TokenAddress:       token,
		Tick:               tick,
		Price:              price,
		Ret1m:              ret1m,
		Ret5m:              ret5m,
		Vol5m:              vol5m,
		Events1h:           events1h,
		Volume1h:           volume1h,
		PriceTail:          tail,
		BuyCount:           window.BuyCount,
		SellCount:          window.SellCount,
		BuySellRatio:       buySellRatio,
		UniqueTraders:      uniqueTraders,
		AvgVolumePerTrader: avgVolumePerTrader,
		LargestTrade:       largestTrade,
		WhaleActivity:      largestTrade >= 50,
		Momentum:           momentum,
		VolumeTrend:        volumeTrend,
		PriceVolatility:    priceVolatility,
	}

	a.mu.Lock()
	ts.eventsThisTick = 0
	ts.prevTickVolume = volumeThisTick
	ts.volumeThisTick = 0
	ts.uniqueTradersTick = make(map[string]struct{})
	a.mu.Unlock()

	return snap
}

// buySellRatio implements the spec's momentum input: buys/sells when sells
// are present, otherwise max(buys, 1) so a quiet/one-sided market still
// yields a defined ratio.
func buySellRatio(buys, sells int64) float64 {
	if sells > 0 {
		return float64(buys) / float64(sells)
	}
	if buys > 1 {
		return float64(buys)
	}
	return 1
}

// percentReturn computes (tail[last] - tail[last-lag+1]) / tail[last-lag+1]
// * 100, defaulting to 0 when the tail is too short.
func percentReturn(tail []float64, lag int) float64 {
	n := len(tail)
	if n < lag {
		return 0
	}
	prev := tail[n-lag]
	if prev == 0 {
		return 0
	}
	return (tail[n-1] - prev) / prev * 100
}

// populationStdDevPct is the population standard deviation of the per-step
// percent returns across the tail, expressed as a fraction (caller scales
// by 100). Returns 0 when the tail has fewer than 2 points.
func populationStdDevPct(tail []float64) float64 {
	if len(tail) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(tail)-1)
	for i := 1; i < len(tail); i++ {
		if tail[i-1] == 0 {
			continue
		}
		returns = append(returns, (tail[i]-tail[i-1])/tail[i-1])
	}
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}
