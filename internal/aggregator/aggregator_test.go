package aggregator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moltiarena/core/internal/domain"
)

type fakeStore struct {
	stats WindowedStats
	err   error
}

func (f fakeStore) AggregatedStatsLastHour(ctx context.Context, token string) (WindowedStats, error) {
	return f.stats, f.err
}

func TestApplyEvent_UpdatesLastPriceAndTail(t *testing.T) {
	a := New(nil)
	a.ApplyEvent(Event{TokenAddress: "0xABC", Price: 1.1, HasPrice: true})
	a.ApplyEvent(Event{TokenAddress: "0xabc", Price: 1.2, HasPrice: true, VolumeMon: 10, HasVolume: true, Trader: "0xT1", HasTrader: true})

	snaps := a.Tick(context.Background())
	require.Len(t, snaps, 1)
	require.Equal(t, "0xabc", snaps[0].TokenAddress)
	require.InDelta(t, 1.2, snaps[0].Price, 1e-9)
}

func TestApplyEvent_IgnoresNonPositivePrice(t *testing.T) {
	a := New(nil)
	a.ApplyEvent(Event{TokenAddress: "tok", Price: 0, HasPrice: true})
	snaps := a.Tick(context.Background())
	require.InDelta(t, 1, snaps[0].Price, 1e-9) // default lastPrice unchanged
}

func TestTick_FallsBackToLocalCountersWithoutStore(t *testing.T) {
	a := New(nil)
	a.ApplyEvent(Event{TokenAddress: "tok", VolumeMon: 5, HasVolume: true})
	a.ApplyEvent(Event{TokenAddress: "tok", VolumeMon: 5, HasVolume: true})

	snaps := a.Tick(context.Background())
	require.EqualValues(t, 2, snaps[0].Events1h)
	require.InDelta(t, 10, snaps[0].Volume1h, 1e-9)
}

func TestTick_UsesStoreWhenAvailable(t *testing.T) {
	store := fakeStore{stats: WindowedStats{EventsCount: 100, Volume: 9000, BuyCount: 80, SellCount: 20}}
	a := New(store)
	a.ApplyEvent(Event{TokenAddress: "tok", Price: 2, HasPrice: true})

	snaps := a.Tick(context.Background())
	require.EqualValues(t, 100, snaps[0].Events1h)
	require.InDelta(t, 9000, snaps[0].Volume1h, 1e-9)
	require.Equal(t, domain.MomentumBuy, snaps[0].Momentum) // ratio 80/20=4 > 1.5
}

func TestTick_ResetsPerTickCountersButKeepsTail(t *testing.T) {
	a := New(nil)
	a.ApplyEvent(Event{TokenAddress: "tok", Price: 1, HasPrice: true, VolumeMon: 1, HasVolume: true})
	first := a.Tick(context.Background())
	require.Len(t, first[0].PriceTail, 1)

	second := a.Tick(context.Background())
	require.EqualValues(t, 0, second[0].Events1h)
	require.Len(t, second[0].PriceTail, 1) // tail retained
}

func TestVolatilityLabelsFromTail(t *testing.T) {
	a := New(nil)
	prices := []float64{1, 1.1, 0.9, 1.2, 0.8, 1.3}
	for _, p := range prices {
		a.ApplyEvent(Event{TokenAddress: "tok", Price: p, HasPrice: true})
	}
	snaps := a.Tick(context.Background())
	require.Contains(t, []domain.PriceVolatilityLabel{domain.VolatilityHigh, domain.VolatilityMedium, domain.VolatilityLow}, snaps[0].PriceVolatility)
}
