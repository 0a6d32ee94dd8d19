package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/moltiarena/core/internal/aggregator"
)

type fakeSink struct {
	mu     sync.Mutex
	events []aggregator.Event
}

func (f *fakeSink) ApplyEvent(ev aggregator.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestNextBackoff(t *testing.T) {
	require.Equal(t, 4*time.Second, nextBackoff(2*time.Second))
	require.Equal(t, maxBackoff, nextBackoff(40*time.Second))
	require.Equal(t, maxBackoff, nextBackoff(maxBackoff))
}

func TestHandleMessage(t *testing.T) {
	sink := &fakeSink{}
	s := New("ws://unused", sink)

	t.Run("full event", func(t *testing.T) {
		s.handleMessage(context.Background(), []byte(`{"tokenAddress":"0xabc","price":1.5,"volumeMon":10,"trader":"0xdef"}`))
		require.Equal(t, 1, sink.count())
		ev := sink.events[0]
		require.Equal(t, "0xabc", ev.TokenAddress)
		require.True(t, ev.HasPrice)
		require.Equal(t, 1.5, ev.Price)
		require.True(t, ev.HasVolume)
		require.True(t, ev.HasTrader)
	})

	t.Run("missing token address dropped", func(t *testing.T) {
		before := sink.count()
		s.handleMessage(context.Background(), []byte(`{"price":1.5}`))
		require.Equal(t, before, sink.count())
	})

	t.Run("malformed json dropped", func(t *testing.T) {
		before := sink.count()
		s.handleMessage(context.Background(), []byte(`not json`))
		require.Equal(t, before, sink.count())
	})

	t.Run("price-only event", func(t *testing.T) {
		before := sink.count()
		s.handleMessage(context.Background(), []byte(`{"tokenAddress":"0xabc","price":2.0}`))
		require.Equal(t, before+1, sink.count())
		ev := sink.events[len(sink.events)-1]
		require.False(t, ev.HasVolume)
		require.False(t, ev.HasTrader)
	})
}

func TestStream_Run_DeliversEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"tokenAddress":"0xabc","price":1.0}`))
		time.Sleep(10 * time.Millisecond)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	sink := &fakeSink{}
	s := New(wsURL, sink)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	require.GreaterOrEqual(t, sink.count(), 1)
}
