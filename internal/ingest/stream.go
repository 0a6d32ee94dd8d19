// Package ingest implements the token-event ingest stream: a push
// subscription to an external market-data service that feeds
// aggregator.ApplyEvent. The feed itself is an external collaborator
// (spec.md §1 Out of scope); this package only maintains the connection and
// translates wire messages into aggregator events.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/moltiarena/core/internal/aggregator"
)

const (
	minBackoff = 2 * time.Second
	maxBackoff = 60 * time.Second
)

// Sink is the subset of *aggregator.Aggregator the stream depends on.
type Sink interface {
	ApplyEvent(ev aggregator.Event)
}

// wireEvent is the JSON shape pushed by the upstream feed, mirroring
// spec.md §4.1's "applyEvent(tokenAddress, {price?, volumeMon?, trader?})"
// ingestion contract.
type wireEvent struct {
	TokenAddress string   `json:"tokenAddress"`
	Price        *float64 `json:"price,omitempty"`
	VolumeMon    *float64 `json:"volumeMon,omitempty"`
	Trader       *string  `json:"trader,omitempty"`
}

// Stream maintains one reconnecting websocket subscription, grounded on the
// other_examples predator-engine worker's dial/read-loop/reconnect shape
// but with capped exponential backoff (2s -> 60s) in place of its fixed
// 5-second retry.
type Stream struct {
	url  string
	sink Sink
}

// New constructs a Stream that pushes decoded events into sink.
func New(url string, sink Sink) *Stream {
	return &Stream{url: url, sink: sink}
}

// Run dials url and reads events until ctx is canceled. Dial failures back
// off exponentially, capped at maxBackoff; after an established connection
// drops, the backoff resets and the next dial waits minBackoff. Never
// returns until ctx is done.
func (s *Stream) Run(ctx context.Context) {
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			logx.WithContext(ctx).Errorf("ingest: dial failed url=%s err=%v backoff=%s", s.url, err, backoff)
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = minBackoff
		s.readLoop(ctx, conn)
		conn.Close()

		if !sleepOrDone(ctx, backoff) {
			return
		}
	}
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		conn.Close()
		close(done)
	}()
	defer func() {
		select {
		case <-done:
		default:
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logx.WithContext(ctx).Errorf("ingest: read failed err=%v", err)
			}
			return
		}
		s.handleMessage(ctx, message)
	}
}

func (s *Stream) handleMessage(ctx context.Context, message []byte) {
	var wire wireEvent
	if err := json.Unmarshal(message, &wire); err != nil {
		logx.WithContext(ctx).Errorf("ingest: malformed message err=%v", err)
		return
	}
	if wire.TokenAddress == "" {
		return
	}

	ev := aggregator.Event{TokenAddress: wire.TokenAddress}
	if wire.Price != nil {
		ev.Price = *wire.Price
		ev.HasPrice = true
	}
	if wire.VolumeMon != nil {
		ev.VolumeMon = *wire.VolumeMon
		ev.HasVolume = true
	}
	if wire.Trader != nil {
		ev.Trader = *wire.Trader
		ev.HasTrader = true
	}
	s.sink.ApplyEvent(ev)
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

// sleepOrDone sleeps for d or returns false immediately if ctx is canceled
// first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
