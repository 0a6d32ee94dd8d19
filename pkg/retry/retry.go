// Package retry provides shared exponential backoff for the chain and
// wallet layers, generalized from the teacher's pkg/llm.RetryHandler but
// reclassifying retryable failures by substring match on the error chain
// instead of HTTP status codes, since chain RPC and bundler errors surface
// as plain strings rather than typed API errors (spec.md §4.6, §9).
package retry

import (
	"context"
	"errors"
	"math"
	"net"
	"strings"
	"time"
)

const (
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
	defaultBackoffFactor  = 2.0
)

// retryableSubstrings are matched case-insensitively against err.Error().
// These mirror the transient failure modes spec.md §9 calls out: RPC nonce
// races, mempool replacement conflicts, and ordinary network flakiness.
var retryableSubstrings = []string{
	"nonce too low",
	"nonce too high",
	"replacement transaction underpriced",
	"already known",
	"existing transaction had higher priority",
	"internal error",
	"timeout",
	"econnreset",
	"econnrefused",
	"network is unreachable",
	"connection refused",
	"connection reset",
	"i/o timeout",
	"temporary failure",
	"rate limit",
	"too many requests",
}

// Config encapsulates backoff settings. By default Do grows the delay
// exponentially (InitialBackoff * Multiplier^attempt); set Linear to use
// the Epoch Controller's flat per-attempt growth instead (spec.md §4.6:
// "linear backoff of 2s * attempt").
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Linear         bool
}

// Handler executes retryable operations with backoff.
type Handler struct {
	cfg Config
}

// New constructs a Handler, filling in sane defaults for zero-valued fields.
func New(cfg Config) *Handler {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = defaultBackoffFactor
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Handler{cfg: cfg}
}

// Do executes fn with retries until it succeeds, exhausts attempts, or hits
// a non-retryable error.
func (h *Handler) Do(ctx context.Context, fn func() error) error {
	var attempt int
	backoff := h.cfg.InitialBackoff

	for {
		err := fn()
		if err == nil {
			return nil
		}

		if !ShouldRetry(err) || attempt >= h.cfg.MaxRetries {
			return err
		}
		attempt++

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if h.cfg.Linear {
			backoff = time.Duration(math.Min(
				float64(h.cfg.MaxBackoff),
				float64(h.cfg.InitialBackoff)*float64(attempt+1),
			))
		} else {
			backoff = time.Duration(math.Min(
				float64(h.cfg.MaxBackoff),
				float64(backoff)*h.cfg.Multiplier,
			))
		}
	}
}

// ShouldRetry classifies err as transient by substring match on the error
// chain, falling back to net.Error's Temporary hint for wrapped network
// errors that don't carry a recognizable message.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range retryableSubstrings {
		if strings.Contains(msg, needle) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
