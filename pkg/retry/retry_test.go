package retry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("with all config", func(t *testing.T) {
		cfg := Config{
			MaxRetries:     5,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Multiplier:     2.5,
		}
		h := New(cfg)
		require.NotNil(t, h)
		require.Equal(t, 5, h.cfg.MaxRetries)
		require.Equal(t, 100*time.Millisecond, h.cfg.InitialBackoff)
		require.Equal(t, 2*time.Second, h.cfg.MaxBackoff)
		require.Equal(t, 2.5, h.cfg.Multiplier)
	})

	t.Run("with defaults", func(t *testing.T) {
		h := New(Config{})
		require.NotNil(t, h)
		require.Equal(t, defaultInitialBackoff, h.cfg.InitialBackoff)
		require.Equal(t, defaultMaxBackoff, h.cfg.MaxBackoff)
		require.Equal(t, defaultBackoffFactor, h.cfg.Multiplier)
		require.Equal(t, 0, h.cfg.MaxRetries)
	})

	t.Run("negative values use defaults", func(t *testing.T) {
		h := New(Config{
			MaxRetries:     -1,
			InitialBackoff: -100 * time.Millisecond,
			MaxBackoff:     -2 * time.Second,
			Multiplier:     0.5,
		})
		require.NotNil(t, h)
		require.Equal(t, 0, h.cfg.MaxRetries)
		require.Equal(t, defaultInitialBackoff, h.cfg.InitialBackoff)
		require.Equal(t, defaultMaxBackoff, h.cfg.MaxBackoff)
		require.Equal(t, defaultBackoffFactor, h.cfg.Multiplier)
	})
}

func TestHandlerDo(t *testing.T) {
	t.Run("success on first try", func(t *testing.T) {
		h := New(Config{MaxRetries: 3})
		ctx := context.Background()

		calls := 0
		err := h.Do(ctx, func() error {
			calls++
			return nil
		})

		require.NoError(t, err)
		require.Equal(t, 1, calls)
	})

	t.Run("success on retry", func(t *testing.T) {
		h := New(Config{MaxRetries: 3, InitialBackoff: 10 * time.Millisecond})
		ctx := context.Background()

		calls := 0
		err := h.Do(ctx, func() error {
			calls++
			if calls < 3 {
				return errors.New("nonce too low")
			}
			return nil
		})

		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("exhausted retries", func(t *testing.T) {
		h := New(Config{MaxRetries: 2, InitialBackoff: 10 * time.Millisecond})
		ctx := context.Background()

		calls := 0
		err := h.Do(ctx, func() error {
			calls++
			return errors.New("request timeout")
		})

		require.Error(t, err)
		require.Equal(t, 3, calls) // initial + 2 retries
	})

	t.Run("context canceled mid-retry", func(t *testing.T) {
		h := New(Config{MaxRetries: 3, InitialBackoff: 100 * time.Millisecond})
		ctx, cancel := context.WithCancel(context.Background())

		calls := 0
		err := h.Do(ctx, func() error {
			calls++
			if calls == 1 {
				cancel()
			}
			return errors.New("internal error")
		})

		require.Error(t, err)
		require.Equal(t, context.Canceled, err)
	})

	t.Run("non-retryable error", func(t *testing.T) {
		h := New(Config{MaxRetries: 3})
		ctx := context.Background()

		calls := 0
		err := h.Do(ctx, func() error {
			calls++
			return errors.New("insufficient funds for gas")
		})

		require.Error(t, err)
		require.Equal(t, 1, calls)
	})
}

func TestShouldRetry(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		require.False(t, ShouldRetry(nil))
	})

	t.Run("context canceled", func(t *testing.T) {
		require.False(t, ShouldRetry(context.Canceled))
	})

	t.Run("context deadline exceeded", func(t *testing.T) {
		require.False(t, ShouldRetry(context.DeadlineExceeded))
	})

	t.Run("chain rpc substrings are retryable", func(t *testing.T) {
		msgs := []string{
			"nonce too low",
			"replacement transaction underpriced",
			"existing transaction had higher priority",
			"internal error",
			"request TIMEOUT",
			"ECONNRESET",
			"connection refused",
			"rate limit exceeded",
		}
		for _, msg := range msgs {
			require.True(t, ShouldRetry(errors.New(msg)), "message %q should be retryable", msg)
		}
	})

	t.Run("permanent errors are not retryable", func(t *testing.T) {
		msgs := []string{
			"insufficient funds for gas * price + value",
			"execution reverted: slippage exceeded",
			"invalid signature",
		}
		for _, msg := range msgs {
			require.False(t, ShouldRetry(errors.New(msg)), "message %q should not be retryable", msg)
		}
	})

	t.Run("net.OpError is retryable", func(t *testing.T) {
		err := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("boom")}
		require.True(t, ShouldRetry(err))
	})

	t.Run("timeout net.Error is retryable", func(t *testing.T) {
		err := &timeoutError{msg: "deadline"}
		require.True(t, ShouldRetry(err))
	})

	t.Run("non-timeout net.Error with unrecognized message is not retryable", func(t *testing.T) {
		err := &nonTimeoutError{msg: "refused by policy"}
		require.False(t, ShouldRetry(err))
	})

	t.Run("generic error is not retryable", func(t *testing.T) {
		require.False(t, ShouldRetry(errors.New("generic error")))
	})

	t.Run("wrapped context canceled", func(t *testing.T) {
		wrapped := errors.Join(errors.New("wrapper"), context.Canceled)
		require.False(t, ShouldRetry(wrapped))
	})

	t.Run("wrapped retryable substring", func(t *testing.T) {
		wrapped := errors.Join(errors.New("wrapper"), errors.New("network is unreachable"))
		require.True(t, ShouldRetry(wrapped))
	})
}

type timeoutError struct{ msg string }

func (e *timeoutError) Error() string   { return e.msg }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

type nonTimeoutError struct{ msg string }

func (e *nonTimeoutError) Error() string   { return e.msg }
func (e *nonTimeoutError) Timeout() bool   { return false }
func (e *nonTimeoutError) Temporary() bool { return false }
