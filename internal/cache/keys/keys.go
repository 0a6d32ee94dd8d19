package keys

import (
	"strings"
	"time"

	"github.com/moltiarena/core/internal/config"
)

// Namespace is the Redis key prefix for the moltiarena application.
const Namespace = "moltiarena"

// TTLClass represents a config-driven TTL bucket.
type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Short:  durationOrDefault(cfg.Short, 10*time.Second),
		Medium: durationOrDefault(cfg.Medium, time.Minute),
		Long:   durationOrDefault(cfg.Long, 5*time.Minute),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Duration returns the configured duration for the given TTL class.
func (t TTLSet) Duration(class TTLClass) time.Duration {
	switch class {
	case TTLShort:
		return t.Short
	case TTLMedium:
		return t.Medium
	case TTLLong:
		return t.Long
	default:
		return 0
	}
}

// Scaled applies a multiplier to a TTL class, useful for half/double TTL variants.
func (t TTLSet) Scaled(class TTLClass, factor float64) time.Duration {
	base := t.Duration(class)
	if base <= 0 || factor <= 0 {
		return base
	}
	return time.Duration(float64(base) * factor)
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// --- Market Aggregator Keys --------------------------------------------------

// MarketEventsHourKey caches the past-hour windowed stats for a token, read
// through by eventstore.Store.AggregatedStatsLastHour.
func MarketEventsHourKey(tokenAddress string) string {
	return formatKey("market", "events1h", tokenAddress)
}

// EventIngestGuardKey prevents re-processing the same on-chain tx hash
// twice, used by eventstore.Store.StoreEvent.
func EventIngestGuardKey(txHash string) string {
	return formatKey("ingest", "tx", txHash)
}

// --- TTL Helpers ---------------------------------------------------------------

// MarketEventsHourTTL returns the TTL for cached windowed stats.
func MarketEventsHourTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLShort)
}

// EventIngestGuardTTL returns the TTL for the tx-hash dedup guard.
func EventIngestGuardTTL() time.Duration {
	return 24 * time.Hour
}
