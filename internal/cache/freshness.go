package cache

import (
	"time"

	"github.com/atlanticdynamic/gridhost/internal/widget"
)

// Freshness classifies a cache entry's age against its thresholds.
type Freshness string

const (
	Fresh   Freshness = "fresh"
	Stale   Freshness = "stale"
	Expired Freshness = "expired"
)

// staleMultiplier derives the max-staleness window when none is
// configured: three freshness windows.
const staleMultiplier = 3

// Classify maps an entry age onto fresh/stale/expired. maxStale <= 0
// falls back to ttl×3. Classification is monotonic in age: it only ever
// moves fresh → stale → expired.
func Classify(age, ttl, maxStale time.Duration) Freshness {
	if maxStale <= 0 {
		maxStale = ttl * staleMultiplier
	}
	switch {
	case age <= ttl:
		return Fresh
	case age <= maxStale:
		return Stale
	default:
		return Expired
	}
}

// FreshnessTTL derives the freshness threshold for a definition:
// explicit cache ttl_seconds first, then for agent_refresh widgets the
// max-staleness window or triple the expected update cadence, then the
// definition's own refresh interval.
func FreshnessTTL(def *widget.Definition) time.Duration {
	if def.Cache != nil && def.Cache.TTLSeconds > 0 {
		return time.Duration(def.Cache.TTLSeconds) * time.Second
	}
	if def.Fetch.Type == widget.FetchAgentRefresh {
		if def.Cache != nil && def.Cache.MaxStalenessSeconds > 0 {
			return time.Duration(def.Cache.MaxStalenessSeconds) * time.Second
		}
		if def.Fetch.ExpectedFreshnessSeconds > 0 {
			return time.Duration(def.Fetch.ExpectedFreshnessSeconds) * staleMultiplier * time.Second
		}
	}
	return def.RefreshInterval()
}

// MaxStaleness returns the configured max-staleness window, or ttl×3.
func MaxStaleness(def *widget.Definition, ttl time.Duration) time.Duration {
	if def.Cache != nil && def.Cache.MaxStalenessSeconds > 0 {
		return time.Duration(def.Cache.MaxStalenessSeconds) * time.Second
	}
	return ttl * staleMultiplier
}

// StorageTTL returns how long the stored row stays live. A configured
// max-staleness window overrides the freshness TTL so stale-but-servable
// data is retained until it is truly expired.
func StorageTTL(def *widget.Definition) time.Duration {
	ttl := FreshnessTTL(def)
	if def.Cache != nil && def.Cache.MaxStalenessSeconds > 0 {
		return time.Duration(def.Cache.MaxStalenessSeconds) * time.Second
	}
	return ttl
}
