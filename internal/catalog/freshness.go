package catalog

import (
	"time"

	"github.com/everstacklabs/parley/internal/provider"
)

// Freshness maps providers to their configured max cache age. Every known
// provider gets a window; anything unconfigured falls back to Default.
type Freshness struct {
	Default     time.Duration
	PerProvider map[provider.ID]time.Duration
}

// MaxAge returns the configured window for a provider.
func (f Freshness) MaxAge(id provider.ID) time.Duration {
	if d, ok := f.PerProvider[id]; ok && d > 0 {
		return d
	}
	return f.Default
}

// IsStale reports whether an entry needs a refresh at the given instant.
// An entry that has never been successfully fetched is always stale. The
// boundary is pinned as stale at or after the window elapses.
func IsStale(e *Entry, maxAge time.Duration, now time.Time) bool {
	if e == nil || e.LastSuccess == nil {
		return true
	}
	return now.Sub(*e.LastSuccess) >= maxAge
}
