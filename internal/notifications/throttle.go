// internal/notifications/throttle.go - Sliding window notification limits
package notifications

import (
	"sync"
	"time"

	"netsentry/internal/config"
)

// Throttler rate limits notifications per source and in total over a
// sliding window.
type Throttler struct {
	config       config.ThrottleConfig
	sourceCounts map[string][]time.Time
	totalCounts  []time.Time
	now          func() time.Time
	mu           sync.Mutex
}

func NewThrottler(cfg config.ThrottleConfig) *Throttler {
	return &Throttler{
		config:       cfg,
		sourceCounts: make(map[string][]time.Time),
		now:          time.Now,
	}
}

// IsThrottled reports whether another notification for source would exceed
// either limit.
func (t *Throttler) IsThrottled(source string) bool {
	if !t.config.Enabled {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	windowStart := t.now().Add(-t.config.Window)

	if countSince(t.sourceCounts[source], windowStart) >= t.config.MaxPerSource {
		return true
	}
	return countSince(t.totalCounts, windowStart) >= t.config.MaxTotal
}

// RecordNotification records a notification for throttling purposes
func (t *Throttler) RecordNotification(source string) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.sourceCounts[source] = append(t.sourceCounts[source], now)
	t.totalCounts = append(t.totalCounts, now)

	t.cleanup(now.Add(-t.config.Window))
}

func (t *Throttler) cleanup(windowStart time.Time) {
	for source, times := range t.sourceCounts {
		kept := keepSince(times, windowStart)
		if len(kept) == 0 {
			delete(t.sourceCounts, source)
		} else {
			t.sourceCounts[source] = kept
		}
	}
	t.totalCounts = keepSince(t.totalCounts, windowStart)
}

func countSince(times []time.Time, windowStart time.Time) int {
	n := 0
	for _, ts := range times {
		if ts.After(windowStart) {
			n++
		}
	}
	return n
}

func keepSince(times []time.Time, windowStart time.Time) []time.Time {
	kept := make([]time.Time, 0, len(times))
	for _, ts := range times {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	return kept
}
