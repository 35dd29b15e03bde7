package notify

import (
	"sync"
	"time"

	"github.com/atrium-ops/bms-backend-go/internal/alerting"
)

// FrequencyLimiter enforces per-hour/per-day caps and a cooldown between
// similar alerts. Check-and-count is a single serialized operation per key so
// two concurrent evaluations cannot both slip under the limit; unrelated keys
// do not contend.
type FrequencyLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	mu          sync.Mutex
	sends       []time.Time
	lastSimilar map[string]time.Time
}

// NewFrequencyLimiter creates an empty limiter.
func NewFrequencyLimiter() *FrequencyLimiter {
	return &FrequencyLimiter{entries: make(map[string]*limiterEntry)}
}

func (l *FrequencyLimiter) entry(key string) *limiterEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{lastSimilar: make(map[string]time.Time)}
		l.entries[key] = e
	}
	return e
}

// Reserve atomically checks the limits for key and, if allowed, records a send
// at now. similarKey scopes the cooldown-between-similar check (typically the
// rule id). Returns false when the notification must be suppressed.
func (l *FrequencyLimiter) Reserve(key, similarKey string, limits alerting.FrequencyLimits, now time.Time) bool {
	e := l.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.trim(now)

	if limits.MaxPerHour > 0 {
		hourAgo := now.Add(-time.Hour)
		count := 0
		for _, t := range e.sends {
			if t.After(hourAgo) {
				count++
			}
		}
		if count >= limits.MaxPerHour {
			return false
		}
	}

	if limits.MaxPerDay > 0 && len(e.sends) >= limits.MaxPerDay {
		return false
	}

	if limits.CooldownBetweenSimilar > 0 && similarKey != "" {
		if last, ok := e.lastSimilar[similarKey]; ok {
			if now.Sub(last) < limits.CooldownBetweenSimilar {
				return false
			}
		}
	}

	e.sends = append(e.sends, now)
	if similarKey != "" {
		e.lastSimilar[similarKey] = now
	}
	return true
}

// trim drops send records older than the daily window.
func (e *limiterEntry) trim(now time.Time) {
	dayAgo := now.Add(-24 * time.Hour)
	kept := e.sends[:0]
	for _, t := range e.sends {
		if t.After(dayAgo) {
			kept = append(kept, t)
		}
	}
	e.sends = kept
}
