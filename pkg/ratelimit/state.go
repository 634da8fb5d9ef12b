// Package ratelimit paces requests to the remote content API and holds
// requests back after the API answers 429 Too Many Requests.
//
// State is process-local: every request of a run goes through one Tracker.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultRetryAfter is used when a 429 response carries no usable
// Retry-After header.
const DefaultRetryAfter = 1 * time.Second

// MaxRetryAfter caps the hold-off taken from a Retry-After header.
const MaxRetryAfter = 60 * time.Second

// State is a snapshot of the tracker.
type State struct {
	// BlockedUntil is when requests may resume after a 429.
	// Zero when not blocked.
	BlockedUntil time.Time

	// Throttled counts 429 responses seen so far.
	Throttled int64

	// LastUpdate is when a response last changed the state.
	LastUpdate time.Time
}

// IsBlocked reports whether requests must wait at instant now.
func (s State) IsBlocked(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// TimeUntilReset returns the remaining hold-off at instant now, or 0.
func (s State) TimeUntilReset(now time.Time) time.Duration {
	d := s.BlockedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// parseRetryAfter reads a Retry-After value given either as delay seconds
// or as an HTTP date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return clampRetryAfter(time.Duration(secs) * time.Second), true
	}

	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return clampRetryAfter(d), true
	}

	return 0, false
}

func clampRetryAfter(d time.Duration) time.Duration {
	if d > MaxRetryAfter {
		return MaxRetryAfter
	}
	return d
}
