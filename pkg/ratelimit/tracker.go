package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tmdb_rate_limit_waits_total",
		Help: "Total number of requests held back by a 429 hold-off",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tmdb_rate_limit_throttles_total",
		Help: "Total number of 429 responses received",
	})
)

// Config controls request pacing.
type Config struct {
	// RequestsPerSecond caps the aggregate request rate. 0 disables pacing.
	RequestsPerSecond float64

	// Burst is the limiter bucket size (default 1 when pacing is enabled).
	Burst int
}

// Tracker paces requests and gates them after 429 responses.
// It is safe for concurrent use.
type Tracker struct {
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu    sync.Mutex
	state State
	now   func() time.Time
}

// NewTracker creates a new rate limit tracker.
func NewTracker(cfg Config, logger zerolog.Logger) *Tracker {
	t := &Tracker{
		logger: logger,
		now:    time.Now,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return t
}

// State returns a snapshot of the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Wait blocks until a request may be sent: first until any 429 hold-off
// has passed, then until the pacing limiter grants a token.
func (t *Tracker) Wait(ctx context.Context) error {
	t.mu.Lock()
	hold := t.state.TimeUntilReset(t.now())
	t.mu.Unlock()

	if hold > 0 {
		rateLimitWaitsTotal.Inc()
		t.logger.Debug().Dur("wait", hold).Msg("Holding request after 429")

		timer := time.NewTimer(hold)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit wait: %w", ctx.Err())
		case <-timer.C:
		}
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	return nil
}

// UpdateFromResponse records a throttling response. Responses other than
// 429 leave the state untouched.
func (t *Tracker) UpdateFromResponse(resp *http.Response) {
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		return
	}

	now := t.now()
	hold, ok := parseRetryAfter(resp.Header.Get("Retry-After"), now)
	if !ok {
		hold = DefaultRetryAfter
	}

	t.mu.Lock()
	until := now.Add(hold)
	if until.After(t.state.BlockedUntil) {
		t.state.BlockedUntil = until
	}
	t.state.Throttled++
	t.state.LastUpdate = now
	throttled := t.state.Throttled
	t.mu.Unlock()

	rateLimitThrottlesTotal.Inc()
	t.logger.Warn().
		Dur("retry_after", hold).
		Int64("throttled_total", throttled).
		Msg("Rate limited by remote API")
}
