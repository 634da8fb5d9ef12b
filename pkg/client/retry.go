package client

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/Sternrassler/tmdb-ingest/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tmdb_retries_total",
		Help: "Total number of retry attempts by operation",
	}, []string{"operation"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tmdb_retry_backoff_seconds",
		Help:    "Backoff duration before a retry by operation",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30},
	}, []string{"operation"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tmdb_retry_exhausted_total",
		Help: "Total number of operations that failed on every attempt",
	}, []string{"operation"})
)

// AttemptState is a state of the per-operation retry machine:
//
//	Pending -> Attempting(1) -> Succeeded
//	                         -> Failed(1) -> Attempting(2) -> ... -> Exhausted
//	                         -> Failed(n) -> Aborted  (cancelled, or 4xx with StopOnClientError)
type AttemptState int

const (
	StatePending AttemptState = iota
	StateAttempting
	StateSucceeded
	StateFailed
	StateExhausted
	StateAborted
)

func (s AttemptState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAttempting:
		return "attempting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateExhausted:
		return "exhausted"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition follows s.
func (s AttemptState) Terminal() bool {
	return s == StateSucceeded || s == StateExhausted || s == StateAborted
}

// Transition is reported to RetryOp.Observe on every state change.
type Transition struct {
	From    AttemptState
	To      AttemptState
	Attempt int
	Err     error

	// Delay is the backoff about to be slept; set on Failed transitions
	// that will be retried.
	Delay time.Duration
}

// RetryPolicy holds the configuration for retry logic.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt, before jitter.
	InitialBackoff time.Duration

	// Multiplier grows the backoff per retry.
	Multiplier float64

	// MaxBackoff caps the backoff before jitter. 0 means no cap.
	MaxBackoff time.Duration

	// MaxJitter bounds the random delay added to every backoff: [0, MaxJitter).
	MaxJitter time.Duration

	// Jitter overrides the random source; it must return a value in [0, max).
	Jitter func(max time.Duration) time.Duration

	// StopOnClientError aborts after the first 4xx other than 408/429.
	// By default every failed attempt is retried.
	StopOnClientError bool
}

// DefaultRetryPolicy returns 3 attempts with 1s, 2s backoff plus up to 0.5s jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		Multiplier:     2.0,
		MaxJitter:      500 * time.Millisecond,
	}
}

// RetryPolicyFrom maps the process configuration onto a RetryPolicy.
func RetryPolicyFrom(cfg *config.Config) RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxAttempts = cfg.Fetch.RetryAttempts
	p.InitialBackoff = cfg.Fetch.RetryInitialBackoff
	p.MaxJitter = cfg.Fetch.RetryMaxJitter
	p.StopOnClientError = !cfg.Fetch.RetryClientErrors
	return p
}

// Backoff returns the deterministic part of the delay after failed attempt
// n (1-based): InitialBackoff * Multiplier^(n-1), capped by MaxBackoff.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}

	d := time.Duration(float64(p.InitialBackoff) * math.Pow(mult, float64(attempt-1)))
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

func (p RetryPolicy) retryable(err error) bool {
	if !p.StopOnClientError && Classify(err) == ErrorClassClient {
		return true
	}
	return IsRetryable(err)
}

// Delay returns Backoff(attempt) plus jitter in [0, MaxJitter).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.Backoff(attempt) + p.jitter()
}

func (p RetryPolicy) jitter() time.Duration {
	if p.MaxJitter <= 0 {
		return 0
	}
	if p.Jitter != nil {
		return p.Jitter(p.MaxJitter)
	}
	return time.Duration(rand.Int64N(int64(p.MaxJitter)))
}

// RetryOp is one operation driven by RetryPolicy.Run.
type RetryOp struct {
	// Label names the operation in metrics and errors, e.g. "credits".
	Label string

	// Do performs attempt n (1-based).
	Do func(ctx context.Context, attempt int) error

	// Observe, if set, receives every state transition.
	Observe func(Transition)
}

// Run drives op through the retry state machine. It returns nil on
// success, a *RetryExhaustedError after MaxAttempts failures, the
// attempt's error when it is not retryable (a cancelled context, or a 4xx
// under StopOnClientError), or ErrContextCancelled when ctx
// ends during a backoff. The backoff sleep only suspends the calling
// goroutine.
func (p RetryPolicy) Run(ctx context.Context, op RetryOp) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	state := StatePending
	move := func(to AttemptState, attempt int, err error, delay time.Duration) {
		if op.Observe != nil {
			op.Observe(Transition{From: state, To: to, Attempt: attempt, Err: err, Delay: delay})
		}
		state = to
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		move(StateAttempting, attempt, nil, 0)

		err := op.Do(ctx, attempt)
		if err == nil {
			move(StateSucceeded, attempt, nil, 0)
			return nil
		}
		lastErr = err

		if !p.retryable(err) {
			move(StateFailed, attempt, err, 0)
			move(StateAborted, attempt, err, 0)
			return err
		}

		if attempt == maxAttempts {
			move(StateFailed, attempt, err, 0)
			break
		}

		delay := p.Delay(attempt)
		move(StateFailed, attempt, err, delay)

		retriesTotal.WithLabelValues(op.Label).Inc()
		retryBackoffSeconds.WithLabelValues(op.Label).Observe(delay.Seconds())

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			cancelErr := fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			move(StateAborted, attempt, cancelErr, 0)
			return cancelErr
		case <-timer.C:
		}
	}

	retryExhaustedTotal.WithLabelValues(op.Label).Inc()
	exhausted := &RetryExhaustedError{Label: op.Label, Attempts: maxAttempts, Last: lastErr}
	move(StateExhausted, maxAttempts, exhausted, 0)
	return exhausted
}
