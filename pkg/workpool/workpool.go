// Package workpool runs a function over a slice of inputs under a fixed
// concurrency cap, keeping results aligned with their inputs.
//
// Both fetch stages use it: discover pages are mapped with a pacing delay,
// item details without one.
package workpool

import (
	"context"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/sync/semaphore"
)

// Options controls admission for Map.
type Options struct {
	// Concurrency is the maximum number of fn calls in flight (default 1).
	Concurrency int

	// Pace is slept after each call before its slot is released. It bounds
	// the request rate of a slot even when calls return quickly.
	Pace time.Duration
}

// Result is the outcome for the input at Index.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// OK reports whether the call succeeded.
func (r Result[R]) OK() bool {
	return r.Err == nil
}

// Map calls fn for every item with at most opts.Concurrency calls active.
// results[i] always belongs to items[i], whatever the completion order.
// Items that could not be admitted because ctx ended carry ctx.Err().
// A failing call never affects its siblings.
func Map[T, R any](ctx context.Context, items []T, opts Options, fn func(ctx context.Context, item T) (R, error)) []Result[R] {
	results := make([]Result[R], len(items))
	if len(items) == 0 {
		return results
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = 1
	}
	sem := semaphore.NewWeighted(int64(limit))

	var wg conc.WaitGroup
	for i, item := range items {
		err := ctx.Err()
		if err == nil {
			err = sem.Acquire(ctx, 1)
		}
		if err != nil {
			for j := i; j < len(items); j++ {
				results[j] = Result[R]{Index: j, Err: err}
			}
			break
		}

		wg.Go(func() {
			defer sem.Release(1)

			value, err := fn(ctx, item)
			results[i] = Result[R]{Index: i, Value: value, Err: err}

			if opts.Pace > 0 {
				pause(ctx, opts.Pace)
			}
		})
	}
	wg.Wait()

	return results
}

// Count returns the number of successful and failed results.
func Count[R any](results []Result[R]) (ok, failed int) {
	for _, r := range results {
		if r.Err != nil {
			failed++
		} else {
			ok++
		}
	}
	return ok, failed
}

func pause(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
