package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/tmdb-ingest/pkg/catalog"
	"github.com/rs/zerolog"
)

// YearResult is the outcome of collecting IDs over a list of windows.
type YearResult struct {
	Type    catalog.ItemType
	Windows []WindowResult

	// IDs of all windows, concatenated in window order. Duplicates are kept.
	IDs catalog.IDSequence

	PagesFetched   int
	PagesFailed    int
	WindowsSkipped int
	WindowsFailed  int
}

// Collector runs the Scheduler over consecutive windows.
type Collector struct {
	scheduler *Scheduler
	logger    zerolog.Logger
}

// NewCollector creates a collector on top of scheduler.
func NewCollector(scheduler *Scheduler) *Collector {
	return &Collector{
		scheduler: scheduler,
		logger:    scheduler.logger,
	}
}

// CollectYear collects the IDs of all twelve months of year.
func (c *Collector) CollectYear(ctx context.Context, year int, itemType catalog.ItemType) (YearResult, error) {
	return c.CollectWindows(ctx, catalog.Partition(year), itemType)
}

// CollectWindows fetches windows strictly one after another: a window's
// pool fully drains before the next window starts. The only error returned
// is context cancellation, with the IDs collected so far.
func (c *Collector) CollectWindows(ctx context.Context, windows []catalog.DateWindow, itemType catalog.ItemType) (YearResult, error) {
	start := time.Now()
	result := YearResult{Type: itemType}

	for _, window := range windows {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("collect %s before %s: %w", itemType, window, err)
		}

		wr := c.scheduler.FetchWindow(ctx, window, itemType)
		result.Windows = append(result.Windows, wr)
		result.IDs = append(result.IDs, wr.IDs...)

		fetched, failed := wr.PageCounts()
		result.PagesFetched += fetched
		result.PagesFailed += failed

		switch {
		case wr.Skipped():
			result.WindowsSkipped++
		case wr.Err != nil:
			result.WindowsFailed++
		}
	}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("collect %s: %w", itemType, err)
	}

	c.logger.Info().
		Str("type", itemType.String()).
		Int("windows", len(windows)).
		Int("windows_skipped", result.WindowsSkipped).
		Int("windows_failed", result.WindowsFailed).
		Int("pages_fetched", result.PagesFetched).
		Int("pages_failed", result.PagesFailed).
		Int("ids", len(result.IDs)).
		Dur("duration", time.Since(start)).
		Msg("ID collection complete")

	return result, nil
}
