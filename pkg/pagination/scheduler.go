package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/tmdb-ingest/pkg/catalog"
	"github.com/Sternrassler/tmdb-ingest/pkg/client"
	"github.com/Sternrassler/tmdb-ingest/pkg/config"
	"github.com/Sternrassler/tmdb-ingest/pkg/logging"
	"github.com/Sternrassler/tmdb-ingest/pkg/workpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagination_pages_total",
		Help: "Total discover pages by status",
	}, []string{"status"})

	windowsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagination_windows_skipped_total",
		Help: "Total windows skipped because their page count reached the ceiling",
	})
)

// progressEvery controls how often page progress is logged.
const progressEvery = 50

// Config holds scheduler configuration.
type Config struct {
	// MaxConcurrency is the maximum number of pages in flight per window.
	MaxConcurrency int

	// PageCeiling skips windows with this many pages or more.
	PageCeiling int

	// Pace is slept by a worker after each page before taking the next one.
	Pace time.Duration

	// PageTimeout bounds a single page fetch.
	PageTimeout time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
		PageCeiling:    500,
		Pace:           500 * time.Millisecond,
		PageTimeout:    15 * time.Second,
	}
}

// ConfigFrom maps the process configuration onto a scheduler Config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MaxConcurrency: cfg.Fetch.PageConcurrency,
		PageCeiling:    cfg.Fetch.PageCeiling,
		Pace:           cfg.Fetch.PagePace,
		PageTimeout:    cfg.Fetch.PageTimeout,
	}
}

// PageSource is implemented by client.Client.
type PageSource interface {
	CountPages(ctx context.Context, window catalog.DateWindow, itemType catalog.ItemType) (int, error)
	FetchPage(ctx context.Context, req client.PageRequest) ([]client.Summary, error)
}

// PageResult holds the IDs of one page, or its error.
type PageResult = workpool.Result[[]int64]

// WindowResult is the outcome of one window.
type WindowResult struct {
	Window     catalog.DateWindow
	TotalPages int

	// Pages is indexed by page number - 1. Empty when the window failed.
	Pages []PageResult

	// IDs of all successful pages, in page order.
	IDs catalog.IDSequence

	// Err is set when the window could not be paged at all: a page count
	// failure or a *CeilingExceededError.
	Err error
}

// Skipped reports whether the window was skipped by the page ceiling.
func (r WindowResult) Skipped() bool {
	var ceilingErr *CeilingExceededError
	return errors.As(r.Err, &ceilingErr)
}

// PageCounts returns the number of fetched and failed pages.
func (r WindowResult) PageCounts() (fetched, failed int) {
	return workpool.Count(r.Pages)
}

// Scheduler fetches all pages of a window under bounded concurrency.
type Scheduler struct {
	source PageSource
	config Config
	logger zerolog.Logger
}

// NewScheduler creates a new scheduler.
func NewScheduler(source PageSource, cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.PageCeiling <= 0 {
		cfg.PageCeiling = def.PageCeiling
	}
	if cfg.Pace < 0 {
		cfg.Pace = 0
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = def.PageTimeout
	}

	return &Scheduler{
		source: source,
		config: cfg,
		logger: logging.NewLogger("pagination"),
	}
}

// FetchWindow fetches every page of window. Page failures are logged and
// contribute no IDs; they never abort the window.
func (s *Scheduler) FetchWindow(ctx context.Context, window catalog.DateWindow, itemType catalog.ItemType) WindowResult {
	start := time.Now()
	result := WindowResult{Window: window}

	totalPages, err := s.source.CountPages(ctx, window, itemType)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("window", window.String()).
			Str("type", itemType.String()).
			Msg("Page count failed, skipping window")
		result.Err = fmt.Errorf("count pages of %s: %w", window, err)
		return result
	}
	result.TotalPages = totalPages

	if totalPages >= s.config.PageCeiling {
		windowsSkippedTotal.Inc()
		s.logger.Warn().
			Str("window", window.String()).
			Str("type", itemType.String()).
			Int("total_pages", totalPages).
			Int("ceiling", s.config.PageCeiling).
			Msg("Page ceiling reached, skipping window")
		result.Err = &CeilingExceededError{Window: window, TotalPages: totalPages, Ceiling: s.config.PageCeiling}
		return result
	}

	s.logger.Info().
		Str("window", window.String()).
		Str("type", itemType.String()).
		Int("total_pages", totalPages).
		Msg("Starting parallel page fetch")

	pages := make([]int, totalPages)
	for i := range pages {
		pages[i] = i + 1
	}

	var done atomic.Int64
	result.Pages = workpool.Map(ctx, pages, workpool.Options{
		Concurrency: s.config.MaxConcurrency,
		Pace:        s.config.Pace,
	}, func(ctx context.Context, page int) ([]int64, error) {
		ids, err := s.fetchPage(ctx, window, itemType, page)

		if n := done.Add(1); n%progressEvery == 0 {
			s.logger.Info().
				Int64("done", n).
				Int("total", totalPages).
				Float64("progress_pct", float64(n)/float64(totalPages)*100).
				Msg("Fetch progress")
		}
		return ids, err
	})

	for _, page := range result.Pages {
		if page.OK() {
			result.IDs = append(result.IDs, page.Value...)
		}
	}

	fetched, failed := result.PageCounts()
	s.logger.Info().
		Str("window", window.String()).
		Int("pages_fetched", fetched).
		Int("pages_failed", failed).
		Int("ids", len(result.IDs)).
		Dur("duration", time.Since(start)).
		Msg("Window complete")

	return result
}

func (s *Scheduler) fetchPage(ctx context.Context, window catalog.DateWindow, itemType catalog.ItemType, page int) ([]int64, error) {
	pageCtx, cancel := context.WithTimeout(ctx, s.config.PageTimeout)
	defer cancel()

	summaries, err := s.source.FetchPage(pageCtx, client.PageRequest{Window: window, Type: itemType, Page: page})
	if err != nil {
		pagesTotal.WithLabelValues("failed").Inc()
		s.logger.Warn().
			Err(err).
			Str("window", window.String()).
			Int("page", page).
			Msg("Page fetch failed")
		return nil, fmt.Errorf("page %d of %s: %w", page, window, err)
	}

	pagesTotal.WithLabelValues("fetched").Inc()
	return client.IDs(summaries), nil
}
