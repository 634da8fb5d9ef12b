package details

import (
	"context"
	"time"

	"github.com/Sternrassler/tmdb-ingest/pkg/workpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "details_records_total",
	Help: "Total detail records by status (complete, degraded, failed)",
}, []string{"status"})

// DefaultConcurrency is the default number of items fetched at once.
const DefaultConcurrency = 10

// Summary counts the outcomes of a FetchAll run.
type Summary struct {
	Requested int
	Fetched   int
	Failed    int

	// Degraded counts fetched records with at least one null sub-resource.
	Degraded int
}

// Orchestrator runs a Fetcher over many IDs under a concurrency cap.
type Orchestrator struct {
	fetcher     *Fetcher
	concurrency int
	logger      zerolog.Logger
}

// NewOrchestrator creates an orchestrator admitting at most concurrency
// items at a time.
func NewOrchestrator(fetcher *Fetcher, concurrency int) *Orchestrator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Orchestrator{
		fetcher:     fetcher,
		concurrency: concurrency,
		logger:      fetcher.logger,
	}
}

// FetchAll fetches every id. batch[i] always belongs to ids[i]; items that
// failed, or were never admitted because ctx ended, are nil.
func (o *Orchestrator) FetchAll(ctx context.Context, ids []int64) (Batch, Summary) {
	start := time.Now()

	o.logger.Info().
		Int("ids", len(ids)).
		Int("concurrency", o.concurrency).
		Msg("Starting detail fetch")

	results := workpool.Map(ctx, ids, workpool.Options{Concurrency: o.concurrency},
		func(ctx context.Context, id int64) (*CompositeRecord, error) {
			outcome := o.fetcher.Fetch(ctx, id)
			return outcome.Record, outcome.Err
		})

	batch := make(Batch, len(ids))
	summary := Summary{Requested: len(ids)}
	for i, r := range results {
		if !r.OK() || r.Value == nil {
			summary.Failed++
			recordsTotal.WithLabelValues("failed").Inc()
			continue
		}

		batch[i] = r.Value
		summary.Fetched++
		if r.Value.Degraded() {
			summary.Degraded++
			recordsTotal.WithLabelValues("degraded").Inc()
		} else {
			recordsTotal.WithLabelValues("complete").Inc()
		}
	}

	o.logger.Info().
		Int("requested", summary.Requested).
		Int("fetched", summary.Fetched).
		Int("failed", summary.Failed).
		Int("degraded", summary.Degraded).
		Dur("duration", time.Since(start)).
		Msg("Detail fetch complete")

	return batch, summary
}
