// Package sink hands a fetched batch to persistent storage.
//
// Two sinks exist: MongoSink splits records into one collection per
// sub-resource, FileSink writes the batch as a single JSON document.
// Neither deduplicates; storage is responsible for idempotence.
package sink

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/Sternrassler/tmdb-ingest/pkg/catalog"
	"github.com/Sternrassler/tmdb-ingest/pkg/client"
	"github.com/Sternrassler/tmdb-ingest/pkg/details"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var documentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sink_documents_total",
	Help: "Total documents written by collection",
}, []string{"collection"})

var payloadsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sink_payloads_skipped_total",
	Help: "Total sub-resource payloads dropped because they could not be decoded",
}, []string{"resource"})

// Load is one unit of work for a Sink.
type Load struct {
	Type   catalog.ItemType
	Year   int
	Batch  details.Batch
	Genres []client.Genre
}

// Report counts the documents written per collection.
type Report map[string]int

// Total returns the number of documents written.
func (r Report) Total() int {
	total := 0
	for _, n := range r {
		total += n
	}
	return total
}

// String renders the report in collection order.
func (r Report) String() string {
	parts := make([]string, 0, len(r))
	for _, name := range slices.Sorted(maps.Keys(r)) {
		parts = append(parts, fmt.Sprintf("%s=%d", name, r[name]))
	}
	return strings.Join(parts, " ")
}

func (r Report) add(collection string, n int) {
	if n == 0 {
		return
	}
	r[collection] += n
	documentsTotal.WithLabelValues(collection).Add(float64(n))
}

// Sink persists loads.
type Sink interface {
	Write(ctx context.Context, load Load) (Report, error)
	Close(ctx context.Context) error
}

// Discard is a Sink that writes nothing. Used for dry runs.
type Discard struct{}

// Write implements Sink.
func (Discard) Write(ctx context.Context, load Load) (Report, error) {
	return Report{}, nil
}

// Close implements Sink.
func (Discard) Close(ctx context.Context) error {
	return nil
}
