package details

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Sternrassler/tmdb-ingest/pkg/catalog"
	"github.com/Sternrassler/tmdb-ingest/pkg/client"
	"github.com/Sternrassler/tmdb-ingest/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// ResourceSource is implemented by client.Client.
type ResourceSource interface {
	FetchResource(ctx context.Context, itemType catalog.ItemType, id int64, resource client.SubResource) (json.RawMessage, error)
}

// Fetcher assembles one CompositeRecord per item.
type Fetcher struct {
	source   ResourceSource
	itemType catalog.ItemType
	policy   client.RetryPolicy
	logger   zerolog.Logger
}

// NewFetcher creates a fetcher for items of itemType.
func NewFetcher(source ResourceSource, itemType catalog.ItemType, policy client.RetryPolicy) *Fetcher {
	return &Fetcher{
		source:   source,
		itemType: itemType,
		policy:   policy,
		logger:   logging.NewLogger("details"),
	}
}

// Fetch requests the four sub-resources of id concurrently, each with its
// own retries. A sub-resource that cannot be fetched is left nil. When the
// details payload itself is missing, the whole record is dropped.
func (f *Fetcher) Fetch(ctx context.Context, id int64) Outcome {
	var (
		mu       sync.Mutex
		payloads = make(map[client.SubResource]json.RawMessage, len(client.SubResources))
		failures = make(map[client.SubResource]error)
		wg       conc.WaitGroup
	)

	for _, resource := range client.SubResources {
		wg.Go(func() {
			payload, err := f.fetchResource(ctx, id, resource)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[resource] = err
				return
			}
			payloads[resource] = payload
		})
	}
	wg.Wait()

	outcome := Outcome{ID: id}
	if len(failures) > 0 {
		outcome.Errors = failures
	}

	details, ok := payloads[client.ResourceDetails]
	if !ok {
		outcome.Err = fmt.Errorf("item %d: %w: %v", id, ErrDetailsUnavailable, failures[client.ResourceDetails])
		f.logger.Error().
			Int64("id", id).
			Err(failures[client.ResourceDetails]).
			Msg("Details unavailable, dropping record")
		return outcome
	}

	record := &CompositeRecord{ID: recordID(details, id)}
	for resource, payload := range payloads {
		record.set(resource, payload)
	}
	outcome.Record = record
	return outcome
}

func (f *Fetcher) fetchResource(ctx context.Context, id int64, resource client.SubResource) (json.RawMessage, error) {
	var payload json.RawMessage

	err := f.policy.Run(ctx, client.RetryOp{
		Label: string(resource),
		Do: func(ctx context.Context, attempt int) error {
			var err error
			payload, err = f.source.FetchResource(ctx, f.itemType, id, resource)
			return err
		},
		Observe: func(tr client.Transition) {
			if tr.To != client.StateFailed || tr.Delay == 0 {
				return
			}
			f.logger.Warn().
				Err(tr.Err).
				Int64("id", id).
				Str("resource", string(resource)).
				Int("attempt", tr.Attempt).
				Dur("backoff", tr.Delay).
				Msg("Sub-resource fetch failed, retrying")
		},
	})
	if err != nil {
		f.logger.Error().
			Err(err).
			Int64("id", id).
			Str("resource", string(resource)).
			Str("class", string(client.Classify(err))).
			Msg("Sub-resource unavailable")
		return nil, err
	}
	return payload, nil
}
