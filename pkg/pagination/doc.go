// Package pagination discovers item IDs through the paginated discover
// endpoint of the TMDB API.
//
// A year is split into monthly windows (catalog.Partition). For each window
// the Scheduler asks for the page count, skips windows at or above the page
// ceiling (the API does not serve results beyond page 500), then fetches
// every page through a bounded worker pool with a pacing delay per slot.
// The Collector runs windows strictly one after another so that at most one
// window's pool is in flight at a time.
//
// Example usage:
//
//	scheduler := pagination.NewScheduler(tmdbClient, pagination.DefaultConfig())
//	collector := pagination.NewCollector(scheduler)
//	result, err := collector.CollectYear(ctx, 2024, catalog.Movie)
//
// Failures are absorbed at the smallest unit: a failing page contributes
// no IDs, a failing or oversized window contributes no IDs, and neither
// stops the run. Only context cancellation is returned as an error.
package pagination
