// Package checkpoint stores run progress in Redis so that a run can pick
// up where a previous one stopped.
//
// Two things are stored per item type:
//
//   - the year cursor: the next year to ingest. The loader works backwards
//     through the catalog, so a successful year N moves the cursor to N-1.
//   - the discovered ID sequence of a (type, year), so the detail stage can
//     run again without paging through the discover endpoint.
//
// Key format:
//
//	tmdb:year:movies
//	tmdb:ids:tv_shows:2024
//
// Redis access is not retried; callers treat checkpoint errors as
// non-fatal where the run itself succeeded.
package checkpoint
