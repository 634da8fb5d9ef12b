package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sternrassler/tmdb-ingest/pkg/catalog"
	"github.com/Sternrassler/tmdb-ingest/pkg/client"
	"github.com/Sternrassler/tmdb-ingest/pkg/details"
	"github.com/Sternrassler/tmdb-ingest/pkg/logging"
	"github.com/rs/zerolog"
)

// fileDocument is the on-disk layout of a FileSink load.
type fileDocument struct {
	Type    catalog.ItemType           `json:"type"`
	Year    int                        `json:"year"`
	Genres  []client.Genre             `json:"genres,omitempty"`
	Results []*details.CompositeRecord `json:"results"`
}

// FileSink writes each load as {"results": [...]} to a JSON file.
type FileSink struct {
	path   string
	logger zerolog.Logger
}

// NewFileSink creates a sink writing to path. The file is replaced on
// every Write.
func NewFileSink(path string) *FileSink {
	return &FileSink{
		path:   path,
		logger: logging.NewLogger("sink"),
	}
}

// Write implements Sink. Nil records are left out of results.
func (s *FileSink) Write(ctx context.Context, load Load) (Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := load.Batch.Records()
	doc := fileDocument{
		Type:    load.Type,
		Year:    load.Year,
		Genres:  load.Genres,
		Results: records,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal results: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return nil, fmt.Errorf("rename %s: %w", tmp, err)
	}

	report := Report{}
	report.add(load.Type.Collection(), len(records))
	report.add(CollectionGenres, len(load.Genres))

	s.logger.Info().
		Str("path", s.path).
		Int("records", len(records)).
		Msg("Batch written")

	return report, nil
}

// Close implements Sink.
func (s *FileSink) Close(ctx context.Context) error {
	return nil
}
