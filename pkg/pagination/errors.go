package pagination

import (
	"fmt"

	"github.com/Sternrassler/tmdb-ingest/pkg/catalog"
)

// CeilingExceededError is reported for a window whose page count is at or
// above the configured ceiling. The window is skipped.
type CeilingExceededError struct {
	Window     catalog.DateWindow
	TotalPages int
	Ceiling    int
}

// Error implements the error interface.
func (e *CeilingExceededError) Error() string {
	return fmt.Sprintf("window %s has %d pages (ceiling %d)", e.Window, e.TotalPages, e.Ceiling)
}
