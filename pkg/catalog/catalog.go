// Package catalog defines the domain types shared by the discovery and
// detail stages: item types, date windows and ID sequences.
package catalog

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the date format the remote API expects for date filters.
const DateLayout = "2006-01-02"

// ItemType selects the catalog being fetched.
type ItemType string

const (
	// Movie selects the movie catalog.
	Movie ItemType = "movies"

	// TVShow selects the TV show catalog.
	TVShow ItemType = "tv_shows"
)

// ParseItemType converts a user supplied string into an ItemType.
func ParseItemType(s string) (ItemType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movies", "movie":
		return Movie, nil
	case "tv_shows", "tv", "tv_show", "tvshows":
		return TVShow, nil
	default:
		return "", fmt.Errorf("unknown item type %q (want movies or tv_shows)", s)
	}
}

// DateField returns the discover filter field used to bound this type by date.
func (t ItemType) DateField() string {
	if t == TVShow {
		return "first_air_date"
	}
	return "primary_release_date"
}

// Collection returns the storage collection name for top-level documents.
func (t ItemType) Collection() string {
	return string(t)
}

func (t ItemType) String() string {
	return string(t)
}

// DateWindow is an inclusive date range used to bound one discover query.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// StartDate renders the lower bound in DateLayout.
func (w DateWindow) StartDate() string {
	return w.Start.Format(DateLayout)
}

// EndDate renders the upper bound in DateLayout.
func (w DateWindow) EndDate() string {
	return w.End.Format(DateLayout)
}

func (w DateWindow) String() string {
	return w.StartDate() + ".." + w.EndDate()
}

// Partition splits a calendar year into twelve month windows.
// Windows are contiguous, non-overlapping and cover Jan 1 to Dec 31.
func Partition(year int) []DateWindow {
	windows := make([]DateWindow, 0, 12)
	for m := time.January; m <= time.December; m++ {
		start := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
		// Day 0 of the next month is the last day of this one.
		end := time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC)
		windows = append(windows, DateWindow{Start: start, End: end})
	}
	return windows
}

// SelectMonths returns the windows of year for the given months (1-12),
// in calendar order. An empty months list selects the whole year.
func SelectMonths(year int, months []int) ([]DateWindow, error) {
	all := Partition(year)
	if len(months) == 0 {
		return all, nil
	}

	selected := make([]bool, 12)
	for _, m := range months {
		if m < 1 || m > 12 {
			return nil, fmt.Errorf("month %d out of range 1-12", m)
		}
		selected[m-1] = true
	}

	windows := make([]DateWindow, 0, len(months))
	for i, w := range all {
		if selected[i] {
			windows = append(windows, w)
		}
	}
	return windows, nil
}

// IDSequence is an ordered list of item IDs. Duplicates are kept; storage
// is responsible for idempotence.
type IDSequence []int64
