package checkpoint

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/tmdb-ingest/pkg/catalog"
)

// keyPrefix is the namespace of every key written by this package.
const keyPrefix = "tmdb"

// Kind is the kind of value stored under a key.
type Kind string

const (
	KindYear Kind = "year"
	KindIDs  Kind = "ids"
)

// Key identifies one stored value.
type Key struct {
	Kind Kind
	Type catalog.ItemType

	// Year is only part of the key for KindIDs.
	Year int
}

// String generates the Redis key.
//
// Example:
//
//	tmdb:ids:movies:2024
func (k Key) String() string {
	parts := []string{keyPrefix, string(k.Kind), string(k.Type)}
	if k.Kind == KindIDs {
		parts = append(parts, fmt.Sprint(k.Year))
	}
	return strings.Join(parts, ":")
}

// YearKey is the year cursor key of itemType.
func YearKey(itemType catalog.ItemType) Key {
	return Key{Kind: KindYear, Type: itemType}
}

// IDsKey is the ID sequence key of (itemType, year).
func IDsKey(itemType catalog.ItemType, year int) Key {
	return Key{Kind: KindIDs, Type: itemType, Year: year}
}
