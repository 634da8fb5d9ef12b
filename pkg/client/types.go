package client

import (
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/tmdb-ingest/pkg/catalog"
)

// PageRequest identifies one discover page.
type PageRequest struct {
	Window catalog.DateWindow
	Type   catalog.ItemType
	Page   int
}

// Validate rejects pages below 1.
func (r PageRequest) Validate() error {
	if r.Page < 1 {
		return fmt.Errorf("page must be >= 1 (got %d)", r.Page)
	}
	return nil
}

// Summary is one discover result. Only the ID is interpreted; the raw
// object is kept as returned.
type Summary struct {
	ID  int64
	Raw json.RawMessage
}

// UnmarshalJSON keeps the raw object and extracts its id.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var head struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	s.ID = head.ID
	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the raw object.
func (s Summary) MarshalJSON() ([]byte, error) {
	if s.Raw == nil {
		return json.Marshal(struct {
			ID int64 `json:"id"`
		}{s.ID})
	}
	return s.Raw, nil
}

// IDs extracts the IDs of summaries in order.
func IDs(summaries []Summary) []int64 {
	ids := make([]int64, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, s.ID)
	}
	return ids
}

// discoverPage is the discover endpoint envelope.
type discoverPage struct {
	Page         int       `json:"page"`
	TotalPages   int       `json:"total_pages"`
	TotalResults int       `json:"total_results"`
	Results      []Summary `json:"results"`
}

// SubResource is one of the per-item endpoints.
type SubResource string

const (
	ResourceDetails SubResource = "details"
	ResourceCredits SubResource = "credits"
	ResourceImages  SubResource = "images"
	ResourceVideos  SubResource = "videos"
)

// SubResources lists every sub-resource in record order.
var SubResources = []SubResource{ResourceDetails, ResourceCredits, ResourceImages, ResourceVideos}

// PathSuffix returns the suffix appended to the item path.
func (r SubResource) PathSuffix() string {
	if r == ResourceDetails {
		return ""
	}
	return "/" + string(r)
}

// Genre is one entry of the genre list endpoint.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
