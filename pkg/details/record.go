// Package details assembles one composite record per item from the four
// TMDB sub-resources and runs that assembly for many items under a global
// concurrency cap.
package details

import (
	"encoding/json"
	"errors"

	"github.com/Sternrassler/tmdb-ingest/pkg/client"
)

// ErrDetailsUnavailable marks a record whose details payload could not be
// fetched. Such records are dropped from the batch.
var ErrDetailsUnavailable = errors.New("details unavailable")

// CompositeRecord is one item with its sub-resources. A nil field means
// that sub-resource could not be fetched; it marshals as null.
type CompositeRecord struct {
	ID      int64           `json:"id"`
	Details json.RawMessage `json:"details"`
	Credits json.RawMessage `json:"credits"`
	Images  json.RawMessage `json:"images"`
	Videos  json.RawMessage `json:"videos"`
}

// Field returns the payload of resource.
func (r *CompositeRecord) Field(resource client.SubResource) json.RawMessage {
	switch resource {
	case client.ResourceDetails:
		return r.Details
	case client.ResourceCredits:
		return r.Credits
	case client.ResourceImages:
		return r.Images
	case client.ResourceVideos:
		return r.Videos
	}
	return nil
}

func (r *CompositeRecord) set(resource client.SubResource, payload json.RawMessage) {
	switch resource {
	case client.ResourceDetails:
		r.Details = payload
	case client.ResourceCredits:
		r.Credits = payload
	case client.ResourceImages:
		r.Images = payload
	case client.ResourceVideos:
		r.Videos = payload
	}
}

// Missing returns the sub-resources that resolved to null.
func (r *CompositeRecord) Missing() []client.SubResource {
	var missing []client.SubResource
	for _, res := range client.SubResources {
		if r.Field(res) == nil {
			missing = append(missing, res)
		}
	}
	return missing
}

// Degraded reports whether at least one sub-resource is null.
func (r *CompositeRecord) Degraded() bool {
	return len(r.Missing()) > 0
}

// Batch holds one entry per requested ID, in request order. A nil entry
// is a record that could not be assembled.
type Batch []*CompositeRecord

// Records returns the non-nil entries.
func (b Batch) Records() []*CompositeRecord {
	out := make([]*CompositeRecord, 0, len(b))
	for _, r := range b {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// Outcome is the result of fetching one item.
type Outcome struct {
	ID     int64
	Record *CompositeRecord

	// Errors holds the final error of every sub-resource that resolved to
	// null.
	Errors map[client.SubResource]error

	// Err is set when Record is nil.
	Err error
}

// recordID reads the id of a details payload.
func recordID(details json.RawMessage, fallback int64) int64 {
	var head struct {
		ID *int64 `json:"id"`
	}
	if err := json.Unmarshal(details, &head); err != nil || head.ID == nil {
		return fallback
	}
	return *head.ID
}
