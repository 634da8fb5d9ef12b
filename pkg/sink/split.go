package sink

import (
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/tmdb-ingest/pkg/catalog"
	"github.com/Sternrassler/tmdb-ingest/pkg/client"
	"github.com/Sternrassler/tmdb-ingest/pkg/details"
	"go.mongodb.org/mongo-driver/bson"
)

// Collection names besides the per-type item collection.
const (
	CollectionCredits = "credits"
	CollectionImages  = "images"
	CollectionVideos  = "videos"
	CollectionGenres  = "genres"
)

// Documents is a batch split into per-collection documents.
type Documents struct {
	Items   []bson.M
	Credits []bson.M
	Images  []bson.M
	Videos  []bson.M

	// Skipped lists payloads that could not be decoded.
	Skipped []SkippedPayload
}

// SkippedPayload is a sub-resource payload left out of Documents.
type SkippedPayload struct {
	ID       int64
	Resource client.SubResource
	Err      error
}

// Len returns the number of documents.
func (d Documents) Len() int {
	return len(d.Items) + len(d.Credits) + len(d.Images) + len(d.Videos)
}

// OwnerField is the field images documents use to reference their item.
func OwnerField(itemType catalog.ItemType) string {
	if itemType == catalog.TVShow {
		return "tv_show_id"
	}
	return "movie_id"
}

// Split turns the records of batch into storage documents. Nil records and
// null sub-resources produce no document. Item documents get release_year
// set to year. Images documents carry the owning item ID in OwnerField
// instead of id.
//
// A payload that is not a JSON object is recorded in Skipped and left out.
// An undecodable details payload drops the whole record.
func Split(batch details.Batch, itemType catalog.ItemType, year int) Documents {
	var docs Documents

	for _, record := range batch.Records() {
		payload := func(resource client.SubResource) bson.M {
			doc, err := decode(record.Field(resource))
			if err != nil {
				docs.Skipped = append(docs.Skipped, SkippedPayload{ID: record.ID, Resource: resource, Err: err})
				return nil
			}
			return doc
		}

		item := payload(client.ResourceDetails)
		if item == nil {
			continue
		}
		item["release_year"] = year
		docs.Items = append(docs.Items, item)

		if credits := payload(client.ResourceCredits); credits != nil {
			docs.Credits = append(docs.Credits, credits)
		}

		if images := payload(client.ResourceImages); images != nil {
			delete(images, "id")
			images[OwnerField(itemType)] = record.ID
			docs.Images = append(docs.Images, images)
		}

		if videos := payload(client.ResourceVideos); videos != nil {
			if _, ok := videos["id"]; !ok {
				videos["id"] = record.ID
			}
			docs.Videos = append(docs.Videos, videos)
		}
	}

	return docs
}

// decode parses a JSON object into a BSON document. A nil payload yields a
// nil document.
func decode(raw json.RawMessage) (bson.M, error) {
	if raw == nil {
		return nil, nil
	}

	var doc bson.M
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return doc, nil
}
