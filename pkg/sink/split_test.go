package sink

import (
	"encoding/json"
	"testing"

	"github.com/Sternrassler/tmdb-ingest/pkg/catalog"
	"github.com/Sternrassler/tmdb-ingest/pkg/client"
	"github.com/Sternrassler/tmdb-ingest/pkg/details"
)

func testBatch() details.Batch {
	return details.Batch{
		{
			ID:      1,
			Details: json.RawMessage(`{"id":1,"title":"One","runtime":90}`),
			Credits: json.RawMessage(`{"id":1,"cast":[{"name":"A"}]}`),
			Images:  json.RawMessage(`{"id":1,"posters":[{"file_path":"/a.jpg"}]}`),
			Videos:  json.RawMessage(`{"id":1,"results":[{"type":"Trailer"}]}`),
		},
		nil,
		{
			ID:      3,
			Details: json.RawMessage(`{"id":3,"title":"Three"}`),
			Videos:  json.RawMessage(`{"results":[]}`),
		},
	}
}

func TestSplit(t *testing.T) {
	docs := Split(testBatch(), catalog.Movie, 2024)
	if len(docs.Skipped) != 0 {
		t.Fatalf("unexpected skipped payloads: %+v", docs.Skipped)
	}

	if len(docs.Items) != 2 || len(docs.Credits) != 1 || len(docs.Images) != 1 || len(docs.Videos) != 2 {
		t.Fatalf("unexpected split: items=%d credits=%d images=%d videos=%d",
			len(docs.Items), len(docs.Credits), len(docs.Images), len(docs.Videos))
	}
	if docs.Len() != 6 {
		t.Errorf("Len() = %d, want 6", docs.Len())
	}

	if docs.Items[0]["title"] != "One" || docs.Items[0]["release_year"] != 2024 {
		t.Errorf("item doc = %v", docs.Items[0])
	}

	img := docs.Images[0]
	if _, ok := img["id"]; ok {
		t.Error("images doc must not keep id")
	}
	if img["movie_id"] != int64(1) {
		t.Errorf("movie_id = %v (%T), want 1", img["movie_id"], img["movie_id"])
	}

	if docs.Videos[1]["id"] != int64(3) {
		t.Errorf("videos without id should get the record id, got %v", docs.Videos[1]["id"])
	}
}

func TestSplit_TVOwnerField(t *testing.T) {
	batch := details.Batch{{
		ID:      8,
		Details: json.RawMessage(`{"id":8}`),
		Images:  json.RawMessage(`{"id":8,"backdrops":[]}`),
	}}

	docs := Split(batch, catalog.TVShow, 2020)
	if docs.Images[0]["tv_show_id"] != int64(8) {
		t.Errorf("images doc = %v", docs.Images[0])
	}
}

func TestSplit_InvalidPayload(t *testing.T) {
	tests := []struct {
		name        string
		batch       details.Batch
		wantItems   int
		wantCredits int
		wantSkipped client.SubResource
	}{
		{
			name: "array credits",
			batch: details.Batch{
				{ID: 1, Details: json.RawMessage(`{"id":1}`), Credits: json.RawMessage(`{"id":1,"cast":[]}`)},
				{ID: 2, Details: json.RawMessage(`{"id":2}`), Credits: json.RawMessage(`[1,2]`)},
			},
			wantItems:   2,
			wantCredits: 1,
			wantSkipped: client.ResourceCredits,
		},
		{
			name: "array details drops record",
			batch: details.Batch{
				{ID: 1, Details: json.RawMessage(`{"id":1}`)},
				{ID: 4, Details: json.RawMessage(`[1,2]`), Credits: json.RawMessage(`{"id":4}`)},
			},
			wantItems:   1,
			wantCredits: 0,
			wantSkipped: client.ResourceDetails,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := Split(tt.batch, catalog.Movie, 2024)

			if len(docs.Items) != tt.wantItems || len(docs.Credits) != tt.wantCredits {
				t.Errorf("items=%d credits=%d, want %d/%d", len(docs.Items), len(docs.Credits), tt.wantItems, tt.wantCredits)
			}
			if len(docs.Skipped) != 1 {
				t.Fatalf("skipped = %+v, want one entry", docs.Skipped)
			}
			if docs.Skipped[0].Resource != tt.wantSkipped || docs.Skipped[0].Err == nil {
				t.Errorf("skipped = %+v, want %s with error", docs.Skipped[0], tt.wantSkipped)
			}
		})
	}
}

func TestSplit_Empty(t *testing.T) {
	docs := Split(details.Batch{nil, nil}, catalog.Movie, 2024)
	if docs.Len() != 0 {
		t.Errorf("Len() = %d, want 0", docs.Len())
	}
}

func TestReport(t *testing.T) {
	r := Report{}
	r.add("movies", 3)
	r.add("images", 2)
	r.add("videos", 0)

	if r.Total() != 5 {
		t.Errorf("Total() = %d, want 5", r.Total())
	}
	if got := r.String(); got != "images=2 movies=3" {
		t.Errorf("String() = %q", got)
	}
}
