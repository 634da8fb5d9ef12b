//go:build integration

package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/Sternrassler/tmdb-ingest/pkg/catalog"
	"github.com/Sternrassler/tmdb-ingest/pkg/client"
	"github.com/Sternrassler/tmdb-ingest/pkg/details"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
)

// setupMongo creates a MongoDB container and returns its URI.
func setupMongo(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start MongoDB container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "27017")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return fmt.Sprintf("mongodb://%s:%s", host, port.Port())
}

func TestMongoSink_Write(t *testing.T) {
	ctx := context.Background()

	s, err := NewMongoSink(ctx, setupMongo(t), "tmdb_test")
	if err != nil {
		t.Fatalf("NewMongoSink failed: %v", err)
	}
	defer s.Close(ctx)

	load := Load{
		Type:   catalog.Movie,
		Year:   2024,
		Batch:  testBatch(),
		Genres: []client.Genre{{ID: 28, Name: "Action"}, {ID: 18, Name: "Drama"}},
	}

	report, err := s.Write(ctx, load)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	want := Report{"movies": 2, "credits": 1, "images": 1, "videos": 2, "genres": 2}
	for k, v := range want {
		if report[k] != v {
			t.Errorf("report[%s] = %d, want %d", k, report[k], v)
		}
	}

	n, err := s.db.Collection("images").CountDocuments(ctx, bson.M{"movie_id": 1})
	if err != nil || n != 1 {
		t.Errorf("images with movie_id=1: %d (err %v)", n, err)
	}

	// Genres are upserted, a second write does not duplicate them.
	if _, err := s.Write(ctx, Load{Type: catalog.Movie, Year: 2024, Genres: load.Genres}); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}
	n, err = s.db.Collection("genres").CountDocuments(ctx, bson.M{})
	if err != nil || n != 2 {
		t.Errorf("genres = %d, want 2 (err %v)", n, err)
	}
}

func TestMongoSink_WriteSkipsBadPayload(t *testing.T) {
	ctx := context.Background()

	s, err := NewMongoSink(ctx, setupMongo(t), "tmdb_skip_test")
	if err != nil {
		t.Fatalf("NewMongoSink failed: %v", err)
	}
	defer s.Close(ctx)

	batch := details.Batch{
		{ID: 1, Details: json.RawMessage(`{"id":1}`), Credits: json.RawMessage(`{"id":1,"cast":[]}`)},
		{ID: 2, Details: json.RawMessage(`{"id":2}`), Credits: json.RawMessage(`[1,2]`)},
	}

	report, err := s.Write(ctx, Load{Type: catalog.Movie, Year: 2024, Batch: batch})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if report["movies"] != 2 || report["credits"] != 1 {
		t.Errorf("report = %v, want movies=2 credits=1", report)
	}
}
