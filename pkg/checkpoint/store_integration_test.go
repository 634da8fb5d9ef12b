//go:build integration

package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/tmdb-ingest/pkg/catalog"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	t.Cleanup(func() {
		redisClient.Close()
		container.Terminate(ctx)
	})

	return redisClient
}

func TestStore_YearCursor(t *testing.T) {
	store := NewStore(setupRedis(t))
	ctx := context.Background()

	if _, err := store.Year(ctx, catalog.Movie); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.SetYear(ctx, catalog.Movie, 2023); err != nil {
		t.Fatalf("SetYear failed: %v", err)
	}

	year, err := store.Year(ctx, catalog.Movie)
	if err != nil {
		t.Fatalf("Year failed: %v", err)
	}
	if year != 2023 {
		t.Errorf("year = %d, want 2023", year)
	}

	if _, err := store.Year(ctx, catalog.TVShow); !errors.Is(err, ErrNotFound) {
		t.Errorf("cursors must be per type, got %v", err)
	}
}

func TestStore_YearInvalidValue(t *testing.T) {
	client := setupRedis(t)
	store := NewStore(client)
	ctx := context.Background()

	client.Set(ctx, YearKey(catalog.TVShow).String(), "not-a-year", 0)

	if _, err := store.Year(ctx, catalog.TVShow); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue, got %v", err)
	}
}

func TestStore_IDSequence(t *testing.T) {
	store := NewStore(setupRedis(t))
	ctx := context.Background()

	ids := catalog.IDSequence{5, 3, 3, 9}
	if err := store.SaveIDs(ctx, catalog.TVShow, 2024, ids, time.Hour); err != nil {
		t.Fatalf("SaveIDs failed: %v", err)
	}

	got, err := store.LoadIDs(ctx, catalog.TVShow, 2024)
	if err != nil {
		t.Fatalf("LoadIDs failed: %v", err)
	}
	if len(got) != len(ids) {
		t.Fatalf("LoadIDs = %v, want %v", got, ids)
	}
	for i := range ids {
		if got[i] != ids[i] {
			t.Errorf("ids[%d] = %d, want %d", i, got[i], ids[i])
		}
	}

	// Saving again replaces the sequence.
	if err := store.SaveIDs(ctx, catalog.TVShow, 2024, catalog.IDSequence{1}, 0); err != nil {
		t.Fatalf("SaveIDs failed: %v", err)
	}
	got, _ = store.LoadIDs(ctx, catalog.TVShow, 2024)
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("LoadIDs after overwrite = %v, want [1]", got)
	}

	if _, err := store.LoadIDs(ctx, catalog.TVShow, 2023); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown year, got %v", err)
	}
}
