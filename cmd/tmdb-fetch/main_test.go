package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Sternrassler/tmdb-ingest/internal/testutil"
	"github.com/Sternrassler/tmdb-ingest/pkg/catalog"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, o options)
	}{
		{
			name: "defaults",
			args: []string{"run"},
			check: func(t *testing.T, o options) {
				if o.itemType != catalog.Movie || o.year != 0 || o.months != nil {
					t.Errorf("unexpected defaults: %+v", o)
				}
			},
		},
		{
			name: "all flags",
			args: []string{"run", "--type", "tv_shows", "--year", "2021", "--months", "1, 12", "--out", "x.json", "--resume", "--dry-run", "--metrics-addr", ":9090"},
			check: func(t *testing.T, o options) {
				if o.itemType != catalog.TVShow || o.year != 2021 || o.out != "x.json" || !o.resume || !o.dryRun || o.metricsAddr != ":9090" {
					t.Errorf("unexpected options: %+v", o)
				}
				if len(o.months) != 2 || o.months[0] != 1 || o.months[1] != 12 {
					t.Errorf("months = %v", o.months)
				}
			},
		},
		{name: "missing command", args: nil, wantErr: true},
		{name: "unknown command", args: []string{"fetch"}, wantErr: true},
		{name: "bad type", args: []string{"run", "--type", "books"}, wantErr: true},
		{name: "bad month", args: []string{"run", "--months", "13"}, wantErr: true},
		{name: "negative year", args: []string{"run", "--year", "-1"}, wantErr: true},
		{name: "extra argument", args: []string{"run", "now"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseArgs(tt.args, &bytes.Buffer{})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, o)
		})
	}
}

func TestParseArgs_UsageErrorsAreMarked(t *testing.T) {
	_, err := parseArgs([]string{"run", "--type", "books"}, &bytes.Buffer{})
	if !errors.Is(err, errUsage) {
		t.Errorf("expected errUsage, got %v", err)
	}
}

// isolateEnv clears variables that would point the command at real services.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"REDIS_ADDR", "MONGO_HOST", "MONGO_DB", "METRICS_ADDR", "LOG_FILE"} {
		t.Setenv(k, "")
	}
	t.Setenv("TMDB_API_KEY", "test-key")
	t.Setenv("FETCH_PAGE_PACE", "1ms")
	t.Setenv("LOG_LEVEL", "error")
}

func TestRun_ExitCodes(t *testing.T) {
	isolateEnv(t)

	tests := []struct {
		name string
		args []string
		env  map[string]string
		want int
	}{
		{name: "usage", args: []string{"bogus"}, want: exitUsage},
		{name: "help", args: []string{"run", "-h"}, want: exitOK},
		{name: "year required without checkpoint", args: []string{"run", "--out", "x.json"}, want: exitUsage},
		{name: "no sink", args: []string{"run", "--year", "2024"}, want: exitUsage},
		{name: "resume without checkpoint", args: []string{"run", "--year", "2024", "--resume", "--dry-run"}, want: exitUsage},
		{name: "missing api key", args: []string{"run", "--year", "2024"}, env: map[string]string{"TMDB_API_KEY": ""}, want: exitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if got := run(context.Background(), tt.args, &bytes.Buffer{}); got != tt.want {
				t.Errorf("exit code = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRun_FileSinkEndToEnd(t *testing.T) {
	isolateEnv(t)

	mock := testutil.NewMockTMDB()
	defer mock.Close()
	mock.SetDiscover("/discover/movie", 1, map[int][]int64{1: {10, 11}})
	mock.SetItem("/movie/10", 10)
	mock.SetItem("/movie/11", 11)
	mock.SetResponse("/genre/movie/list", testutil.NewJSONResponse(`{"genres":[{"id":28,"name":"Action"}]}`))
	t.Setenv("TMDB_BASE_URL", mock.URL())

	out := filepath.Join(t.TempDir(), "movies.json")
	args := []string{"run", "--type", "movies", "--year", "2024", "--months", "1", "--out", out}

	if code := run(context.Background(), args, &bytes.Buffer{}); code != exitOK {
		t.Fatalf("exit code = %d, want 0", code)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	var doc struct {
		Year    int `json:"year"`
		Genres  []struct{ Name string }
		Results []struct {
			ID     int64           `json:"id"`
			Videos json.RawMessage `json:"videos"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if doc.Year != 2024 || len(doc.Results) != 2 || len(doc.Genres) != 1 {
		t.Fatalf("unexpected output: %s", data)
	}
	if doc.Results[0].ID != 10 || doc.Results[1].ID != 11 {
		t.Errorf("results out of order: %+v", doc.Results)
	}
}

func TestRun_DryRunFetchesNoDetails(t *testing.T) {
	isolateEnv(t)

	mock := testutil.NewMockTMDB()
	defer mock.Close()
	mock.SetDiscover("/discover/tv", 1, map[int][]int64{1: {5}})
	t.Setenv("TMDB_BASE_URL", mock.URL())

	args := []string{"run", "--type", "tv_shows", "--year", "2024", "--months", "3", "--dry-run"}
	if code := run(context.Background(), args, &bytes.Buffer{}); code != exitOK {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if got := mock.GetPrefixCount("/tv/"); got != 0 {
		t.Errorf("dry run requested %d detail resources", got)
	}
}
