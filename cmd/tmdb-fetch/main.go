// Command tmdb-fetch ingests one year of the TMDB catalog: it discovers
// item IDs month by month, fetches details, credits, images and videos per
// item, stores the batch and advances the year checkpoint.
//
// Usage:
//
//	tmdb-fetch run --type movies --year 2024 [--months 1,2] [--out file.json]
//	               [--resume] [--dry-run] [--metrics-addr :9090]
//	               [--config config.yaml] [--env-file .env]
//
// A year of 0 reads the year from the checkpoint store. Exit codes: 0 on
// success, 1 when the run failed, 2 on usage errors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Sternrassler/tmdb-ingest/pkg/catalog"
	"github.com/Sternrassler/tmdb-ingest/pkg/checkpoint"
	"github.com/Sternrassler/tmdb-ingest/pkg/client"
	"github.com/Sternrassler/tmdb-ingest/pkg/config"
	"github.com/Sternrassler/tmdb-ingest/pkg/details"
	"github.com/Sternrassler/tmdb-ingest/pkg/logging"
	"github.com/Sternrassler/tmdb-ingest/pkg/metrics"
	"github.com/Sternrassler/tmdb-ingest/pkg/pagination"
	"github.com/Sternrassler/tmdb-ingest/pkg/sink"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// errUsage marks command line errors.
var errUsage = errors.New("usage error")

type options struct {
	itemType    catalog.ItemType
	year        int
	months      []int
	out         string
	resume      bool
	dryRun      bool
	metricsAddr string
	configFile  string
	envFile     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	cfg, err := config.Load(config.LoadOptions{ConfigFile: opts.configFile, EnvFile: opts.envFile})
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return exitError
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: stderr,
		File: logging.FileConfig{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		},
	})
	defer logging.Close()

	// Every component logger derives from the global logger, so the run id
	// must be attached before any component is constructed.
	runID := uuid.NewString()
	log.Logger = log.Logger.With().Str("run_id", runID).Logger()
	logger := logging.NewLogger("tmdb-fetch")

	if err := execute(ctx, cfg, opts, logger); err != nil {
		logger.Error().Err(err).Msg("Run failed")
		if errors.Is(err, errUsage) {
			return exitUsage
		}
		return exitError
	}
	return exitOK
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	if len(args) == 0 || args[0] != "run" {
		return options{}, fmt.Errorf("%w: expected command \"run\"", errUsage)
	}

	fs := flag.NewFlagSet("tmdb-fetch run", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		opts     options
		itemType string
		months   string
	)
	fs.StringVar(&itemType, "type", string(catalog.Movie), "item type: movies or tv_shows")
	fs.IntVar(&opts.year, "year", 0, "year to ingest; 0 reads the checkpoint")
	fs.StringVar(&months, "months", "", "comma separated months to fetch (default all)")
	fs.StringVar(&opts.out, "out", "", "write the batch to this JSON file instead of MongoDB")
	fs.BoolVar(&opts.resume, "resume", false, "reuse the stored ID sequence instead of discovering")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "discover IDs only; fetch no details and write nothing")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fs.StringVar(&opts.configFile, "config", "", "YAML config file")
	fs.StringVar(&opts.envFile, "env-file", ".env", "dotenv file")

	if err := fs.Parse(args[1:]); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}

	t, err := catalog.ParseItemType(itemType)
	if err != nil {
		return options{}, fmt.Errorf("%w: %v", errUsage, err)
	}
	opts.itemType = t

	if opts.year < 0 {
		return options{}, fmt.Errorf("%w: invalid year %d", errUsage, opts.year)
	}

	if months != "" {
		for _, m := range strings.Split(months, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(m))
			if err != nil || n < 1 || n > 12 {
				return options{}, fmt.Errorf("%w: invalid month %q", errUsage, m)
			}
			opts.months = append(opts.months, n)
		}
	}

	return opts, nil
}

// execute sequences discover -> details -> sink -> checkpoint.
func execute(ctx context.Context, cfg *config.Config, opts options, logger zerolog.Logger) error {
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	var store *checkpoint.Store
	if cfg.Redis.Addr != "" {
		store = checkpoint.NewStore(checkpoint.NewRedisClient(cfg.Redis))
		defer store.Close()

		if err := store.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("Checkpoint store unavailable")
			store = nil
		}
	}

	year, err := resolveYear(ctx, store, opts)
	if err != nil {
		return err
	}

	logger.Info().
		Str("type", opts.itemType.String()).
		Int("year", year).
		Ints("months", opts.months).
		Bool("resume", opts.resume).
		Bool("dry_run", opts.dryRun).
		Msg("Starting run")

	tmdb, err := client.New(client.ConfigFrom(cfg))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer tmdb.Close()

	var out sink.Sink = sink.Discard{}
	if !opts.dryRun {
		if out, err = openSink(ctx, cfg, opts); err != nil {
			return err
		}
		defer out.Close(context.Background())
	}

	ids, err := discoverIDs(ctx, cfg, opts, year, tmdb, store, logger)
	if err != nil {
		return err
	}

	if opts.dryRun {
		logger.Info().Int("ids", len(ids)).Msg("Dry run complete")
		return nil
	}

	genres, err := tmdb.Genres(ctx, opts.itemType)
	if err != nil {
		logger.Warn().Err(err).Msg("Genre list unavailable")
	}

	fetcher := details.NewFetcher(tmdb, opts.itemType, client.RetryPolicyFrom(cfg))
	batch, summary := details.NewOrchestrator(fetcher, cfg.Fetch.DetailConcurrency).FetchAll(ctx, ids)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("fetch details: %w", err)
	}

	report, err := out.Write(ctx, sink.Load{
		Type:   opts.itemType,
		Year:   year,
		Batch:  batch,
		Genres: genres,
	})
	if err != nil {
		return fmt.Errorf("store batch: %w", err)
	}

	if store != nil && opts.months == nil {
		if err := store.SetYear(ctx, opts.itemType, year-1); err != nil {
			logger.Warn().Err(err).Msg("Year checkpoint not advanced")
		}
	}

	logger.Info().
		Int("year", year).
		Int("ids", len(ids)).
		Int("fetched", summary.Fetched).
		Int("failed", summary.Failed).
		Int("degraded", summary.Degraded).
		Int("documents", report.Total()).
		Msg("Run complete")

	return nil
}

func resolveYear(ctx context.Context, store *checkpoint.Store, opts options) (int, error) {
	if opts.year > 0 {
		return opts.year, nil
	}
	if store == nil {
		return 0, fmt.Errorf("%w: --year is required without a checkpoint store", errUsage)
	}

	year, err := store.Year(ctx, opts.itemType)
	if err != nil {
		return 0, fmt.Errorf("read year checkpoint: %w", err)
	}
	return year, nil
}

func discoverIDs(ctx context.Context, cfg *config.Config, opts options, year int, tmdb *client.Client, store *checkpoint.Store, logger zerolog.Logger) (catalog.IDSequence, error) {
	if opts.resume {
		if store == nil {
			return nil, fmt.Errorf("%w: --resume needs a checkpoint store", errUsage)
		}
		ids, err := store.LoadIDs(ctx, opts.itemType, year)
		if err != nil {
			return nil, fmt.Errorf("load stored IDs: %w", err)
		}
		logger.Info().Int("ids", len(ids)).Msg("Resuming with stored IDs")
		return ids, nil
	}

	windows := catalog.Partition(year)
	if opts.months != nil {
		var err error
		if windows, err = catalog.SelectMonths(year, opts.months); err != nil {
			return nil, fmt.Errorf("%w: %v", errUsage, err)
		}
	}

	collector := pagination.NewCollector(pagination.NewScheduler(tmdb, pagination.ConfigFrom(cfg)))
	result, err := collector.CollectWindows(ctx, windows, opts.itemType)
	if err != nil {
		return nil, fmt.Errorf("discover IDs: %w", err)
	}

	// The stored sequence is the full year; a months subset must not replace it.
	if store != nil && !opts.dryRun && opts.months == nil {
		if err := store.SaveIDs(ctx, opts.itemType, year, result.IDs, 0); err != nil {
			logger.Warn().Err(err).Msg("ID sequence not stored")
		}
	}
	return result.IDs, nil
}

func openSink(ctx context.Context, cfg *config.Config, opts options) (sink.Sink, error) {
	if opts.out != "" {
		return sink.NewFileSink(opts.out), nil
	}
	if !cfg.Mongo.Enabled() {
		return nil, fmt.Errorf("%w: no sink configured (set MONGO_HOST and MONGO_DB or pass --out)", errUsage)
	}

	s, err := sink.NewMongoSink(ctx, cfg.Mongo.URI(), cfg.Mongo.Database)
	if err != nil {
		return nil, fmt.Errorf("open mongo sink: %w", err)
	}
	return s, nil
}
