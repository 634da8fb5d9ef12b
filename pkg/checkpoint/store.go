package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/tmdb-ingest/pkg/catalog"
	"github.com/Sternrassler/tmdb-ingest/pkg/config"
	"github.com/Sternrassler/tmdb-ingest/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound indicates the requested checkpoint does not exist
	ErrNotFound = errors.New("checkpoint not found")

	// ErrInvalidValue indicates a stored value could not be parsed
	ErrInvalidValue = errors.New("invalid checkpoint value")
)

// Store reads and writes checkpoints in Redis.
type Store struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewStore creates a new checkpoint store with Redis backend.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Store{
		redis:  redisClient,
		logger: logging.NewLogger("checkpoint"),
	}
}

// NewRedisClient creates the Redis client described by cfg.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Year returns the year cursor of itemType.
// Returns ErrNotFound if no cursor was stored yet.
func (s *Store) Year(ctx context.Context, itemType catalog.ItemType) (int, error) {
	key := YearKey(itemType)

	value, err := s.redis.Get(ctx, key.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CheckpointOps.WithLabelValues("get_year", "miss").Inc()
			return 0, ErrNotFound
		}
		CheckpointErrors.WithLabelValues("get_year").Inc()
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}

	year, err := strconv.Atoi(value)
	if err != nil {
		CheckpointErrors.WithLabelValues("get_year").Inc()
		return 0, fmt.Errorf("%w: %s = %q", ErrInvalidValue, key, value)
	}

	CheckpointOps.WithLabelValues("get_year", "ok").Inc()
	return year, nil
}

// SetYear stores the year cursor of itemType.
func (s *Store) SetYear(ctx context.Context, itemType catalog.ItemType, year int) error {
	key := YearKey(itemType)

	if err := s.redis.Set(ctx, key.String(), year, 0).Err(); err != nil {
		CheckpointErrors.WithLabelValues("set_year").Inc()
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	CheckpointOps.WithLabelValues("set_year", "ok").Inc()
	s.logger.Info().
		Str("type", itemType.String()).
		Int("year", year).
		Msg("Year checkpoint stored")
	return nil
}

// SaveIDs replaces the ID sequence of (itemType, year). Order and
// duplicates are kept. A ttl of 0 keeps the sequence until overwritten.
func (s *Store) SaveIDs(ctx context.Context, itemType catalog.ItemType, year int, ids catalog.IDSequence, ttl time.Duration) error {
	key := IDsKey(itemType, year).String()

	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
			if ttl > 0 {
				pipe.Expire(ctx, key, ttl)
			}
		}
		return nil
	})
	if err != nil {
		CheckpointErrors.WithLabelValues("save_ids").Inc()
		return fmt.Errorf("redis save %s: %w", key, err)
	}

	CheckpointOps.WithLabelValues("save_ids", "ok").Inc()
	StoredIDs.WithLabelValues(itemType.String()).Set(float64(len(ids)))
	s.logger.Info().
		Str("key", key).
		Int("ids", len(ids)).
		Msg("ID sequence stored")
	return nil
}

// LoadIDs returns the ID sequence of (itemType, year).
// Returns ErrNotFound if none was stored.
func (s *Store) LoadIDs(ctx context.Context, itemType catalog.ItemType, year int) (catalog.IDSequence, error) {
	key := IDsKey(itemType, year).String()

	values, err := s.redis.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		CheckpointErrors.WithLabelValues("load_ids").Inc()
		return nil, fmt.Errorf("redis lrange %s: %w", key, err)
	}
	if len(values) == 0 {
		CheckpointOps.WithLabelValues("load_ids", "miss").Inc()
		return nil, ErrNotFound
	}

	ids := make(catalog.IDSequence, len(values))
	for i, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			CheckpointErrors.WithLabelValues("load_ids").Inc()
			return nil, fmt.Errorf("%w: %s[%d] = %q", ErrInvalidValue, key, i, v)
		}
		ids[i] = id
	}

	CheckpointOps.WithLabelValues("load_ids", "ok").Inc()
	return ids, nil
}

// Close closes the underlying Redis client.
func (s *Store) Close() error {
	return s.redis.Close()
}
