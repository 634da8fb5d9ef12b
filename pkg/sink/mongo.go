package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/tmdb-ingest/pkg/logging"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSink writes loads into a MongoDB database.
type MongoSink struct {
	client *mongo.Client
	db     *mongo.Database
	logger zerolog.Logger
}

// NewMongoSink connects to uri and verifies the connection.
func NewMongoSink(ctx context.Context, uri, database string) (*MongoSink, error) {
	if database == "" {
		return nil, fmt.Errorf("mongo database name is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &MongoSink{
		client: client,
		db:     client.Database(database),
		logger: logging.NewLogger("sink"),
	}, nil
}

// Write splits the batch and inserts each collection. Genres are upserted
// by id. Inserts are unordered: one bad document does not stop the rest.
func (s *MongoSink) Write(ctx context.Context, load Load) (Report, error) {
	docs := Split(load.Batch, load.Type, load.Year)
	for _, skip := range docs.Skipped {
		payloadsSkippedTotal.WithLabelValues(string(skip.Resource)).Inc()
		s.logger.Error().
			Err(skip.Err).
			Int64("id", skip.ID).
			Str("resource", string(skip.Resource)).
			Msg("Payload dropped")
	}

	report := Report{}
	steps := []struct {
		collection string
		docs       []bson.M
	}{
		{load.Type.Collection(), docs.Items},
		{CollectionCredits, docs.Credits},
		{CollectionImages, docs.Images},
		{CollectionVideos, docs.Videos},
	}

	for _, step := range steps {
		n, err := s.insert(ctx, step.collection, step.docs)
		report.add(step.collection, n)
		if err != nil {
			return report, err
		}
	}

	n, err := s.upsertGenres(ctx, load)
	report.add(CollectionGenres, n)
	if err != nil {
		return report, err
	}

	s.logger.Info().
		Str("type", load.Type.String()).
		Int("year", load.Year).
		Int("documents", report.Total()).
		Int("skipped", len(docs.Skipped)).
		Str("collections", report.String()).
		Msg("Batch stored")

	return report, nil
}

func (s *MongoSink) insert(ctx context.Context, collection string, docs []bson.M) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	batch := make([]any, len(docs))
	for i, d := range docs {
		batch[i] = d
	}

	res, err := s.db.Collection(collection).InsertMany(ctx, batch, options.InsertMany().SetOrdered(false))
	inserted := 0
	if res != nil {
		inserted = len(res.InsertedIDs)
	}
	if err != nil {
		return inserted, fmt.Errorf("insert into %s: %w", collection, err)
	}
	return inserted, nil
}

func (s *MongoSink) upsertGenres(ctx context.Context, load Load) (int, error) {
	if len(load.Genres) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, 0, len(load.Genres))
	for _, g := range load.Genres {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"id": g.ID, "type": string(load.Type)}).
			SetReplacement(bson.M{"id": g.ID, "name": g.Name, "type": string(load.Type)}).
			SetUpsert(true))
	}

	res, err := s.db.Collection(CollectionGenres).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("upsert genres: %w", err)
	}
	return int(res.UpsertedCount + res.ModifiedCount), nil
}

// Close disconnects from MongoDB.
func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
