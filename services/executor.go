package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinical-search-api/internal/telemetry"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrNoDocument is returned by FindOne when nothing matches.
var ErrNoDocument = errors.New("no document")

// Executor runs pipelines and point lookups against named collections.
type Executor interface {
	Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline, results any) error
	FindOne(ctx context.Context, collection string, filter, projection bson.D, result any) error
}

// MongoExecutor is the Executor backed by a MongoDB Atlas database.
type MongoExecutor struct {
	db      *mongo.Database
	metrics *telemetry.Metrics
}

func NewMongoExecutor(db *mongo.Database, metrics *telemetry.Metrics) *MongoExecutor {
	return &MongoExecutor{db: db, metrics: metrics}
}

// Aggregate decodes every result document into results, which must be a
// pointer to a slice.
func (e *MongoExecutor) Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline, results any) error {
	ctx, span := otel.Tracer("mongo-executor").Start(ctx, "mongo.aggregate")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.collection", collection),
		attribute.Int("db.pipeline_stages", len(pipeline)),
	)

	start := time.Now()
	err := e.aggregate(ctx, collection, pipeline, results)
	e.metrics.RecordDatabaseOperation(ctx, "aggregate", collection, err == nil, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregate failed")
	}
	return err
}

func (e *MongoExecutor) aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline, results any) error {
	cursor, err := e.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("aggregate %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, results); err != nil {
		return fmt.Errorf("decode %s results: %w", collection, err)
	}
	return nil
}

func (e *MongoExecutor) FindOne(ctx context.Context, collection string, filter, projection bson.D, result any) error {
	ctx, span := otel.Tracer("mongo-executor").Start(ctx, "mongo.find_one")
	defer span.End()
	span.SetAttributes(attribute.String("db.collection", collection))

	start := time.Now()
	opts := options.FindOne().SetProjection(projection)
	err := e.db.Collection(collection).FindOne(ctx, filter, opts).Decode(result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		err = ErrNoDocument
	} else if err != nil {
		err = fmt.Errorf("find %s: %w", collection, err)
	}
	e.metrics.RecordDatabaseOperation(ctx, "find_one", collection, err == nil || errors.Is(err, ErrNoDocument), time.Since(start).Seconds())
	if err != nil && !errors.Is(err, ErrNoDocument) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "find failed")
	}
	return err
}
