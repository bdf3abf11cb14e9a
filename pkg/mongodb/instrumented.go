package mongodb

import (
	"context"
	"time"

	"github.com/mes-platform/production-service/pkg/logging"
	"github.com/mes-platform/production-service/pkg/metrics"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedCollection is the subset of collection operations the
// repositories use, each one traced, timed and logged. A no-documents
// result counts as success.
type InstrumentedCollection struct {
	collection *mongo.Collection
	metrics    *metrics.Metrics
	logger     *logging.Logger
	tracer     trace.Tracer
	attrs      []attribute.KeyValue
}

// NewInstrumentedCollection instruments collection. m may be nil.
func NewInstrumentedCollection(collection *mongo.Collection, m *metrics.Metrics, logger *logging.Logger) *InstrumentedCollection {
	return &InstrumentedCollection{
		collection: collection,
		metrics:    m,
		logger:     logger,
		tracer:     otel.Tracer("mongodb"),
		attrs: []attribute.KeyValue{
			semconv.DBSystemMongoDB,
			semconv.DBNameKey.String(collection.Database().Name()),
			semconv.DBMongoDBCollectionKey.String(collection.Name()),
		},
	}
}

// observed runs call in a client span. rows reports how many documents the
// result touched, for the query log.
func observed[T any](ctx context.Context, c *InstrumentedCollection, operation string, call func(context.Context) (T, error), rows func(T) int64) (T, error) {
	ctx, span := c.tracer.Start(ctx, "mongodb."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(c.attrs, semconv.DBOperationKey.String(operation))...),
	)
	defer span.End()

	start := time.Now()
	result, err := call(ctx)
	elapsed := time.Since(start)
	ok := err == nil || IsNotFound(err)

	var n int64
	if err == nil && rows != nil {
		n = rows(result)
	}

	name := c.collection.Name()
	if c.metrics != nil {
		c.metrics.RecordMongoDBOperation(name, operation, ok, elapsed)
	}
	c.logger.DatabaseQuery(ctx, name, operation, elapsed, ok, n)

	if !ok {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func one[T any](T) int64 { return 1 }

func modified(r *mongo.UpdateResult) int64 { return r.ModifiedCount + r.UpsertedCount }

func (c *InstrumentedCollection) InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	return observed(ctx, c, "insertOne", func(ctx context.Context) (*mongo.InsertOneResult, error) {
		return c.collection.InsertOne(ctx, document, opts...)
	}, one[*mongo.InsertOneResult])
}

func (c *InstrumentedCollection) InsertMany(ctx context.Context, documents []any, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	return observed(ctx, c, "insertMany", func(ctx context.Context) (*mongo.InsertManyResult, error) {
		return c.collection.InsertMany(ctx, documents, opts...)
	}, func(r *mongo.InsertManyResult) int64 { return int64(len(r.InsertedIDs)) })
}

// FindOne decodes the first match into out. Absence surfaces as mongo.ErrNoDocuments.
func (c *InstrumentedCollection) FindOne(ctx context.Context, filter, out any, opts ...*options.FindOneOptions) error {
	_, err := observed(ctx, c, "findOne", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.collection.FindOne(ctx, filter, opts...).Decode(out)
	}, one[struct{}])
	return err
}

// FindAll decodes every match into out, which must be a slice pointer
func (c *InstrumentedCollection) FindAll(ctx context.Context, filter, out any, opts ...*options.FindOptions) error {
	_, err := observed(ctx, c, "find", func(ctx context.Context) (struct{}, error) {
		cursor, err := c.collection.Find(ctx, filter, opts...)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, cursor.All(ctx, out)
	}, nil)
	return err
}

// FindOneAndUpdate applies update and decodes the resulting document into out
func (c *InstrumentedCollection) FindOneAndUpdate(ctx context.Context, filter, update, out any, opts ...*options.FindOneAndUpdateOptions) error {
	_, err := observed(ctx, c, "findOneAndUpdate", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.collection.FindOneAndUpdate(ctx, filter, update, opts...).Decode(out)
	}, one[struct{}])
	return err
}

func (c *InstrumentedCollection) ReplaceOne(ctx context.Context, filter, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	return observed(ctx, c, "replaceOne", func(ctx context.Context) (*mongo.UpdateResult, error) {
		return c.collection.ReplaceOne(ctx, filter, replacement, opts...)
	}, modified)
}

func (c *InstrumentedCollection) DeleteMany(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	return observed(ctx, c, "deleteMany", func(ctx context.Context) (*mongo.DeleteResult, error) {
		return c.collection.DeleteMany(ctx, filter, opts...)
	}, func(r *mongo.DeleteResult) int64 { return r.DeletedCount })
}
