package mongodb

import (
	"context"
	"fmt"

	pkgmongo "github.com/mes-platform/production-service/pkg/mongodb"
	"github.com/mes-platform/production-service/pkg/outbox"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollectionName is the outbox collection shared by every aggregate
const DefaultCollectionName = "outbox_events"

// publishedTTL keeps delivered events around for a week
const publishedTTL int32 = 7 * 24 * 60 * 60

// OutboxRepository implements outbox.Repository for MongoDB
type OutboxRepository struct {
	collection *mongo.Collection
}

// NewOutboxRepository creates a new MongoDB outbox repository
func NewOutboxRepository(db *mongo.Database) *OutboxRepository {
	return &OutboxRepository{collection: db.Collection(DefaultCollectionName)}
}

// SaveAll inserts events in one write. Pass a session context to make the
// insert part of the aggregate's transaction.
func (r *OutboxRepository) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(events))
	for _, event := range events {
		docs = append(docs, event)
	}

	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to save outbox events: %w", err)
	}
	return nil
}

// FindUnpublished returns pending events under their retry limit, oldest first
func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	filter := bson.M{
		"publishedAt": bson.M{"$exists": false},
		"$expr":       bson.M{"$lt": bson.A{"$retryCount", "$maxRetries"}},
	}
	return r.find(ctx, filter, int64(limit))
}

// FindByAggregateID returns every event recorded for one aggregate, oldest first
func (r *OutboxRepository) FindByAggregateID(ctx context.Context, aggregateID string) ([]*outbox.OutboxEvent, error) {
	return r.find(ctx, bson.M{"aggregateId": aggregateID}, 0)
}

func (r *OutboxRepository) find(ctx context.Context, filter bson.M, limit int64) ([]*outbox.OutboxEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find outbox events: %w", err)
	}
	defer cursor.Close(ctx)

	events := []*outbox.OutboxEvent{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode outbox events: %w", err)
	}
	return events, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	return r.updateEvent(ctx, eventID, bson.M{"$set": bson.M{"publishedAt": pkgmongo.Now()}})
}

// IncrementRetry bumps retryCount and records the failure
func (r *OutboxRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	return r.updateEvent(ctx, eventID, bson.M{
		"$inc": bson.M{"retryCount": 1},
		"$set": bson.M{"lastError": errorMsg},
	})
}

func (r *OutboxRepository) updateEvent(ctx context.Context, eventID string, update bson.M) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": eventID}, update)
	if err != nil {
		return fmt.Errorf("failed to update outbox event %s: %w", eventID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("outbox event not found: %s", eventID)
	}
	return nil
}

// EnsureIndexes creates the polling, per-aggregate and TTL indexes
func (r *OutboxRepository) EnsureIndexes() error {
	err := pkgmongo.EnsureIndexes(r.collection,
		mongo.IndexModel{
			Keys:    bson.D{{Key: "publishedAt", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_pending"),
		},
		mongo.IndexModel{
			Keys:    bson.D{{Key: "aggregateId", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_aggregate"),
		},
		mongo.IndexModel{
			Keys:    bson.D{{Key: "publishedAt", Value: 1}},
			Options: options.Index().SetName("idx_published_ttl").SetExpireAfterSeconds(publishedTTL),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox indexes: %w", err)
	}
	return nil
}
