package mongodb

import (
	"context"
	"fmt"

	"github.com/mes-platform/production-service/internal/domain"
	"github.com/mes-platform/production-service/pkg/cloudevents"
	"github.com/mes-platform/production-service/pkg/logging"
	"github.com/mes-platform/production-service/pkg/metrics"
	pkgmongo "github.com/mes-platform/production-service/pkg/mongodb"
	outboxMongo "github.com/mes-platform/production-service/pkg/outbox/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// HaltRecordRepository implements domain.HaltRecordRepository using MongoDB
type HaltRecordRepository struct {
	db           *mongo.Database
	collection   *pkgmongo.InstrumentedCollection
	eventFactory *cloudevents.EventFactory
	outboxRepo   *outboxMongo.OutboxRepository
}

// NewHaltRecordRepository creates a new HaltRecordRepository
func NewHaltRecordRepository(db *mongo.Database, eventFactory *cloudevents.EventFactory, m *metrics.Metrics, logger *logging.Logger) *HaltRecordRepository {
	collection := db.Collection(haltsCollection)

	_ = pkgmongo.EnsureIndexes(collection,
		mongo.IndexModel{Keys: bson.D{{Key: "workOrder", Value: 1}, {Key: "createdAt", Value: -1}}},
		mongo.IndexModel{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	)

	return &HaltRecordRepository{
		db:           db,
		collection:   pkgmongo.NewInstrumentedCollection(collection, m, logger),
		eventFactory: eventFactory,
		outboxRepo:   outboxMongo.NewOutboxRepository(db),
	}
}

// Append inserts a record and its halt-recorded event
func (r *HaltRecordRepository) Append(ctx context.Context, record *domain.HaltDurationRecord) error {
	return pkgmongo.RunInTransaction(ctx, r.db.Client(), func(sessCtx mongo.SessionContext) error {
		result, err := r.collection.InsertOne(sessCtx, record)
		if err != nil {
			return fmt.Errorf("failed to append halt record: %w", err)
		}
		if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
			record.ID = oid
		}

		events, err := toOutboxEvents(sessCtx, r.eventFactory, record.JobID, record.WorkOrder, []domain.DomainEvent{
			&domain.HaltRecordedEvent{
				JobID:       record.JobID,
				WorkOrder:   record.WorkOrder,
				Machine:     record.Machine,
				FromProcess: record.FromProcess,
				ToProcess:   record.ToProcess,
				Duration:    record.Duration,
				RecordedAt:  record.CreatedAt,
			},
		})
		if err != nil {
			return err
		}
		return r.outboxRepo.SaveAll(sessCtx, events)
	})
}

// List returns every record, newest first
func (r *HaltRecordRepository) List(ctx context.Context) ([]*domain.HaltDurationRecord, error) {
	return r.find(ctx, bson.M{})
}

// ListByWorkOrder returns the records of one work order, newest first
func (r *HaltRecordRepository) ListByWorkOrder(ctx context.Context, workOrder string) ([]*domain.HaltDurationRecord, error) {
	return r.find(ctx, bson.M{"workOrder": workOrder})
}

func (r *HaltRecordRepository) find(ctx context.Context, filter bson.M) ([]*domain.HaltDurationRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	records := []*domain.HaltDurationRecord{}
	if err := r.collection.FindAll(ctx, filter, &records, opts); err != nil {
		return nil, fmt.Errorf("failed to find halt records: %w", err)
	}
	return records, nil
}
