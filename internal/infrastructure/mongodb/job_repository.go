package mongodb

import (
	"context"
	"fmt"

	"github.com/mes-platform/production-service/internal/domain"
	"github.com/mes-platform/production-service/pkg/cloudevents"
	"github.com/mes-platform/production-service/pkg/logging"
	"github.com/mes-platform/production-service/pkg/metrics"
	pkgmongo "github.com/mes-platform/production-service/pkg/mongodb"
	"github.com/mes-platform/production-service/pkg/outbox"
	outboxMongo "github.com/mes-platform/production-service/pkg/outbox/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	jobsCollection  = "production_jobs"
	haltsCollection = "halt_durations"
)

// ProductionJobRepository implements domain.ProductionJobRepository using MongoDB
type ProductionJobRepository struct {
	db           *mongo.Database
	collection   *pkgmongo.InstrumentedCollection
	halts        *pkgmongo.InstrumentedCollection
	eventFactory *cloudevents.EventFactory
	outboxRepo   *outboxMongo.OutboxRepository
	logger       *logging.Logger
}

// NewProductionJobRepository creates a new ProductionJobRepository
func NewProductionJobRepository(db *mongo.Database, eventFactory *cloudevents.EventFactory, m *metrics.Metrics, logger *logging.Logger) *ProductionJobRepository {
	collection := db.Collection(jobsCollection)

	_ = pkgmongo.EnsureIndexes(collection,
		mongo.IndexModel{
			Keys:    bson.D{{Key: "jobId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		mongo.IndexModel{Keys: bson.D{{Key: "workOrder", Value: 1}, {Key: "component", Value: 1}}},
		mongo.IndexModel{Keys: bson.D{{Key: "status", Value: 1}}},
	)

	return &ProductionJobRepository{
		db:           db,
		collection:   pkgmongo.NewInstrumentedCollection(collection, m, logger),
		halts:        pkgmongo.NewInstrumentedCollection(db.Collection(haltsCollection), m, logger),
		eventFactory: eventFactory,
		outboxRepo:   outboxMongo.NewOutboxRepository(db),
		logger:       logger.WithComponent("job-repository"),
	}
}

// GetOutboxRepository returns the outbox repository
func (r *ProductionJobRepository) GetOutboxRepository() *outboxMongo.OutboxRepository {
	return r.outboxRepo
}

// CreateJobs inserts the batch and its creation events in one transaction
func (r *ProductionJobRepository) CreateJobs(ctx context.Context, jobs []*domain.ProductionJob) ([]*domain.ProductionJob, error) {
	if len(jobs) == 0 {
		return jobs, nil
	}

	docs := make([]interface{}, len(jobs))
	for i, job := range jobs {
		docs[i] = job
	}

	err := pkgmongo.RunInTransaction(ctx, r.db.Client(), func(sessCtx mongo.SessionContext) error {
		result, err := r.collection.InsertMany(sessCtx, docs)
		if err != nil {
			if pkgmongo.IsDuplicateKey(err) {
				return fmt.Errorf("production job already exists: %w", err)
			}
			return fmt.Errorf("failed to insert production jobs: %w", err)
		}

		var pending []*outbox.OutboxEvent
		for i, job := range jobs {
			if oid, ok := result.InsertedIDs[i].(primitive.ObjectID); ok {
				job.ID = oid
			}
			events, err := toOutboxEvents(sessCtx, r.eventFactory, job.JobID, job.WorkOrder, job.GetDomainEvents())
			if err != nil {
				return err
			}
			pending = append(pending, events...)
		}

		if err := r.outboxRepo.SaveAll(sessCtx, pending); err != nil {
			return fmt.Errorf("failed to save events to outbox: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transaction failed: %w", err)
	}

	return jobs, nil
}

// ListJobs returns every job sorted by work order and component
func (r *ProductionJobRepository) ListJobs(ctx context.Context) ([]*domain.ProductionJob, error) {
	opts := options.Find().SetSort(pkgmongo.SortMultiple(
		pkgmongo.SortField{Field: "workOrder"},
		pkgmongo.SortField{Field: "component"},
	))

	jobs := []*domain.ProductionJob{}
	if err := r.collection.FindAll(ctx, bson.M{}, &jobs, opts); err != nil {
		return nil, fmt.Errorf("failed to list production jobs: %w", err)
	}
	return jobs, nil
}

// FindByJobID finds a job by its job ID
func (r *ProductionJobRepository) FindByJobID(ctx context.Context, jobID string) (*domain.ProductionJob, error) {
	var job domain.ProductionJob
	err := r.collection.FindOne(ctx, bson.M{"jobId": jobID}, &job)
	if pkgmongo.IsNotFound(err) {
		return nil, fmt.Errorf("%s: %w", jobID, domain.ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find production job: %w", err)
	}
	return &job, nil
}

// UpdatePartial sets the patched fields and records the patch events atomically
func (r *ProductionJobRepository) UpdatePartial(ctx context.Context, jobID string, patch domain.JobPatch) (*domain.ProductionJob, error) {
	if patch.IsEmpty() {
		return r.FindByJobID(ctx, jobID)
	}

	set := bson.M{}
	if patch.ProcessPath != nil {
		set["processPath"] = patch.ProcessPath
	}
	if patch.CurrentStageIndex != nil {
		set["currentStageIndex"] = *patch.CurrentStageIndex
	}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}

	var updated domain.ProductionJob
	err := pkgmongo.RunInTransaction(ctx, r.db.Client(), func(sessCtx mongo.SessionContext) error {
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		err := r.collection.FindOneAndUpdate(sessCtx, bson.M{"jobId": jobID}, pkgmongo.BuildUpdateWithTimestamp(set), &updated, opts)
		if pkgmongo.IsNotFound(err) {
			return fmt.Errorf("%s: %w", jobID, domain.ErrJobNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to update production job: %w", err)
		}

		events, err := toOutboxEvents(sessCtx, r.eventFactory, jobID, updated.WorkOrder, patch.Events)
		if err != nil {
			return err
		}
		if err := r.outboxRepo.SaveAll(sessCtx, events); err != nil {
			return fmt.Errorf("failed to save events to outbox: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ApplyTransition replaces the job document, appends the halt record when
// present and saves the events, all in one transaction
func (r *ProductionJobRepository) ApplyTransition(ctx context.Context, job *domain.ProductionJob, record *domain.HaltDurationRecord, events []domain.DomainEvent) error {
	return pkgmongo.RunInTransaction(ctx, r.db.Client(), func(sessCtx mongo.SessionContext) error {
		result, err := r.collection.ReplaceOne(sessCtx, bson.M{"jobId": job.JobID}, job)
		if err != nil {
			return fmt.Errorf("failed to update production job: %w", err)
		}
		if result.MatchedCount == 0 {
			return fmt.Errorf("%s: %w", job.JobID, domain.ErrJobNotFound)
		}

		if record != nil {
			inserted, err := r.halts.InsertOne(sessCtx, record)
			if err != nil {
				return fmt.Errorf("failed to append halt record: %w", err)
			}
			if oid, ok := inserted.InsertedID.(primitive.ObjectID); ok {
				record.ID = oid
			}
		}

		pending, err := toOutboxEvents(sessCtx, r.eventFactory, job.JobID, job.WorkOrder, events)
		if err != nil {
			return err
		}
		if err := r.outboxRepo.SaveAll(sessCtx, pending); err != nil {
			return fmt.Errorf("failed to save events to outbox: %w", err)
		}
		return nil
	})
}

// completedFilter matches jobs whose status or terminal stage is completed
func completedFilter() bson.M {
	return bson.M{"$or": []bson.M{
		{"status": domain.JobStatusCompleted},
		{"$expr": bson.M{"$eq": bson.A{
			bson.M{"$arrayElemAt": bson.A{"$processPath.status", -1}},
			string(domain.StageCompleted),
		}}},
	}}
}

// DeleteCompleted purges completed jobs and records a purge event when any were removed
func (r *ProductionJobRepository) DeleteCompleted(ctx context.Context) (int64, error) {
	var deleted int64
	err := pkgmongo.RunInTransaction(ctx, r.db.Client(), func(sessCtx mongo.SessionContext) error {
		result, err := r.collection.DeleteMany(sessCtx, completedFilter())
		if err != nil {
			return fmt.Errorf("failed to delete completed jobs: %w", err)
		}
		deleted = result.DeletedCount
		if deleted == 0 {
			return nil
		}

		events, err := toOutboxEvents(sessCtx, r.eventFactory, "completed-jobs", "", []domain.DomainEvent{
			&domain.CompletedJobsPurgedEvent{Deleted: deleted, PurgedAt: pkgmongo.Now()},
		})
		if err != nil {
			return err
		}
		return r.outboxRepo.SaveAll(sessCtx, events)
	})
	if err != nil {
		return 0, err
	}

	r.logger.Info("Completed jobs purged", "deleted", deleted)
	return deleted, nil
}
