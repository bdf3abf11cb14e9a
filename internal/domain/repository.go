package domain

import "context"

// JobPatch is a partial update of a job. Nil fields are left unchanged.
// Events are recorded together with the patch.
type JobPatch struct {
	CurrentStageIndex *int
	ProcessPath       []ProcessStage
	Status            *JobStatus
	Events            []DomainEvent
}

// IsEmpty reports whether the patch changes nothing
func (p JobPatch) IsEmpty() bool {
	return p.CurrentStageIndex == nil && p.ProcessPath == nil && p.Status == nil
}

// ProductionJobRepository defines the interface for production job persistence
type ProductionJobRepository interface {
	// CreateJobs inserts a batch of jobs and returns them with assigned ids
	CreateJobs(ctx context.Context, jobs []*ProductionJob) ([]*ProductionJob, error)

	// ListJobs returns every job sorted by work order and component
	ListJobs(ctx context.Context) ([]*ProductionJob, error)

	// FindByJobID returns ErrJobNotFound when the job does not exist
	FindByJobID(ctx context.Context, jobID string) (*ProductionJob, error)

	// UpdatePartial applies a patch and returns the updated job
	UpdatePartial(ctx context.Context, jobID string, patch JobPatch) (*ProductionJob, error)

	// ApplyTransition writes the job, the optional halt record and the events atomically
	ApplyTransition(ctx context.Context, job *ProductionJob, record *HaltDurationRecord, events []DomainEvent) error

	// DeleteCompleted purges jobs whose terminal stage is completed
	DeleteCompleted(ctx context.Context) (int64, error)
}

// HaltRecordRepository defines the interface for the halt duration ledger
type HaltRecordRepository interface {
	// Append persists one record
	Append(ctx context.Context, record *HaltDurationRecord) error

	// List returns every record, newest first
	List(ctx context.Context) ([]*HaltDurationRecord, error)

	// ListByWorkOrder returns the records of one work order, newest first
	ListByWorkOrder(ctx context.Context, workOrder string) ([]*HaltDurationRecord, error)
}
