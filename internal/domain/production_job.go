package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// JobStatus is denormalised from the terminal stage
type JobStatus string

const (
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
)

// ProductionJob is the aggregate root tracking one work order item through its process path
type ProductionJob struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	JobID             string             `bson:"jobId" json:"jobId"`
	WorkOrder         string             `bson:"workOrder" json:"workOrder"`
	MachineName       string             `bson:"machineName" json:"machineName"`
	RequirementNo     string             `bson:"requirementNo,omitempty" json:"requirementNo,omitempty"`
	Department        string             `bson:"department" json:"department"`
	Component         string             `bson:"component" json:"component"`
	Material          string             `bson:"material" json:"material"`
	Size              string             `bson:"size" json:"size"`
	Custom            bool               `bson:"custom" json:"custom"`
	ProcessPath       []ProcessStage     `bson:"processPath" json:"processPath"`
	CurrentStageIndex int                `bson:"currentStageIndex" json:"currentStageIndex"`
	Status            JobStatus          `bson:"status" json:"status"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
	CompletedAt       *time.Time         `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	DomainEvents      []DomainEvent      `bson:"-" json:"-"`
}

// JobAttributes are the descriptive fields fixed at creation
type JobAttributes struct {
	WorkOrder     string
	MachineName   string
	RequirementNo string
	Department    string
	Component     string
	Material      string
	Size          string
	Custom        bool
}

// Validate checks the mandatory creation fields
func (a JobAttributes) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"workOrder", a.WorkOrder},
		{"machineName", a.MachineName},
		{"department", a.Department},
		{"component", a.Component},
		{"material", a.Material},
		{"size", a.Size},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return NewValidationError(r.field, "is required")
		}
	}
	return nil
}

// NewJobID generates a business job id
func NewJobID() string {
	return "JOB-" + uuid.New().String()[:8]
}

// NewProductionJob creates an active job positioned on its first stage
func NewProductionJob(attrs JobAttributes, stages []ProcessStage, now time.Time) (*ProductionJob, error) {
	if err := attrs.Validate(); err != nil {
		return nil, err
	}
	if len(stages) == 0 {
		return nil, NewValidationError("processPath", "at least one process stage is required")
	}

	seen := make(map[string]bool, len(stages))
	path := make([]ProcessStage, len(stages))
	for i, s := range stages {
		if strings.TrimSpace(s.StageID) == "" {
			return nil, NewValidationError("processPath", "stage id is required")
		}
		if seen[s.StageID] {
			return nil, NewValidationError("processPath", "duplicate stage id "+s.StageID)
		}
		seen[s.StageID] = true
		path[i] = NewProcessStage(s.StageID, s.Name)
	}

	job := &ProductionJob{
		JobID:         NewJobID(),
		WorkOrder:     strings.TrimSpace(attrs.WorkOrder),
		MachineName:   strings.TrimSpace(attrs.MachineName),
		RequirementNo: strings.TrimSpace(attrs.RequirementNo),
		Department:    attrs.Department,
		Component:     attrs.Component,
		Material:      attrs.Material,
		Size:          strings.TrimSpace(attrs.Size),
		Custom:        attrs.Custom,
		ProcessPath:   path,
		Status:        JobStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	job.AddDomainEvent(&JobCreatedEvent{
		JobID:      job.JobID,
		WorkOrder:  job.WorkOrder,
		Department: job.Department,
		Component:  job.Component,
		Material:   job.Material,
		StageCount: len(path),
		Custom:     job.Custom,
		CreatedAt:  now,
	})

	return job, nil
}

// CurrentStage returns the stage at the current index
func (j *ProductionJob) CurrentStage() *ProcessStage {
	if j.CurrentStageIndex < 0 || j.CurrentStageIndex >= len(j.ProcessPath) {
		return nil
	}
	return &j.ProcessPath[j.CurrentStageIndex]
}

// IsLastStage reports whether the current index points at the final stage
func (j *ProductionJob) IsLastStage() bool {
	return j.CurrentStageIndex == len(j.ProcessPath)-1
}

// IsTerminal reports whether the last stage has been completed
func (j *ProductionJob) IsTerminal() bool {
	if len(j.ProcessPath) == 0 {
		return false
	}
	return j.ProcessPath[len(j.ProcessPath)-1].Status == StageCompleted
}

// IsStageDone is the effective completion of stage i. Stages behind the
// current index keep their stored status (usually stop) and are still done.
func (j *ProductionJob) IsStageDone(i int) bool {
	if i < 0 || i >= len(j.ProcessPath) {
		return false
	}
	if i < j.CurrentStageIndex {
		return true
	}
	return i == len(j.ProcessPath)-1 && j.ProcessPath[i].Status == StageCompleted
}

// EffectiveStatus is the status shown for stage i
func (j *ProductionJob) EffectiveStatus(i int) StageStatus {
	if j.IsStageDone(i) {
		return StageCompleted
	}
	return j.ProcessPath[i].Status
}

// Progress returns the number of effectively completed stages and the total
func (j *ProductionJob) Progress() (done, total int) {
	for i := range j.ProcessPath {
		if j.IsStageDone(i) {
			done++
		}
	}
	return done, len(j.ProcessPath)
}

// StageIndex returns the index of the stage with the given id
func (j *ProductionJob) StageIndex(stageID string) (int, bool) {
	for i := range j.ProcessPath {
		if j.ProcessPath[i].StageID == stageID {
			return i, true
		}
	}
	return -1, false
}

// RenameStage changes only the display label of a stage
func (j *ProductionJob) RenameStage(stageID, name string, now time.Time) error {
	idx, ok := j.StageIndex(stageID)
	if !ok {
		return ErrStageNotFound
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return NewValidationError("name", "is required")
	}
	previous := j.ProcessPath[idx].Name
	j.ProcessPath[idx].Name = name
	j.UpdatedAt = now

	j.AddDomainEvent(&StageRenamedEvent{
		JobID:        j.JobID,
		WorkOrder:    j.WorkOrder,
		StageID:      stageID,
		PreviousName: previous,
		Name:         name,
		RenamedAt:    now,
	})
	return nil
}

// CheckInvariants verifies the stage pointer is in range
func (j *ProductionJob) CheckInvariants() error {
	if len(j.ProcessPath) == 0 {
		return NewValidationError("processPath", "at least one process stage is required")
	}
	if j.CurrentStageIndex < 0 || j.CurrentStageIndex >= len(j.ProcessPath) {
		return ErrInvalidStageIndex
	}
	return nil
}

// DeepCopy returns an independent copy without pending domain events
func (j *ProductionJob) DeepCopy() *ProductionJob {
	c := *j
	c.ProcessPath = make([]ProcessStage, len(j.ProcessPath))
	for i, s := range j.ProcessPath {
		c.ProcessPath[i] = s.clone()
	}
	c.CompletedAt = copyTime(j.CompletedAt)
	c.DomainEvents = nil
	return &c
}

// AddDomainEvent adds a domain event
func (j *ProductionJob) AddDomainEvent(event DomainEvent) {
	j.DomainEvents = append(j.DomainEvents, event)
}

// ClearDomainEvents clears all domain events
func (j *ProductionJob) ClearDomainEvents() {
	j.DomainEvents = nil
}

// GetDomainEvents returns all domain events
func (j *ProductionJob) GetDomainEvents() []DomainEvent {
	return j.DomainEvents
}
