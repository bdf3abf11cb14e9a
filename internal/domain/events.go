package domain

import "time"

// DomainEvent represents a domain event
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// JobCreatedEvent is emitted when a production job is created
type JobCreatedEvent struct {
	JobID      string    `json:"jobId"`
	WorkOrder  string    `json:"workOrder"`
	Department string    `json:"department"`
	Component  string    `json:"component"`
	Material   string    `json:"material"`
	StageCount int       `json:"stageCount"`
	Custom     bool      `json:"custom"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (e *JobCreatedEvent) EventType() string     { return "mes.production.job-created" }
func (e *JobCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// StageStartedEvent is emitted when the current stage goes in-progress
type StageStartedEvent struct {
	JobID      string    `json:"jobId"`
	WorkOrder  string    `json:"workOrder"`
	StageIndex int       `json:"stageIndex"`
	StageID    string    `json:"stageId"`
	StartedAt  time.Time `json:"startedAt"`
}

func (e *StageStartedEvent) EventType() string     { return "mes.production.stage-started" }
func (e *StageStartedEvent) OccurredAt() time.Time { return e.StartedAt }

// StageStoppedEvent is emitted when the current stage is stopped
type StageStoppedEvent struct {
	JobID             string    `json:"jobId"`
	WorkOrder         string    `json:"workOrder"`
	StageIndex        int       `json:"stageIndex"`
	StageID           string    `json:"stageId"`
	InProcessDuration *int64    `json:"inProcessDuration,omitempty"`
	StoppedAt         time.Time `json:"stoppedAt"`
}

func (e *StageStoppedEvent) EventType() string     { return "mes.production.stage-stopped" }
func (e *StageStoppedEvent) OccurredAt() time.Time { return e.StoppedAt }

// StageAdvancedEvent is emitted when a job moves off its current stage
type StageAdvancedEvent struct {
	JobID        string    `json:"jobId"`
	WorkOrder    string    `json:"workOrder"`
	FromIndex    int       `json:"fromIndex"`
	ToIndex      int       `json:"toIndex"`
	FromProcess  string    `json:"fromProcess"`
	ToProcess    string    `json:"toProcess"`
	HaltDuration int64     `json:"haltDuration"`
	AdvancedAt   time.Time `json:"advancedAt"`
}

func (e *StageAdvancedEvent) EventType() string     { return "mes.production.stage-advanced" }
func (e *StageAdvancedEvent) OccurredAt() time.Time { return e.AdvancedAt }

// JobCompletedEvent is emitted when the last stage completes
type JobCompletedEvent struct {
	JobID       string    `json:"jobId"`
	WorkOrder   string    `json:"workOrder"`
	StageCount  int       `json:"stageCount"`
	CompletedAt time.Time `json:"completedAt"`
}

func (e *JobCompletedEvent) EventType() string     { return "mes.production.job-completed" }
func (e *JobCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }

// HaltRecordedEvent is emitted for every halt duration record
type HaltRecordedEvent struct {
	JobID       string    `json:"jobId"`
	WorkOrder   string    `json:"workOrder"`
	Machine     string    `json:"machine"`
	FromProcess string    `json:"fromProcess"`
	ToProcess   string    `json:"toProcess"`
	Duration    int64     `json:"duration"`
	RecordedAt  time.Time `json:"recordedAt"`
}

func (e *HaltRecordedEvent) EventType() string     { return "mes.production.halt-recorded" }
func (e *HaltRecordedEvent) OccurredAt() time.Time { return e.RecordedAt }

// StageRenamedEvent is emitted when a stage display name changes
type StageRenamedEvent struct {
	JobID        string    `json:"jobId"`
	WorkOrder    string    `json:"workOrder"`
	StageID      string    `json:"stageId"`
	PreviousName string    `json:"previousName"`
	Name         string    `json:"name"`
	RenamedAt    time.Time `json:"renamedAt"`
}

func (e *StageRenamedEvent) EventType() string     { return "mes.production.stage-renamed" }
func (e *StageRenamedEvent) OccurredAt() time.Time { return e.RenamedAt }

// CompletedJobsPurgedEvent is emitted after a bulk purge
type CompletedJobsPurgedEvent struct {
	Deleted  int64     `json:"deleted"`
	PurgedAt time.Time `json:"purgedAt"`
}

func (e *CompletedJobsPurgedEvent) EventType() string     { return "mes.production.completed-jobs-purged" }
func (e *CompletedJobsPurgedEvent) OccurredAt() time.Time { return e.PurgedAt }
