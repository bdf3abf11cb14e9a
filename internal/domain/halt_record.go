package domain

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CompletedProcessName is the toProcess label when advancing off the last stage
const CompletedProcessName = "Completed"

// HaltDurationRecord is an append-only audit of the gap between stop and advance.
// Descriptive fields are copied from the job at the time of the halt.
type HaltDurationRecord struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	JobID       string             `bson:"jobId,omitempty" json:"jobId,omitempty"`
	WorkOrder   string             `bson:"workOrder" json:"workOrder"`
	Machine     string             `bson:"machine" json:"machine"`
	Type        string             `bson:"type" json:"type"`
	Component   string             `bson:"component" json:"component"`
	FromProcess string             `bson:"fromProcess" json:"fromProcess"`
	ToProcess   string             `bson:"toProcess" json:"toProcess"`
	Duration    int64              `bson:"duration" json:"duration"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
}

// NewHaltDurationRecord builds the record for an advance of job
func NewHaltDurationRecord(job *ProductionJob, fromProcess, toProcess string, duration int64, now time.Time) *HaltDurationRecord {
	if duration < 0 {
		duration = 0
	}
	return &HaltDurationRecord{
		JobID:       job.JobID,
		WorkOrder:   job.WorkOrder,
		Machine:     job.Department,
		Type:        job.Component,
		Component:   job.Material,
		FromProcess: fromProcess,
		ToProcess:   toProcess,
		Duration:    duration,
		CreatedAt:   now,
	}
}

// Validate checks a record submitted from outside the tracker
func (r *HaltDurationRecord) Validate() error {
	if strings.TrimSpace(r.WorkOrder) == "" {
		return NewValidationError("workOrder", "is required")
	}
	if strings.TrimSpace(r.FromProcess) == "" {
		return NewValidationError("fromProcess", "is required")
	}
	if strings.TrimSpace(r.ToProcess) == "" {
		return NewValidationError("toProcess", "is required")
	}
	if r.Duration < 0 {
		return NewValidationError("duration", "must not be negative")
	}
	return nil
}

// FormatDuration renders milliseconds as HH:MM:SS
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
