package application

import (
	"time"

	"github.com/mes-platform/production-service/internal/domain"
)

// StageDTO is one stage of a job with its effective completion
type StageDTO struct {
	Index               int        `json:"index"`
	StageID             string     `json:"stageId"`
	Name                string     `json:"name"`
	Status              string     `json:"status"`
	EffectiveStatus     string     `json:"effectiveStatus"`
	Done                bool       `json:"done"`
	Current             bool       `json:"current"`
	InProcessDuration   *int64     `json:"inProcessDuration,omitempty"`
	InProcessDisplay    string     `json:"inProcessDisplay,omitempty"`
	PauseToNextDuration *int64     `json:"pauseToNextDuration,omitempty"`
	StartTime           *time.Time `json:"startTime,omitempty"`
	PauseTime           *time.Time `json:"pauseTime,omitempty"`
}

// ProgressDTO represents progress information
type ProgressDTO struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// JobDTO represents a production job for API responses
type JobDTO struct {
	JobID             string      `json:"jobId"`
	WorkOrder         string      `json:"workOrder"`
	MachineName       string      `json:"machineName"`
	RequirementNo     string      `json:"requirementNo,omitempty"`
	Department        string      `json:"department"`
	Component         string      `json:"component"`
	Material          string      `json:"material"`
	Size              string      `json:"size"`
	Custom            bool        `json:"custom"`
	CurrentStageIndex int         `json:"currentStageIndex"`
	Status            string      `json:"status"`
	Stages            []StageDTO  `json:"stages"`
	Progress          ProgressDTO `json:"progress"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
	CompletedAt       *time.Time  `json:"completedAt,omitempty"`
}

// TransitionResultDTO is returned by toggle and advance. Persisted is false when
// the write failed and the returned job reflects the unsaved local state.
type TransitionResultDTO struct {
	Job        *JobDTO                `json:"job"`
	Changed    bool                   `json:"changed"`
	Persisted  bool                   `json:"persisted"`
	Notice     string                 `json:"notice,omitempty"`
	HaltRecord *HaltDurationRecordDTO `json:"haltRecord,omitempty"`
}

// BoardGroupDTO groups jobs that share a work order and material
type BoardGroupDTO struct {
	WorkOrder string      `json:"workOrder"`
	Material  string      `json:"material"`
	Jobs      []*JobDTO   `json:"jobs"`
	Progress  ProgressDTO `json:"progress"`
	Completed bool        `json:"completed"`
}

// BoardDTO is the grouped tracker projection
type BoardDTO struct {
	Groups   []BoardGroupDTO `json:"groups"`
	JobCount int             `json:"jobCount"`
	LoadedAt time.Time       `json:"loadedAt"`
}

// HaltDurationRecordDTO represents a halt record for API responses
type HaltDurationRecordDTO struct {
	ID              string    `json:"id,omitempty"`
	JobID           string    `json:"jobId,omitempty"`
	WorkOrder       string    `json:"workOrder"`
	Machine         string    `json:"machine"`
	Type            string    `json:"type"`
	Component       string    `json:"component"`
	FromProcess     string    `json:"fromProcess"`
	ToProcess       string    `json:"toProcess"`
	Duration        int64     `json:"duration"`
	DurationDisplay string    `json:"durationDisplay"`
	CreatedAt       time.Time `json:"createdAt"`
}

// AppendResultDTO reports whether a halt record was stored
type AppendResultDTO struct {
	Record    *HaltDurationRecordDTO `json:"record"`
	Persisted bool                   `json:"persisted"`
	Notice    string                 `json:"notice,omitempty"`
}

// HaltQueryResultDTO is the result of a work order query. FilterApplied is
// false when no work order was given and no records are returned.
type HaltQueryResultDTO struct {
	WorkOrder     string                   `json:"workOrder"`
	FilterApplied bool                     `json:"filterApplied"`
	Message       string                   `json:"message,omitempty"`
	Records       []*HaltDurationRecordDTO `json:"records"`
}

// PurgeResultDTO reports a purge of completed jobs
type PurgeResultDTO struct {
	Deleted int64  `json:"deleted"`
	Message string `json:"message"`
}

// MaterialDTO is a catalog material
type MaterialDTO struct {
	Name      string   `json:"name"`
	Sizes     []string `json:"sizes"`
	Processes []string `json:"processes"`
}

// ToJobDTO converts a domain job to a DTO
func ToJobDTO(job *domain.ProductionJob) *JobDTO {
	stages := make([]StageDTO, len(job.ProcessPath))
	for i, s := range job.ProcessPath {
		dto := StageDTO{
			Index:               i,
			StageID:             s.StageID,
			Name:                s.Name,
			Status:              string(s.Status),
			EffectiveStatus:     string(job.EffectiveStatus(i)),
			Done:                job.IsStageDone(i),
			Current:             i == job.CurrentStageIndex && !job.IsTerminal(),
			InProcessDuration:   s.InProcessDuration,
			PauseToNextDuration: s.PauseToNextDuration,
			StartTime:           s.StartTime,
			PauseTime:           s.PauseTime,
		}
		if s.InProcessDuration != nil {
			dto.InProcessDisplay = domain.FormatDuration(*s.InProcessDuration)
		}
		stages[i] = dto
	}

	done, total := job.Progress()
	return &JobDTO{
		JobID:             job.JobID,
		WorkOrder:         job.WorkOrder,
		MachineName:       job.MachineName,
		RequirementNo:     job.RequirementNo,
		Department:        job.Department,
		Component:         job.Component,
		Material:          job.Material,
		Size:              job.Size,
		Custom:            job.Custom,
		CurrentStageIndex: job.CurrentStageIndex,
		Status:            string(job.Status),
		Stages:            stages,
		Progress:          ProgressDTO{Completed: done, Total: total},
		CreatedAt:         job.CreatedAt,
		UpdatedAt:         job.UpdatedAt,
		CompletedAt:       job.CompletedAt,
	}
}

// ToHaltRecordDTO converts a domain halt record to a DTO
func ToHaltRecordDTO(r *domain.HaltDurationRecord) *HaltDurationRecordDTO {
	dto := &HaltDurationRecordDTO{
		JobID:           r.JobID,
		WorkOrder:       r.WorkOrder,
		Machine:         r.Machine,
		Type:            r.Type,
		Component:       r.Component,
		FromProcess:     r.FromProcess,
		ToProcess:       r.ToProcess,
		Duration:        r.Duration,
		DurationDisplay: domain.FormatDuration(r.Duration),
		CreatedAt:       r.CreatedAt,
	}
	if !r.ID.IsZero() {
		dto.ID = r.ID.Hex()
	}
	return dto
}

func toHaltRecordDTOs(records []*domain.HaltDurationRecord) []*HaltDurationRecordDTO {
	out := make([]*HaltDurationRecordDTO, len(records))
	for i, r := range records {
		out[i] = ToHaltRecordDTO(r)
	}
	return out
}
