package domain

import (
	"time"
)

// Transition is the outcome of a tracker command. Job is a fresh copy; the
// input job is never mutated.
type Transition struct {
	Job        *ProductionJob
	HaltRecord *HaltDurationRecord
	Events     []DomainEvent
	Changed    bool
}

// Tracker applies the stage state machine
//
//	waiting -> in-progress -> stop -> (next stage waiting | completed)
type Tracker struct {
	clock  func() time.Time
	starts *StartTimeIndex
}

// NewTracker creates a tracker. A nil clock uses time.Now and a nil index starts empty.
func NewTracker(clock func() time.Time, starts *StartTimeIndex) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	if starts == nil {
		starts = NewStartTimeIndex()
	}
	return &Tracker{clock: clock, starts: starts}
}

// StartTimes returns the side table owned by the tracker
func (t *Tracker) StartTimes() *StartTimeIndex {
	return t.starts
}

// Now is truncated to milliseconds so durations and stored times round-trip exactly
func (t *Tracker) Now() time.Time {
	return t.clock().UTC().Truncate(time.Millisecond)
}

// Toggle starts a waiting stage or stops an in-progress one. Stop and completed
// stages, finished stages and terminal jobs are left unchanged. Only a stage
// after the current one is an error.
func (t *Tracker) Toggle(job *ProductionJob, stageIndex int) (*Transition, error) {
	if stageIndex < 0 || stageIndex >= len(job.ProcessPath) {
		return nil, ErrInvalidStageIndex
	}
	if job.IsTerminal() || job.IsStageDone(stageIndex) {
		return &Transition{Job: job.DeepCopy()}, nil
	}
	if stageIndex > job.CurrentStageIndex {
		return nil, ErrStageNotCurrent
	}

	next := job.DeepCopy()
	stage := &next.ProcessPath[stageIndex]
	tr := &Transition{Job: next}

	switch stage.Status {
	case StageWaiting:
		now := t.Now()
		stage.Status = StageInProgress
		stage.StartTime = &now
		t.starts.Set(next.JobID, stageIndex, now)

		tr.Events = append(tr.Events, &StageStartedEvent{
			JobID:      next.JobID,
			WorkOrder:  next.WorkOrder,
			StageIndex: stageIndex,
			StageID:    stage.StageID,
			StartedAt:  now,
		})

	case StageInProgress:
		now := t.Now()
		stage.Status = StageStop
		stage.PauseTime = &now

		start, ok := t.starts.Get(next.JobID, stageIndex)
		if !ok && stage.StartTime != nil {
			start, ok = *stage.StartTime, true
		}
		if ok {
			elapsed := now.Sub(start).Milliseconds()
			if elapsed < 0 {
				elapsed = 0
			}
			stage.InProcessDuration = &elapsed
		}
		t.starts.Delete(next.JobID, stageIndex)

		tr.Events = append(tr.Events, &StageStoppedEvent{
			JobID:             next.JobID,
			WorkOrder:         next.WorkOrder,
			StageIndex:        stageIndex,
			StageID:           stage.StageID,
			InProcessDuration: copyInt64(stage.InProcessDuration),
			StoppedAt:         now,
		})

	default:
		return tr, nil
	}

	next.UpdatedAt = tr.Events[0].OccurredAt()
	tr.Changed = true
	return tr, nil
}

// Advance moves a stopped job to its next stage, or completes it from the last
// stage, and emits exactly one halt duration record.
func (t *Tracker) Advance(job *ProductionJob) (*Transition, error) {
	if job.IsTerminal() {
		return &Transition{Job: job.DeepCopy()}, nil
	}
	if err := job.CheckInvariants(); err != nil {
		return nil, err
	}
	if job.CurrentStage().Status != StageStop {
		return nil, ErrStageNotStopped
	}

	now := t.Now()
	next := job.DeepCopy()
	from := next.CurrentStageIndex
	stage := &next.ProcessPath[from]

	var halt int64
	if stage.PauseTime != nil {
		halt = now.Sub(*stage.PauseTime).Milliseconds()
	}
	if halt < 0 {
		halt = 0
	}

	toProcess := CompletedProcessName
	to := from
	if !next.IsLastStage() {
		to = from + 1
		toProcess = next.ProcessPath[to].Name
	}

	record := NewHaltDurationRecord(next, stage.Name, toProcess, halt, now)
	tr := &Transition{Job: next, HaltRecord: record, Changed: true}

	if to != from {
		next.CurrentStageIndex = to
		next.ProcessPath[to].reset()
	} else {
		stage.Status = StageCompleted
		stage.PauseTime = nil
		next.Status = JobStatusCompleted
		next.CompletedAt = &now
	}
	next.UpdatedAt = now

	tr.Events = append(tr.Events,
		&StageAdvancedEvent{
			JobID:        next.JobID,
			WorkOrder:    next.WorkOrder,
			FromIndex:    from,
			ToIndex:      to,
			FromProcess:  record.FromProcess,
			ToProcess:    record.ToProcess,
			HaltDuration: halt,
			AdvancedAt:   now,
		},
		&HaltRecordedEvent{
			JobID:       next.JobID,
			WorkOrder:   next.WorkOrder,
			Machine:     record.Machine,
			FromProcess: record.FromProcess,
			ToProcess:   record.ToProcess,
			Duration:    halt,
			RecordedAt:  now,
		},
	)
	if next.Status == JobStatusCompleted {
		tr.Events = append(tr.Events, &JobCompletedEvent{
			JobID:       next.JobID,
			WorkOrder:   next.WorkOrder,
			StageCount:  len(next.ProcessPath),
			CompletedAt: now,
		})
	}

	return tr, nil
}
