package domain

import (
	"sync"
	"time"
)

type startKey struct {
	jobID      string
	stageIndex int
}

// StartTimeIndex caches in-progress start times keyed by (job, stage index).
// It is derived state; the persisted stage startTime is the source of truth on reload.
type StartTimeIndex struct {
	mu      sync.Mutex
	entries map[startKey]time.Time
}

// NewStartTimeIndex creates an empty index
func NewStartTimeIndex() *StartTimeIndex {
	return &StartTimeIndex{entries: make(map[startKey]time.Time)}
}

// Set records the start time of a stage
func (x *StartTimeIndex) Set(jobID string, stageIndex int, t time.Time) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries[startKey{jobID, stageIndex}] = t
}

// Get returns the cached start time of a stage
func (x *StartTimeIndex) Get(jobID string, stageIndex int) (time.Time, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	t, ok := x.entries[startKey{jobID, stageIndex}]
	return t, ok
}

// Delete removes one entry
func (x *StartTimeIndex) Delete(jobID string, stageIndex int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.entries, startKey{jobID, stageIndex})
}

// ForgetJob removes every entry of a job
func (x *StartTimeIndex) ForgetJob(jobID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for k := range x.entries {
		if k.jobID == jobID {
			delete(x.entries, k)
		}
	}
}

// Restore re-arms entries for every in-progress stage with a persisted start time
func (x *StartTimeIndex) Restore(job *ProductionJob) {
	for i, s := range job.ProcessPath {
		if s.Status == StageInProgress && s.StartTime != nil {
			x.Set(job.JobID, i, *s.StartTime)
		}
	}
}

// Reset drops all entries
func (x *StartTimeIndex) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = make(map[startKey]time.Time)
}

// Len returns the number of entries
func (x *StartTimeIndex) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}
