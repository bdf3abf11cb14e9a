package domain

import "time"

// StageStatus is the stored status of a process stage
type StageStatus string

const (
	StageWaiting    StageStatus = "waiting"
	StageInProgress StageStatus = "in-progress"
	StageStop       StageStatus = "stop"
	StageCompleted  StageStatus = "completed"
)

// IsValid reports whether the status is one of the four known values
func (s StageStatus) IsValid() bool {
	switch s {
	case StageWaiting, StageInProgress, StageStop, StageCompleted:
		return true
	}
	return false
}

// ProcessStage is one step in a job's process path.
// Durations are milliseconds.
type ProcessStage struct {
	StageID             string      `bson:"stageId" json:"stageId"`
	Name                string      `bson:"name" json:"name"`
	Status              StageStatus `bson:"status" json:"status"`
	InProcessDuration   *int64      `bson:"inProcessDuration,omitempty" json:"inProcessDuration,omitempty"`
	PauseToNextDuration *int64      `bson:"pauseToNextDuration,omitempty" json:"pauseToNextDuration,omitempty"` // reserved, never computed
	StartTime           *time.Time  `bson:"startTime,omitempty" json:"startTime,omitempty"`
	PauseTime           *time.Time  `bson:"pauseTime,omitempty" json:"pauseTime,omitempty"`
}

// NewProcessStage creates a waiting stage. An empty name falls back to the stage id.
func NewProcessStage(stageID, name string) ProcessStage {
	if name == "" {
		name = stageID
	}
	return ProcessStage{
		StageID: stageID,
		Name:    name,
		Status:  StageWaiting,
	}
}

// reset returns the stage to waiting with all timing cleared
func (s *ProcessStage) reset() {
	s.Status = StageWaiting
	s.StartTime = nil
	s.PauseTime = nil
	s.InProcessDuration = nil
}

func (s ProcessStage) clone() ProcessStage {
	c := s
	c.InProcessDuration = copyInt64(s.InProcessDuration)
	c.PauseToNextDuration = copyInt64(s.PauseToNextDuration)
	c.StartTime = copyTime(s.StartTime)
	c.PauseTime = copyTime(s.PauseTime)
	return c
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
