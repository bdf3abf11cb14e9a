package cloudevents

import (
	"time"
)

// Production event types
const (
	JobCreated     = "mes.production.job-created"
	StageStarted   = "mes.production.stage-started"
	StageStopped   = "mes.production.stage-stopped"
	StageAdvanced  = "mes.production.stage-advanced"
	JobCompleted   = "mes.production.job-completed"
	HaltRecorded   = "mes.production.halt-recorded"
	StageRenamed   = "mes.production.stage-renamed"
	CompletedPurge = "mes.production.completed-jobs-purged"
)

// SourceProduction is the event source for the production service
const SourceProduction = "/mes/production-service"

// Extension attribute names
const (
	ExtCorrelationID = "mescorrelationid"
	ExtWorkOrder     = "mesworkorder"
	ExtJobID         = "mesjobid"
	ExtTraceParent   = "traceparent"
	ExtTraceState    = "tracestate"
)

// MESCloudEvent represents a CloudEvents v1.0 event carrying production data
type MESCloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`

	CorrelationID string `json:"mescorrelationid,omitempty"`
	WorkOrder     string `json:"mesworkorder,omitempty"`
	JobID         string `json:"mesjobid,omitempty"`

	// W3C trace context
	TraceParent string `json:"traceparent,omitempty"`
	TraceState  string `json:"tracestate,omitempty"`
}

// WithJob sets the job extensions and returns the event
func (e *MESCloudEvent) WithJob(jobID, workOrder string) *MESCloudEvent {
	e.JobID = jobID
	e.WorkOrder = workOrder
	return e
}

// Headers returns the binary-mode CloudEvents headers for the event
func (e *MESCloudEvent) Headers() map[string]string {
	headers := map[string]string{
		"ce-specversion": e.SpecVersion,
		"ce-type":        e.Type,
		"ce-source":      e.Source,
		"ce-id":          e.ID,
		"ce-time":        e.Time.Format(time.RFC3339),
		"content-type":   e.DataContentType,
	}

	optional := map[string]string{
		ExtCorrelationID: e.CorrelationID,
		ExtWorkOrder:     e.WorkOrder,
		ExtJobID:         e.JobID,
		ExtTraceParent:   e.TraceParent,
		ExtTraceState:    e.TraceState,
	}
	for k, v := range optional {
		if v != "" {
			headers["ce-"+k] = v
		}
	}

	return headers
}
