package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mes-platform/production-service/pkg/logging"
	"github.com/mes-platform/production-service/pkg/tracing"
)

// EventFactory creates CloudEvents for a single source
type EventFactory struct {
	source string
	now    func() time.Time
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{
		source: source,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateEvent builds an event, copying the correlation id and trace context from ctx
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data any) *MESCloudEvent {
	event := &MESCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.NewString(),
		Time:            f.now(),
		DataContentType: "application/json",
		Data:            data,
	}

	event.CorrelationID = logging.CorrelationID(ctx)
	event.TraceParent, event.TraceState = tracing.TraceHeaders(ctx)
	return event
}
