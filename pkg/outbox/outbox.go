// Package outbox stores events next to the aggregate write and delivers them
// to Kafka afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mes-platform/production-service/pkg/cloudevents"
)

// MaxDeliveryAttempts is how many failed publishes an event survives before it is parked
const MaxDeliveryAttempts = 10

// OutboxEvent is a serialized CloudEvent waiting for delivery
type OutboxEvent struct {
	ID            string `bson:"_id" json:"id"`
	AggregateType string `bson:"aggregateType" json:"aggregateType"`
	AggregateID   string `bson:"aggregateId" json:"aggregateId"`
	EventType     string `bson:"eventType" json:"eventType"`
	Topic         string `bson:"topic" json:"topic"`

	// Payload is the JSON encoded CloudEvent, delivered verbatim
	Payload json.RawMessage `bson:"payload" json:"payload"`

	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	PublishedAt *time.Time `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`

	RetryCount int    `bson:"retryCount" json:"retryCount"`
	MaxRetries int    `bson:"maxRetries" json:"maxRetries"`
	LastError  string `bson:"lastError,omitempty" json:"lastError,omitempty"`
}

// NewOutboxEventFromCloudEvent encodes ce for later delivery to topic
func NewOutboxEventFromCloudEvent(aggregateID, aggregateType, topic string, ce *cloudevents.MESCloudEvent) (*OutboxEvent, error) {
	payload, err := json.Marshal(ce)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ce.Type, err)
	}

	return &OutboxEvent{
		ID:            uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     ce.Type,
		Topic:         topic,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
		MaxRetries:    MaxDeliveryAttempts,
	}, nil
}

// ShouldRetry reports whether the publisher still owes this event a delivery
func (e *OutboxEvent) ShouldRetry() bool {
	return e.PublishedAt == nil && e.RetryCount < e.MaxRetries
}

// ToCloudEvent decodes the stored payload
func (e *OutboxEvent) ToCloudEvent() (*cloudevents.MESCloudEvent, error) {
	ce := &cloudevents.MESCloudEvent{}
	if err := json.Unmarshal(e.Payload, ce); err != nil {
		return nil, fmt.Errorf("decode outbox event %s: %w", e.ID, err)
	}
	return ce, nil
}

// Repository persists outbox events
type Repository interface {
	// SaveAll saves events in one write; callers pass a session context to join a transaction
	SaveAll(ctx context.Context, events []*OutboxEvent) error
	// FindUnpublished returns unpublished events still under their retry limit, oldest first
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkPublished(ctx context.Context, eventID string) error
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error
}

// EventPublisher delivers a CloudEvent to a topic
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.MESCloudEvent) error
}
