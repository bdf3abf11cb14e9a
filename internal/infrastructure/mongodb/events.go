package mongodb

import (
	"context"
	"fmt"

	"github.com/mes-platform/production-service/internal/domain"
	"github.com/mes-platform/production-service/pkg/cloudevents"
	"github.com/mes-platform/production-service/pkg/kafka"
	"github.com/mes-platform/production-service/pkg/outbox"
)

const jobAggregateType = "ProductionJob"

// toOutboxEvents wraps domain events as CloudEvents bound for the production topic
func toOutboxEvents(ctx context.Context, factory *cloudevents.EventFactory, aggregateID, workOrder string, events []domain.DomainEvent) ([]*outbox.OutboxEvent, error) {
	out := make([]*outbox.OutboxEvent, 0, len(events))
	for _, event := range events {
		ce := factory.CreateEvent(ctx, event.EventType(), "job/"+aggregateID, event)
		if workOrder != "" {
			ce.WithJob(aggregateID, workOrder)
		}

		outboxEvent, err := outbox.NewOutboxEventFromCloudEvent(aggregateID, jobAggregateType, kafka.Topics.ProductionEvents, ce)
		if err != nil {
			return nil, fmt.Errorf("failed to create outbox event: %w", err)
		}
		out = append(out, outboxEvent)
	}
	return out, nil
}
