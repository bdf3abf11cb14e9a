package kafka

import (
	"context"
	"time"

	"github.com/mes-platform/production-service/pkg/cloudevents"
	"github.com/mes-platform/production-service/pkg/logging"
	"github.com/mes-platform/production-service/pkg/metrics"
	"github.com/mes-platform/production-service/pkg/resilience"
	"github.com/mes-platform/production-service/pkg/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedProducer wraps a Producer with a circuit breaker, metrics and tracing
type InstrumentedProducer struct {
	producer *Producer
	breaker  *resilience.CircuitBreaker
	metrics  *metrics.Metrics
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewInstrumentedProducer creates a new instrumented producer. m may be nil.
func NewInstrumentedProducer(producer *Producer, m *metrics.Metrics, logger *logging.Logger) *InstrumentedProducer {
	config := resilience.DefaultCircuitBreakerConfig("kafka-producer")
	config.MaxRequests = 5

	var observer resilience.StateObserver
	if m != nil {
		observer = m
	}

	return &InstrumentedProducer{
		producer: producer,
		breaker:  resilience.NewCircuitBreaker(config, logger, observer),
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("kafka-producer"),
	}
}

// PublishEvent publishes event through the circuit breaker inside a producer span
func (p *InstrumentedProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.MESCloudEvent) error {
	ctx, span := p.tracer.Start(ctx, "kafka.publish "+topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(publishAttributes(topic, event)...),
	)
	defer span.End()

	start := time.Now()
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.producer.PublishEvent(ctx, topic, event)
	})
	elapsed := time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordKafkaPublish(topic, event.Type, err == nil, elapsed)
	}
	p.logger.KafkaPublish(ctx, topic, event.Type, err == nil, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func publishAttributes(topic string, event *cloudevents.MESCloudEvent) []attribute.KeyValue {
	attrs := tracing.MessagingSpanAttributes("kafka", topic, "publish")
	attrs = append(attrs,
		attribute.String("messaging.message.id", event.ID),
		attribute.String("cloudevents.event_type", event.Type),
	)
	if event.JobID != "" {
		attrs = append(attrs, tracing.JobSpanAttributes(event.JobID, -1)...)
	}
	return attrs
}

// Close closes the underlying producer
func (p *InstrumentedProducer) Close() error {
	return p.producer.Close()
}
