package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mes-platform/production-service/pkg/logging"
	"github.com/mes-platform/production-service/pkg/metrics"
)

var (
	ErrPublisherRunning = errors.New("outbox publisher already running")
	ErrPublisherStopped = errors.New("outbox publisher not running")
)

// PublisherConfig controls the polling loop
type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{PollInterval: time.Second, BatchSize: 100}
}

// Publisher polls the outbox and hands events to Kafka, oldest first
type Publisher struct {
	repo      Repository
	producer  EventPublisher
	logger    *logging.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	published atomic.Int64
	failed    atomic.Int64
}

// NewPublisher creates a publisher; a nil config takes the defaults and m may be nil
func NewPublisher(repo Repository, producer EventPublisher, logger *logging.Logger, m *metrics.Metrics, config *PublisherConfig) *Publisher {
	if config == nil {
		config = DefaultPublisherConfig()
	}
	return &Publisher{
		repo:      repo,
		producer:  producer,
		logger:    logger.WithComponent("outbox-publisher"),
		metrics:   m,
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
	}
}

// Start launches the polling loop. The loop ends on Stop or when ctx is done.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return ErrPublisherRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel, p.done = cancel, make(chan struct{})
	go p.loop(loopCtx, p.done)

	p.logger.Info("Outbox publisher started", "interval", p.interval, "batchSize", p.batchSize)
	return nil
}

// Stop ends the loop and waits for the in-flight batch
func (p *Publisher) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return ErrPublisherStopped
	}

	cancel()
	<-done
	p.logger.Info("Outbox publisher stopped", "published", p.published.Load(), "failed", p.failed.Load())
	return nil
}

func (p *Publisher) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch publishes one batch of pending events. A failed event keeps
// its place in the outbox with a bumped retry count.
func (p *Publisher) ProcessBatch(ctx context.Context) {
	events, err := p.repo.FindUnpublished(ctx, p.batchSize)
	if err != nil {
		p.logger.WithError(err).Error("Failed to find unpublished events")
		return
	}
	if p.metrics != nil {
		p.metrics.SetOutboxPending(len(events))
	}

	for _, event := range events {
		ok := p.deliver(ctx, event)
		if p.metrics != nil {
			p.metrics.RecordOutboxPublish(event.EventType, ok)
		}

		if ok {
			p.published.Add(1)
		} else {
			p.failed.Add(1)
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, event *OutboxEvent) bool {
	log := p.logger.With("eventId", event.ID, "eventType", event.EventType, "aggregateId", event.AggregateID)

	if err := p.publishEvent(ctx, event); err != nil {
		log.WithError(err).Warn("Failed to publish outbox event")
		if err := p.repo.IncrementRetry(ctx, event.ID, err.Error()); err != nil {
			log.WithError(err).Error("Failed to increment retry count")
		}
		if p.metrics != nil {
			p.metrics.RecordOutboxRetry()
		}
		return false
	}

	if err := p.repo.MarkPublished(ctx, event.ID); err != nil {
		log.WithError(err).Error("Failed to mark event as published")
	}
	return true
}

func (p *Publisher) publishEvent(ctx context.Context, event *OutboxEvent) error {
	cloudEvent, err := event.ToCloudEvent()
	if err != nil {
		return fmt.Errorf("failed to convert to CloudEvent: %w", err)
	}

	if err := p.producer.PublishEvent(ctx, event.Topic, cloudEvent); err != nil {
		return fmt.Errorf("failed to publish to Kafka: %w", err)
	}

	p.logger.Debug("Published event from outbox", "eventId", event.ID, "topic", event.Topic)
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop
func (p *Publisher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Stats returns delivery counts since construction
func (p *Publisher) Stats() map[string]int {
	return map[string]int{
		"published": int(p.published.Load()),
		"failed":    int(p.failed.Load()),
	}
}
