package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/mes-platform/production-service/pkg/cloudevents"
	"github.com/mes-platform/production-service/pkg/logging"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *memoryWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *memoryWriter) Close() error {
	w.closed = true
	return nil
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducer_PublishEvent(t *testing.T) {
	writers := map[string]*memoryWriter{}
	producer := NewProducerWithWriter(DefaultConfig(), func(topic string) MessageWriter {
		w := &memoryWriter{}
		writers[topic] = w
		return w
	})

	event := cloudevents.NewEventFactory(cloudevents.SourceProduction).
		CreateEvent(context.Background(), cloudevents.StageAdvanced, "job/JOB-1", map[string]any{"from": "Cutting"}).
		WithJob("JOB-1", "WO-1")

	require.NoError(t, producer.PublishEvent(context.Background(), Topics.ProductionEvents, event))

	w := writers[Topics.ProductionEvents]
	require.NotNil(t, w)
	require.Len(t, w.messages, 1)
	assert.Equal(t, "job/JOB-1", string(w.messages[0].Key))
	assert.Equal(t, cloudevents.StageAdvanced, headerValue(w.messages[0], "ce-type"))
	assert.Equal(t, "JOB-1", headerValue(w.messages[0], "ce-mesjobid"))

	require.NoError(t, producer.Close())
	assert.True(t, w.closed)
}

func TestInstrumentedProducer_PropagatesWriterError(t *testing.T) {
	boom := errors.New("no brokers")
	producer := NewProducerWithWriter(DefaultConfig(), func(string) MessageWriter {
		return &memoryWriter{err: boom}
	})
	instrumented := NewInstrumentedProducer(producer, nil, logging.NewNop())

	event := cloudevents.NewEventFactory(cloudevents.SourceProduction).
		CreateEvent(context.Background(), cloudevents.JobCreated, "job/JOB-2", nil)

	err := instrumented.PublishEvent(context.Background(), Topics.ProductionEvents, event)
	assert.ErrorIs(t, err, boom)
}
