package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	latencyBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}
	// halts run from seconds to a full day
	haltBuckets = []float64{1, 10, 30, 60, 300, 900, 1800, 3600, 14400, 43200, 86400}
)

// Metrics holds the service's Prometheus collectors. Every series carries a
// constant service label.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	KafkaEventsPublished *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec

	MongoDBOperations        *prometheus.CounterVec
	MongoDBOperationDuration *prometheus.HistogramVec

	OutboxPending   prometheus.Gauge
	OutboxPublished *prometheus.CounterVec
	OutboxRetries   prometheus.Counter

	JobsCreated        *prometheus.CounterVec
	StageTransitions   *prometheus.CounterVec
	HaltDuration       *prometheus.HistogramVec
	PersistFailures    *prometheus.CounterVec
	CompletedJobsPurge prometheus.Counter

	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec

	IdempotencyRequests *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	// Namespace prefixes the infrastructure series; production_* series are unprefixed
	Namespace string
}

func DefaultConfig(serviceName string) *Config {
	return &Config{ServiceName: serviceName, Namespace: "mes"}
}

// New creates a Metrics instance backed by its own registry, so tests can
// build as many as they like.
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	f := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"service": config.ServiceName}, registry))
	ns := config.Namespace

	return &Metrics{
		registry: registry,

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "http_requests_total", Help: "HTTP requests served",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "http_request_duration_seconds", Help: "HTTP request latency", Buckets: latencyBuckets,
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "http_requests_in_flight", Help: "HTTP requests being served",
		}),

		KafkaEventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "kafka_events_published_total", Help: "Kafka publish attempts",
		}, []string{"topic", "event_type", "status"}),
		KafkaPublishDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "kafka_publish_duration_seconds", Help: "Kafka publish latency", Buckets: latencyBuckets,
		}, []string{"topic"}),

		MongoDBOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "mongodb_operations_total", Help: "MongoDB operations",
		}, []string{"collection", "operation", "status"}),
		MongoDBOperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Name: "mongodb_operation_duration_seconds", Help: "MongoDB operation latency", Buckets: latencyBuckets,
		}, []string{"collection", "operation"}),

		OutboxPending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "outbox_pending_events", Help: "Outbox events found by the last poll",
		}),
		OutboxPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "outbox_events_published_total", Help: "Outbox events handed to Kafka",
		}, []string{"event_type", "status"}),
		OutboxRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "outbox_retries_total", Help: "Outbox deliveries that failed and stay pending",
		}),

		JobsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "production_jobs_created_total", Help: "Production jobs created, by whether the process path is custom",
		}, []string{"custom"}),
		StageTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "production_stage_transitions_total", Help: "Stage transitions applied by the tracker",
		}, []string{"transition"}),
		HaltDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "production_halt_duration_seconds", Help: "Time between a stage stopping and the job advancing", Buckets: haltBuckets,
		}, []string{"machine"}),
		PersistFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "production_persist_failures_total", Help: "Writes that failed and were reported as a notice",
		}, []string{"operation"}),
		CompletedJobsPurge: f.NewCounter(prometheus.CounterOpts{
			Name: "production_completed_jobs_purged_total", Help: "Completed jobs deleted by purge",
		}),

		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
		CircuitBreakerTrips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "circuit_breaker_trips_total", Help: "Circuit breaker transitions to open",
		}, []string{"name"}),

		IdempotencyRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "idempotency_requests_total", Help: "Requests carrying an idempotency key, by outcome",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the OpenMetrics format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func (m *Metrics) RecordHTTPRequest(method, path string, code int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) IncrementHTTPRequestsInFlight() { m.HTTPRequestsInFlight.Inc() }

func (m *Metrics) DecrementHTTPRequestsInFlight() { m.HTTPRequestsInFlight.Dec() }

func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	m.KafkaEventsPublished.WithLabelValues(topic, eventType, outcome(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(topic).Observe(duration.Seconds())
}

func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration) {
	m.MongoDBOperations.WithLabelValues(collection, operation, outcome(success)).Inc()
	m.MongoDBOperationDuration.WithLabelValues(collection, operation).Observe(duration.Seconds())
}

func (m *Metrics) SetOutboxPending(count int) { m.OutboxPending.Set(float64(count)) }

func (m *Metrics) RecordOutboxPublish(eventType string, success bool) {
	m.OutboxPublished.WithLabelValues(eventType, outcome(success)).Inc()
}

func (m *Metrics) RecordOutboxRetry() { m.OutboxRetries.Inc() }

// RecordJobsCreated counts a created batch
func (m *Metrics) RecordJobsCreated(count int, custom bool) {
	m.JobsCreated.WithLabelValues(strconv.FormatBool(custom)).Add(float64(count))
}

// RecordStageTransition counts a tracker transition: start, stop or advance
func (m *Metrics) RecordStageTransition(transition string) {
	m.StageTransitions.WithLabelValues(transition).Inc()
}

// ObserveHaltDuration records the halt between stop and advance
func (m *Metrics) ObserveHaltDuration(machine string, d time.Duration) {
	m.HaltDuration.WithLabelValues(machine).Observe(d.Seconds())
}

func (m *Metrics) RecordPersistFailure(operation string) {
	m.PersistFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordCompletedJobsPurged(count int64) {
	m.CompletedJobsPurge.Add(float64(count))
}

// SetCircuitBreakerState and RecordCircuitBreakerTrip satisfy resilience.StateObserver
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	m.CircuitBreakerTrips.WithLabelValues(name).Inc()
}

// RecordIdempotency counts one keyed request: executed, replayed, conflict,
// mismatch or error
func (m *Metrics) RecordIdempotency(outcome string) {
	m.IdempotencyRequests.WithLabelValues(outcome).Inc()
}
