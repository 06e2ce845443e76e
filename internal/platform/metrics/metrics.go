package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the meeting coordinator.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal prometheus.Counter
	errorsTotal   prometheus.Counter

	activeConnections prometheus.Gauge
	activeRooms       prometheus.Gauge

	joinsTotal          prometheus.Counter
	reconnectionsTotal  prometheus.Counter
	relayedTotal        prometheus.Counter
	chatMessagesTotal   prometheus.Counter
	captionsAccepted    prometheus.Counter
	captionsRejected    prometheus.Counter
	transcribeRetries   prometheus.Counter
	transcribeFailures  prometheus.Counter
	persistenceFailures prometheus.Counter
}

// New creates and registers Prometheus metrics for the coordinator.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meet_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meet_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meet_active_connections",
			Help: "Number of live signaling connections",
		}),
		activeRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meet_active_rooms",
			Help: "Number of meeting rooms with at least one participant",
		}),
		joinsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meet_joins_total",
			Help: "Total number of fresh meeting joins",
		}),
		reconnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meet_reconnections_total",
			Help: "Total number of joins that replaced a stale connection",
		}),
		relayedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meet_relayed_messages_total",
			Help: "Total number of directed call-setup messages relayed",
		}),
		chatMessagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meet_chat_messages_total",
			Help: "Total number of chat messages broadcast",
		}),
		captionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meet_captions_accepted_total",
			Help: "Total number of caption segments persisted and broadcast",
		}),
		captionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meet_captions_rejected_total",
			Help: "Total number of recognized segments dropped by the noise filter",
		}),
		transcribeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meet_transcription_retries_total",
			Help: "Total number of transcription attempts retried after transient failure",
		}),
		transcribeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meet_transcription_failures_total",
			Help: "Total number of transcription jobs that failed permanently",
		}),
		persistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meet_persistence_failures_total",
			Help: "Total number of chat or caption appends that failed",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.activeConnections,
		m.activeRooms,
		m.joinsTotal,
		m.reconnectionsTotal,
		m.relayedTotal,
		m.chatMessagesTotal,
		m.captionsAccepted,
		m.captionsRejected,
		m.transcribeRetries,
		m.transcribeFailures,
		m.persistenceFailures,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() { m.requestsTotal.Inc() }

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() { m.errorsTotal.Inc() }

// SetActiveConnections sets the live connection gauge.
func (m *Metrics) SetActiveConnections(n int) { m.activeConnections.Set(float64(n)) }

// SetActiveRooms sets the active room gauge.
func (m *Metrics) SetActiveRooms(n int) { m.activeRooms.Set(float64(n)) }

// IncJoins increments the fresh-join counter.
func (m *Metrics) IncJoins() { m.joinsTotal.Inc() }

// IncReconnections increments the reconnection counter.
func (m *Metrics) IncReconnections() { m.reconnectionsTotal.Inc() }

// IncRelayed increments the relayed call-setup message counter.
func (m *Metrics) IncRelayed() { m.relayedTotal.Inc() }

// IncChatMessages increments the chat message counter.
func (m *Metrics) IncChatMessages() { m.chatMessagesTotal.Inc() }

// IncCaptionsAccepted increments the accepted caption counter.
func (m *Metrics) IncCaptionsAccepted() { m.captionsAccepted.Inc() }

// IncCaptionsRejected increments the rejected caption counter.
func (m *Metrics) IncCaptionsRejected() { m.captionsRejected.Inc() }

// IncTranscribeRetries increments the transcription retry counter.
func (m *Metrics) IncTranscribeRetries() { m.transcribeRetries.Inc() }

// IncTranscribeFailures increments the permanent transcription failure counter.
func (m *Metrics) IncTranscribeFailures() { m.transcribeFailures.Inc() }

// IncPersistenceFailures increments the failed-append counter.
func (m *Metrics) IncPersistenceFailures() { m.persistenceFailures.Inc() }

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. active connections and rooms).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
