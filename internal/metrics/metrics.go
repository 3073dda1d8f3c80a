// Package metrics exposes Prometheus collectors for the ingest pipeline, the
// reading store and the broadcast hub.
//
// Every method is safe on a nil receiver, so components built without a
// registry simply record nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sensorcast"

type Registry struct {
	registry *prometheus.Registry

	Ingest *IngestMetrics
	Store  *StoreMetrics
	Hub    *HubMetrics
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{
		registry: reg,
		Ingest:   newIngestMetrics(reg),
		Store:    newStoreMetrics(reg),
		Hub:      newHubMetrics(reg),
	}
}

func (r *Registry) Prometheus() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the text exposition format. A nil registry serves 404.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Registry) IngestMetrics() *IngestMetrics {
	if r == nil {
		return nil
	}
	return r.Ingest
}

func (r *Registry) StoreMetrics() *StoreMetrics {
	if r == nil {
		return nil
	}
	return r.Store
}

func (r *Registry) HubMetrics() *HubMetrics {
	if r == nil {
		return nil
	}
	return r.Hub
}

type IngestMetrics struct {
	received *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	accepted prometheus.Counter
	connects prometheus.Counter
}

func newIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	m := &IngestMetrics{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "messages_received_total",
			Help:      "Messages received from the gateway transport",
		}, []string{"transport"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped before producing a reading",
		}, []string{"reason"}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "readings_accepted_total",
			Help:      "Readings decoded, validated and emitted",
		}),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "transport_connects_total",
			Help:      "Successful (re)connections to the gateway transport",
		}),
	}
	reg.MustRegister(m.received, m.dropped, m.accepted, m.connects)
	return m
}

func (m *IngestMetrics) MessageReceived(transport string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(transport).Inc()
}

func (m *IngestMetrics) MessageDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *IngestMetrics) ReadingAccepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
}

func (m *IngestMetrics) TransportConnected() {
	if m == nil {
		return
	}
	m.connects.Inc()
}

type StoreMetrics struct {
	saved       prometheus.Counter
	saveErrors  *prometheus.CounterVec
	queries     *prometheus.HistogramVec
	retentionGC prometheus.Counter
}

func newStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		saved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "readings_saved_total",
			Help:      "Readings written to the database",
		}),
		saveErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "save_errors_total",
			Help:      "Readings lost before or during the write",
		}, []string{"reason"}),
		queries: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "query_duration_seconds",
			Help:      "Read query latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"query"}),
		retentionGC: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "retention_deleted_total",
			Help:      "Readings removed by retention cleanup",
		}),
	}
	reg.MustRegister(m.saved, m.saveErrors, m.queries, m.retentionGC)
	return m
}

func (m *StoreMetrics) ReadingSaved() {
	if m == nil {
		return
	}
	m.saved.Inc()
}

func (m *StoreMetrics) SaveFailed(reason string) {
	if m == nil {
		return
	}
	m.saveErrors.WithLabelValues(reason).Inc()
}

func (m *StoreMetrics) ObserveQuery(query string, seconds float64) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(query).Observe(seconds)
}

func (m *StoreMetrics) RetentionDeleted(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.retentionGC.Add(float64(n))
}

type HubMetrics struct {
	connected   prometheus.Gauge
	connections prometheus.Counter
	broadcasts  prometheus.Counter
	sendDropped prometheus.Counter
	requests    *prometheus.CounterVec
	rejected    *prometheus.CounterVec
}

func newHubMetrics(reg prometheus.Registerer) *HubMetrics {
	m := &HubMetrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "clients_connected",
			Help:      "Currently connected push clients",
		}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "client_connections_total",
			Help:      "Push client connections accepted",
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcasts_total",
			Help:      "Live readings fanned out to clients",
		}),
		sendDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "send_dropped_total",
			Help:      "Outbound messages dropped because a client queue was full",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "requests_total",
			Help:      "Client requests handled, by type",
		}, []string{"type"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "requests_rejected_total",
			Help:      "Client requests silently dropped, by reason",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.connected, m.connections, m.broadcasts, m.sendDropped, m.requests, m.rejected)
	return m
}

func (m *HubMetrics) ClientConnected(current int) {
	if m == nil {
		return
	}
	m.connections.Inc()
	m.connected.Set(float64(current))
}

func (m *HubMetrics) ClientDisconnected(current int) {
	if m == nil {
		return
	}
	m.connected.Set(float64(current))
}

func (m *HubMetrics) Broadcast() {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
}

func (m *HubMetrics) SendDropped() {
	if m == nil {
		return
	}
	m.sendDropped.Inc()
}

func (m *HubMetrics) Request(kind string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind).Inc()
}

func (m *HubMetrics) RequestRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}
