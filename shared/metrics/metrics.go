package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of the tracking service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionTransitions *prometheus.CounterVec
	ConnectDuration    prometheus.Histogram
	ProviderEvents     *prometheus.CounterVec

	// Contract metrics
	ContractCalls        *prometheus.CounterVec
	ContractCallDuration *prometheus.HistogramVec
	BreakerState         *prometheus.GaugeVec

	// Store metrics
	Refreshes     *prometheus.CounterVec
	CachedEntries prometheus.Gauge

	// Presentation metrics
	HTTPRequestsTotal *prometheus.CounterVec
	WebSocketClients  prometheus.Gauge
}

// NewMetrics creates metrics registered on a fresh registry
func NewMetrics(namespace, service string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		SessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "session_transitions_total",
				Help:      "Wallet session state transitions",
			},
			[]string{"from", "to"},
		),
		ConnectDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "connect_duration_seconds",
				Help:      "Time spent waiting on the signing provider during connect",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ProviderEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "provider_events_total",
				Help:      "Events forwarded from the signing provider",
			},
			[]string{"kind"},
		),
		ContractCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "contract_calls_total",
				Help:      "Contract gateway calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		ContractCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "contract_call_duration_seconds",
				Help:      "Contract gateway call latencies in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
			},
			[]string{"breaker"},
		),
		Refreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "store_refreshes_total",
				Help:      "Shipment store refreshes by outcome",
			},
			[]string{"outcome"},
		),
		CachedEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "store_cached_shipments",
				Help:      "Number of shipments currently cached",
			},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		WebSocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "websocket_clients",
				Help:      "Connected push clients",
			},
		),
	}
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveConnect(d time.Duration) {
	if m == nil {
		return
	}
	m.ConnectDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordProviderEvent(kind string) {
	if m == nil {
		return
	}
	m.ProviderEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordContractCall(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ContractCalls.WithLabelValues(operation, outcome).Inc()
	m.ContractCallDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) SetBreakerState(breaker string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(breaker).Set(float64(state))
}

func (m *Metrics) RecordRefresh(outcome string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetCachedEntries(n int) {
	if m == nil {
		return
	}
	m.CachedEntries.Set(float64(n))
}

func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}

func (m *Metrics) AddWebSocketClients(delta int) {
	if m == nil {
		return
	}
	m.WebSocketClients.Add(float64(delta))
}
