// Package metrics holds the gateway's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spacehub/api-gateway/internal/breaker"
)

const namespace = "gateway"

// Metrics contains every collector the gateway exports.
type Metrics struct {
	registry *prometheus.Registry

	Requests           *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec
	RateLimitRejected  *prometheus.CounterVec
	ProbeResults       *prometheus.CounterVec
	ProbeDuration      *prometheus.HistogramVec
	ServiceHealthy     *prometheus.GaugeVec
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests handled by the gateway",
		}, []string{"service", "method", "code"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "End-to-end request latency including the upstream call",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"service"}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		}, []string{"service"}),

		BreakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions",
		}, []string{"service", "from", "to"}),

		RateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rate_limit",
			Name:      "rejected_total",
			Help:      "Requests rejected by a rate limiter",
		}, []string{"scope"}), // scope: global, tier name, or service:<name>

		ProbeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "probes_total",
			Help:      "Health probes executed",
		}, []string{"service", "result"}),

		ProbeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "probe_duration_seconds",
			Help:      "Health probe latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),

		ServiceHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "service_up",
			Help:      "Last probe outcome (0=unhealthy, 1=healthy)",
		}, []string{"service"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Requests,
		m.RequestDuration,
		m.BreakerState,
		m.BreakerTransitions,
		m.RateLimitRejected,
		m.ProbeResults,
		m.ProbeDuration,
		m.ServiceHealthy,
	)
	return m
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// InitServices sets every breaker gauge to closed so series exist before the
// first transition.
func (m *Metrics) InitServices(names []string) {
	for _, n := range names {
		m.BreakerState.WithLabelValues(n).Set(float64(breaker.Closed))
	}
}

// knownMethods bounds the method label; anything else is counted as OTHER.
var knownMethods = map[string]bool{
	http.MethodGet: true, http.MethodHead: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true, http.MethodConnect: true,
	http.MethodOptions: true, http.MethodTrace: true,
}

func (m *Metrics) ObserveRequest(service, method string, code int, elapsed time.Duration) {
	if service == "" {
		service = "gateway"
	}
	if !knownMethods[method] {
		method = "OTHER"
	}
	m.Requests.WithLabelValues(service, method, strconv.Itoa(code)).Inc()
	m.RequestDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}

// BreakerChanged matches breaker.StateChangeFunc.
func (m *Metrics) BreakerChanged(name string, from, to breaker.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(to))
	m.BreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
}

func (m *Metrics) RateLimited(scope string) {
	m.RateLimitRejected.WithLabelValues(scope).Inc()
}

// ProbeObserved matches health.ProbeObserver.
func (m *Metrics) ProbeObserved(service string, healthy bool, elapsed time.Duration) {
	result, up := "failure", 0.0
	if healthy {
		result, up = "success", 1.0
	}
	m.ProbeResults.WithLabelValues(service, result).Inc()
	m.ProbeDuration.WithLabelValues(service).Observe(elapsed.Seconds())
	m.ServiceHealthy.WithLabelValues(service).Set(up)
}
