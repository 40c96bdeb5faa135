package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gqlgate/gqlgate/pkg/gateway"
	"github.com/gqlgate/gqlgate/pkg/schema"
)

// Namespace prefixes every metric name.
const Namespace = "gqlgate"

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// DefaultBuckets are the latency buckets in seconds.
var DefaultBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds the gateway collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge

	responsesTotal *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec

	fetchesTotal  *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	rowsTotal     *prometheus.CounterVec

	configTypes prometheus.Gauge
	configInfo  *prometheus.GaugeVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of GraphQL HTTP requests",
			},
			[]string{"code", "method"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "GraphQL HTTP request duration in seconds",
				Buckets:   DefaultBuckets,
			},
			[]string{"method"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of GraphQL HTTP requests being served",
			},
		),
		responsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "graphql_responses_total",
				Help:      "Total number of executed GraphQL requests by outcome",
			},
			[]string{"outcome"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "graphql_errors_total",
				Help:      "Total number of GraphQL errors by code",
			},
			[]string{"code"},
		),
		fetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "backend_fetches_total",
				Help:      "Total number of backend fetches",
			},
			[]string{"backend", "type", "outcome"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "backend_fetch_duration_seconds",
				Help:      "Backend fetch duration in seconds",
				Buckets:   DefaultBuckets,
			},
			[]string{"backend"},
		),
		rowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "backend_rows_total",
				Help:      "Total number of rows returned by backends",
			},
			[]string{"backend"},
		),
		configTypes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "config_types",
				Help:      "Number of configured GraphQL types",
			},
		),
		configInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "config_info",
				Help:      "Loaded configuration, always 1",
			},
			[]string{"version"},
		),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.inFlight,
		m.responsesTotal,
		m.errorsTotal,
		m.fetchesTotal,
		m.fetchDuration,
		m.rowsTotal,
		m.configTypes,
		m.configInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Middleware counts, times and tracks in-flight requests to next.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerInFlight(m.inFlight,
		promhttp.InstrumentHandlerDuration(m.requestDuration,
			promhttp.InstrumentHandlerCounter(m.requestsTotal, next)))
}

// SetConfig records the loaded configuration.
func (m *Metrics) SetConfig(cfg *schema.Configuration) {
	m.configTypes.Set(float64(len(cfg.TypeNames())))
	m.configInfo.Reset()
	m.configInfo.WithLabelValues(cfg.Version()).Set(1)
}

// ObserveResponse counts an executed request and its errors. It has the
// signature gateway.WithResponseObserver expects.
func (m *Metrics) ObserveResponse(_ *gateway.Request, resp *gateway.Response) {
	if len(resp.Errors) == 0 {
		m.responsesTotal.WithLabelValues(OutcomeOK).Inc()
		return
	}
	m.responsesTotal.WithLabelValues(OutcomeError).Inc()
	for _, e := range resp.Errors {
		code, _ := e.Extensions["code"].(string)
		if code == "" {
			code = "UNKNOWN"
		}
		m.errorsTotal.WithLabelValues(code).Inc()
	}
}
