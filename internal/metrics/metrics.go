package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Comfie/ignaCheckApi-sub000/internal/application/analysis"
)

const namespace = "ignacheck"

// Metrics holds the Prometheus collectors for analysis and HTTP traffic.
type Metrics struct {
	registry *prometheus.Registry

	ProviderCalls    *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	ProviderFailures *prometheus.CounterVec
	Fallbacks        *prometheus.CounterVec
	ParseFailures    *prometheus.CounterVec
	ControlsAnalyzed *prometheus.CounterVec
	BatchesFinished  *prometheus.CounterVec
	BatchDuration    prometheus.Histogram
	RequestsTotal    *prometheus.CounterVec
	RequestsInFlight prometheus.Gauge
	RequestDuration  *prometheus.HistogramVec
	JobsRunning      prometheus.Gauge
}

var _ analysis.Metrics = (*Metrics)(nil)

// New registers every collector on a private registry, along with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ProviderCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Reasoning provider calls by provider and result",
		}, []string{"provider", "result"}),
		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Reasoning provider call latency",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		}, []string{"provider"}),
		ProviderFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "Transport failures by provider and kind",
		}, []string{"provider", "kind"}),
		Fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fallbacks_total",
			Help:      "Switches from the primary to the fallback provider",
		}, []string{"from", "to"}),
		ParseFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_parse_failures_total",
			Help:      "Provider replies that could not be parsed",
		}, []string{"provider"}),
		ControlsAnalyzed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "controls_analyzed_total",
			Help:      "Analyzed controls by resulting status",
		}, []string{"status"}),
		BatchesFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_finished_total",
			Help:      "Framework batches by outcome",
		}, []string{"outcome"}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a framework batch",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
		}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "route", "code"}),
		RequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		JobsRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Background batch jobs in progress",
		}),
	}
}

func (m *Metrics) ProviderCall(provider string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ProviderCalls.WithLabelValues(provider, result).Inc()
	m.ProviderLatency.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) ProviderFailure(provider, kind string) {
	m.ProviderFailures.WithLabelValues(provider, kind).Inc()
}

func (m *Metrics) Fallback(from, to string) {
	m.Fallbacks.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ParseFailure(provider string) {
	m.ParseFailures.WithLabelValues(provider).Inc()
}

func (m *Metrics) ControlAnalyzed(status string) {
	m.ControlsAnalyzed.WithLabelValues(status).Inc()
}

func (m *Metrics) BatchFinished(outcome string, d time.Duration) {
	m.BatchesFinished.WithLabelValues(outcome).Inc()
	m.BatchDuration.Observe(d.Seconds())
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, code int, d time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// JobStarted and JobFinished track the background job gauge.
func (m *Metrics) JobStarted()  { m.JobsRunning.Inc() }
func (m *Metrics) JobFinished() { m.JobsRunning.Dec() }

// Registry exposes the private registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
