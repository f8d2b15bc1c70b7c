package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	CommitsTotal        prometheus.Counter
	CommitFailuresTotal *prometheus.CounterVec
	AbortsTotal         *prometheus.CounterVec
	CommitDuration      prometheus.Histogram
	MutationsTotal      *prometheus.CounterVec
	ActiveTransactions  prometheus.Gauge
	ConsistencyWarnings *prometheus.CounterVec
	PublishFailures     prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry so several instances
// can coexist in one process.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		CommitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ridestore_commits_total",
			Help: "Total number of committed transactions",
		}),
		CommitFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ridestore_commit_failures_total",
			Help: "Failed commits by error kind",
		}, []string{"kind"}),
		AbortsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ridestore_aborts_total",
			Help: "Aborted transactions by reason",
		}, []string{"reason"}),
		CommitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ridestore_commit_duration_seconds",
			Help:    "Commit latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		MutationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ridestore_mutations_total",
			Help: "Committed mutations by table and operation",
		}, []string{"table", "op"}),
		ActiveTransactions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ridestore_active_transactions",
			Help: "Open transactions held by the service",
		}),
		ConsistencyWarnings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ridestore_consistency_warnings_total",
			Help: "Consistency violations committed in warn mode by rule",
		}, []string{"rule"}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ridestore_event_publish_failures_total",
			Help: "Commit events that could not be published",
		}),

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ridestore_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ridestore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
