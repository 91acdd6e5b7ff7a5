// Package metrics exposes Prometheus instrumentation for hint sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/ashureev/hint-tutor/internal/hint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hinttutor"

// Metrics implements hint.Observer on top of a Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	sessionsStarted    prometheus.Counter
	sessionsResolved   prometheus.Counter
	sessionsExpired    prometheus.Counter
	hintsDelivered     *prometheus.CounterVec
	completionTotal    *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec
}

// New creates a Metrics instance backed by its own registry, with the Go and
// process collectors included.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the hint metrics on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		// sessionsStarted counts sessions that received a first hint
		sessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total hint sessions started",
		}),

		sessionsResolved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_resolved_total",
			Help:      "Total hint sessions resolved with a full solution",
		}),

		sessionsExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Total hint sessions removed by the idle sweeper",
		}),

		// hintsDelivered counts follow-up hints by whether they ended the session
		hintsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hints_delivered_total",
			Help:      "Total follow-up hints delivered by done state",
		}, []string{"done"}),

		completionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_requests_total",
			Help:      "Total completion calls by operation and result",
		}, []string{"op", "result"}),

		completionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Completion call latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		}, []string{"op"}),
	}
}

// TrackActiveSessions registers a gauge that reports fn at scrape time.
func (m *Metrics) TrackActiveSessions(fn func() int) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of live hint sessions",
	}, func() float64 { return float64(fn()) })
}

// SessionStarted implements hint.Observer.
func (m *Metrics) SessionStarted() {
	m.sessionsStarted.Inc()
}

// HintDelivered implements hint.Observer.
func (m *Metrics) HintDelivered(done bool) {
	label := "false"
	if done {
		label = "true"
	}
	m.hintsDelivered.WithLabelValues(label).Inc()
}

// SessionResolved implements hint.Observer.
func (m *Metrics) SessionResolved() {
	m.sessionsResolved.Inc()
}

// CompletionFinished implements hint.Observer.
func (m *Metrics) CompletionFinished(op string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = string(hint.KindOf(err))
	}
	m.completionTotal.WithLabelValues(op, result).Inc()
	m.completionDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// SessionsExpired records sessions removed by the idle sweeper.
func (m *Metrics) SessionsExpired(ids []string) {
	m.sessionsExpired.Add(float64(len(ids)))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ hint.Observer = (*Metrics)(nil)
