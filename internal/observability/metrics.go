package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	saveTransitionsTotal   *prometheus.CounterVec
	evaluationsTotal       *prometheus.CounterVec
	eventSubscribersActive prometheus.Gauge
	httpRequestsTotal      *prometheus.CounterVec
	httpLatencySeconds     *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors used by the workbench.
func RegisterMetrics() {
	registerOnce.Do(func() {
		saveTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workbench",
			Name:      "save_transitions_total",
			Help:      "Save-state transitions, by artifact kind and target state.",
		}, []string{"artifact", "state"})

		evaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workbench",
			Name:      "evaluations_total",
			Help:      "Completed evaluation runs, by overall tone.",
		}, []string{"tone"})

		eventSubscribersActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "workbench",
			Name:      "event_subscribers_active",
			Help:      "Connected workbench event stream clients.",
		})

		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workbench",
			Name:      "http_requests_total",
			Help:      "Workbench API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workbench",
			Name:      "http_latency_seconds",
			Help:      "Latency distribution for workbench API requests.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		prometheus.MustRegister(
			saveTransitionsTotal,
			evaluationsTotal,
			eventSubscribersActive,
			httpRequestsTotal,
			httpLatencySeconds,
		)
	})
}

// SaveTransitions exposes the save-state transition counter.
func SaveTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return saveTransitionsTotal
}

// Evaluations exposes the evaluation outcome counter.
func Evaluations() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationsTotal
}

// EventSubscribers exposes the gauge of connected event stream clients.
func EventSubscribers() prometheus.Gauge {
	RegisterMetrics()
	return eventSubscribersActive
}

// HTTPRequests exposes the workbench API request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the workbench API latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}
