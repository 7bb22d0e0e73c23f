package classroom

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workbench",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Calls issued to the classroom platform, by operation and outcome.",
	}, []string{"operation", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "workbench",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Latency of calls issued to the classroom platform.",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	}, []string{"operation"})
)
