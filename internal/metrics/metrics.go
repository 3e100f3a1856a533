// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaingest_stage_duration_seconds",
			Help:    "Duration of each pipeline stage.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"stage", "outcome"},
	)

	pipelineResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaingest_pipeline_results_total",
			Help: "Pipeline runs by purpose and result category.",
		},
		[]string{"purpose", "result"},
	)

	moderationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaingest_moderation_decisions_total",
			Help: "Moderation verdicts by decision and whether the failure policy produced them.",
		},
		[]string{"decision", "policy_applied"},
	)

	bytesSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediaingest_bytes_saved_total",
			Help: "Bytes removed by normalization across all successful uploads.",
		},
	)

	dependencyUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mediaingest_dependency_up",
			Help: "1 when the last health probe of a dependency succeeded.",
		},
		[]string{"dependency"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaingest_http_requests_total",
			Help: "HTTP requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaingest_http_request_duration_seconds",
			Help:    "HTTP request duration by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func ObserveStage(stage, outcome string, d time.Duration) {
	stageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

func RecordResult(purpose, result string) {
	pipelineResults.WithLabelValues(purpose, result).Inc()
}

func RecordModeration(decision string, policyApplied bool) {
	applied := "false"
	if policyApplied {
		applied = "true"
	}
	moderationDecisions.WithLabelValues(decision, applied).Inc()
}

func AddBytesSaved(n int64) {
	if n > 0 {
		bytesSaved.Add(float64(n))
	}
}

func SetDependencyUp(name string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	dependencyUp.WithLabelValues(name).Set(v)
}

func ObserveHTTP(method, route, status string, d time.Duration) {
	httpRequests.WithLabelValues(method, route, status).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
