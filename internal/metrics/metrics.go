package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus instruments for the service.
type Metrics struct {
	EvaluationsTotal  prometheus.Counter
	EvaluationErrors  prometheus.Counter
	EvaluationSeconds prometheus.Histogram
	ViolationsTotal   *prometheus.CounterVec

	DriftChecksTotal prometheus.Counter
	DriftDetected    prometheus.Counter
	DriftBySeverity  *prometheus.CounterVec
	MonitorRunsTotal prometheus.Counter
	MonitorRunErrors prometheus.Counter

	AlertsSentTotal   *prometheus.CounterVec
	AlertsFailedTotal *prometheus.CounterVec
	AlertsSuppressed  prometheus.Counter

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		EvaluationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rawls_evaluations_total",
			Help: "Total number of fairness evaluations run",
		}),
		EvaluationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rawls_evaluation_errors_total",
			Help: "Number of fairness evaluations rejected or failed",
		}),
		EvaluationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rawls_evaluation_duration_seconds",
			Help:    "Wall time of fairness evaluations",
			Buckets: prometheus.DefBuckets,
		}),
		ViolationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rawls_fairness_violations_total",
				Help: "Summary check violations by metric name",
			},
			[]string{"metric"},
		),

		DriftChecksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rawls_drift_checks_total",
			Help: "Total number of drift detections run",
		}),
		DriftDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rawls_drift_detected_total",
			Help: "Number of drift detections that found drift",
		}),
		DriftBySeverity: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rawls_drift_by_severity_total",
				Help: "Drift detections by severity",
			},
			[]string{"severity"},
		),
		MonitorRunsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rawls_monitor_runs_total",
			Help: "Number of scheduled monitor evaluations",
		}),
		MonitorRunErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rawls_monitor_run_errors_total",
			Help: "Number of scheduled monitor evaluations that failed",
		}),

		AlertsSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rawls_alerts_sent_total",
				Help: "Alerts delivered per channel",
			},
			[]string{"channel"},
		),
		AlertsFailedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rawls_alerts_failed_total",
				Help: "Alert deliveries that failed per channel",
			},
			[]string{"channel"},
		),
		AlertsSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rawls_alerts_suppressed_total",
			Help: "Alerts dropped by the dispatcher rate limiter",
		}),

		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rawls_cache_hits_total",
			Help: "Calculator result cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rawls_cache_misses_total",
			Help: "Calculator result cache misses",
		}),
	}
}
