// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StagesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stages_completed_total",
			Help: "Total number of stages completed per pipeline run",
		},
		[]string{"stage"},
	)

	StagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stages_failed_total",
			Help: "Total number of stage failures",
		},
		[]string{"stage", "error_code"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_stage_duration_seconds",
			Help: "Duration of stage execution in seconds",
		},
		[]string{"stage"},
	)

	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_provider_calls_total",
			Help: "Search provider calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	InsightsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_insights_rejected_total",
			Help: "Insights dropped by the output filter",
		},
		[]string{"reason"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_sessions_active",
			Help: "Number of sessions currently running",
		},
	)
)
