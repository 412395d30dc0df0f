package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus指标
var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome and error kind",
		},
		[]string{"outcome", "kind"}, // outcome: done, failed
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docqa_pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_pipeline_retries_total",
			Help: "Total number of retried external calls by stage",
		},
		[]string{"stage"},
	)

	embeddingCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_embedding_calls_total",
			Help: "Total number of embedding provider calls",
		},
		[]string{"provider"},
	)
)
