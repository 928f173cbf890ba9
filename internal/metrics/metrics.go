package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sift_decisions_total",
		Help: "Quarantine decisions by action",
	}, []string{"operation", "action"})

	MessagesScored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sift_messages_scored_total",
		Help: "Total number of scored messages",
	})

	ScoreDistribution = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sift_message_score",
		Help:    "Distribution of message risk scores",
		Buckets: []float64{0.1, 0.25, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
	})

	OperationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sift_operation_errors_total",
		Help: "Failed engine operations by error kind",
	}, []string{"operation", "kind"})

	APIDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sift_api_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10},
	}, []string{"path", "method", "status"})
)
