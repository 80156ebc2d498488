package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	reactorEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_reactor_events_total",
			Help: "Sale events handled by the aggregate reactors",
		},
		[]string{"reactor", "outcome"},
	)

	resetRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_reset_runs_total",
			Help: "Daily reset runs by final status",
		},
		[]string{"status"},
	)

	resetBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sales_reset_batches_total",
			Help: "Reset batches committed",
		},
	)

	resetUsersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sales_reset_users_total",
			Help: "User aggregates whose daily counter was reset",
		},
	)

	resetDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sales_reset_duration_seconds",
			Help:    "Daily reset run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_event_deliveries_total",
			Help: "Event deliveries by source and acknowledgement",
		},
		[]string{"source", "ack"},
	)
)

// RecordReactorEvent records one reactor invocation
func RecordReactorEvent(reactor, outcome string) {
	reactorEventsTotal.WithLabelValues(reactor, outcome).Inc()
}

// RecordResetBatch records a committed reset batch of n users
func RecordResetBatch(n int) {
	resetBatchesTotal.Inc()
	resetUsersTotal.Add(float64(n))
}

// RecordResetRun records a finished reset run
func RecordResetRun(status string, duration time.Duration) {
	resetRunsTotal.WithLabelValues(status).Inc()
	resetDuration.Observe(duration.Seconds())
}

// RecordDelivery records how an inbound event delivery was acknowledged
func RecordDelivery(source, ack string) {
	deliveriesTotal.WithLabelValues(source, ack).Inc()
}

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}
