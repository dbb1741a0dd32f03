package reconciliation

import "github.com/prometheus/client_golang/prometheus"

var (
	reconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hirelens",
		Subsystem: "reconciliation",
		Name:      "run_duration_seconds",
		Help:      "Duration of reconciliation runs in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	reconcileErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hirelens",
		Subsystem: "reconciliation",
		Name:      "errors_total",
		Help:      "Total reconciliation check errors.",
	})
)

func init() {
	prometheus.MustRegister(
		reconcileDuration,
		reconcileErrors,
	)
}
