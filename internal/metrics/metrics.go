// Package metrics provides Prometheus instrumentation for the payments service.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hirelens",
			Subsystem: "payments",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hirelens",
			Subsystem: "payments",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// OrdersCreatedTotal counts payment orders created.
	OrdersCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hirelens",
		Subsystem: "payments",
		Name:      "orders_created_total",
		Help:      "Total payment orders created.",
	})

	// OrdersExpiredTotal counts pending orders expired by the sweeper.
	OrdersExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hirelens",
		Subsystem: "payments",
		Name:      "orders_expired_total",
		Help:      "Total pending orders expired after the checkout TTL.",
	})

	// VerificationsTotal counts payment verification attempts by result.
	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hirelens",
			Subsystem: "payments",
			Name:      "verifications_total",
			Help:      "Total payment verification attempts by result.",
		},
		[]string{"result"}, // verified, duplicate, signature_mismatch, unknown_order, error
	)

	// CreditsPurchasedTotal counts credits granted through settled purchases.
	CreditsPurchasedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hirelens",
		Subsystem: "payments",
		Name:      "credits_purchased_total",
		Help:      "Total credits granted through settled purchases.",
	})

	// CreditsDebitedTotal counts credits consumed by resume views.
	CreditsDebitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hirelens",
		Subsystem: "payments",
		Name:      "credits_debited_total",
		Help:      "Total credits debited for global resume views.",
	})

	// CreditsRefundedTotal counts credits returned by refunds.
	CreditsRefundedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hirelens",
		Subsystem: "payments",
		Name:      "credits_refunded_total",
		Help:      "Total credits returned to accounts by refunds.",
	})

	// InsufficientCreditsTotal counts debits denied for lack of balance.
	InsufficientCreditsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hirelens",
		Subsystem: "payments",
		Name:      "insufficient_credits_total",
		Help:      "Total debit attempts denied because the balance was too low.",
	})

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hirelens",
			Subsystem: "payments",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// LedgerDriftAccounts tracks accounts whose transaction log disagrees
	// with the stored balance, as found by the last reconciliation run.
	LedgerDriftAccounts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hirelens",
		Subsystem: "payments",
		Name:      "ledger_drift_accounts",
		Help:      "Accounts with a balance that does not replay from their transactions.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hirelens", Subsystem: "payments", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hirelens", Subsystem: "payments", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hirelens", Subsystem: "payments", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		OrdersCreatedTotal,
		OrdersExpiredTotal,
		VerificationsTotal,
		CreditsPurchasedTotal,
		CreditsDebitedTotal,
		CreditsRefundedTotal,
		InsufficientCreditsTotal,
		ActiveWebSocketClients,
		LedgerDriftAccounts,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for the /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
