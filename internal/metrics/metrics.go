// Package metrics provides Prometheus instrumentation for the escrow engine.
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
			Namespace: "cinch",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cinch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// EscrowsCreatedTotal counts escrow creations by payment mode.
	EscrowsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cinch",
			Name:      "escrows_created_total",
			Help:      "Total escrows created by payment mode (plain/confidential).",
		},
		[]string{"mode"},
	)

	// EscrowsResolvedTotal counts terminal escrow transitions by outcome.
	EscrowsResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cinch",
			Name:      "escrows_resolved_total",
			Help:      "Total escrows settled by outcome (released/refunded/expired).",
		},
		[]string{"outcome"},
	)

	// DisputesOpenedTotal counts disputes raised by payment mode.
	DisputesOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cinch",
			Name:      "disputes_opened_total",
			Help:      "Total disputes raised by payment mode.",
		},
		[]string{"mode"},
	)

	// DisputesResolvedTotal counts dispute settlements by resolution path.
	DisputesResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cinch",
			Name:      "disputes_resolved_total",
			Help:      "Total disputes settled by path (votes/arbitrator/deadline).",
		},
		[]string{"path"},
	)

	// StakesForfeitedTotal counts forfeited dispute stakes.
	StakesForfeitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cinch",
		Name:      "stakes_forfeited_total",
		Help:      "Total dispute stakes forfeited to the treasury.",
	})

	// StakesRefundedTotal counts refunded dispute stakes.
	StakesRefundedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cinch",
		Name:      "stakes_refunded_total",
		Help:      "Total dispute stakes returned to their poster.",
	})

	// EscrowDuration observes time from escrow creation to settlement.
	EscrowDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cinch",
		Name:      "escrow_duration_seconds",
		Help:      "Time from escrow creation to settlement in seconds.",
		Buckets:   []float64{60, 600, 3600, 21600, 86400, 259200, 604800, 2592000},
	})

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cinch",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cinch", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cinch", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cinch", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cinch", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		EscrowsCreatedTotal,
		EscrowsResolvedTotal,
		DisputesOpenedTotal,
		DisputesResolvedTotal,
		StakesForfeitedTotal,
		StakesRefundedTotal,
		EscrowDuration,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
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
			DBIdleConnections.Set(float64(stats.Idle))
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
