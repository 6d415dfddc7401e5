// Package metrics provides Prometheus instrumentation for the settlement
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StakesTotal counts accepted stakes, partitioned by tier.
	StakesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_stakes_total",
		Help: "Total number of accepted stakes",
	}, []string{"tier"})

	// BurnedUnits accumulates permanently destroyed units.
	BurnedUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_burned_units_total",
		Help: "Cumulative units destroyed by the burn law",
	})

	// CooldownRejections counts stakes rejected by the cooldown guard.
	CooldownRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_cooldown_rejections_total",
		Help: "Stakes rejected while an identity cooldown was active",
	})

	// VelocityFlags counts stakes held for manual approval.
	VelocityFlags = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_velocity_flags_total",
		Help: "Stakes flagged by the velocity guardian",
	})

	// RefundsTotal counts completed refunds.
	RefundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_refunds_total",
		Help: "Total number of completed refunds",
	})

	// SettlementsTotal counts pool settlement attempts by outcome.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_settlements_total",
		Help: "Pool settlement attempts",
	}, []string{"outcome"})

	// DistributedUnits accumulates units paid out to winners.
	DistributedUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_distributed_units_total",
		Help: "Cumulative units distributed to ranked winners",
	})

	// ActivePools tracks pools currently accepting or playing.
	ActivePools = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_active_pools",
		Help: "Number of pools in REGISTERING or ACTIVE status",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arena_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Raw path as label; route cardinality is small and fixed.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
