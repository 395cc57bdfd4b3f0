// Package metrics provides Prometheus instrumentation for the lot engine.
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
	// CalculationsTotal counts calculation runs, partitioned by kind
	// ("progression" or "loss_support").
	CalculationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lotengine_calculations_total",
		Help: "Total number of calculation runs",
	}, []string{"kind"})

	// CalculationDuration tracks calculation latency by kind.
	CalculationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lotengine_calculation_duration_seconds",
		Help:    "Calculation latency in seconds",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
	}, []string{"kind"})

	// ConfigRejections counts requests rejected for degenerate strategy
	// parameters or invalid plan specs.
	ConfigRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lotengine_config_rejections_total",
		Help: "Requests rejected by parameter validation",
	})

	// CSVExportsTotal counts loss-support CSV downloads.
	CSVExportsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lotengine_csv_exports_total",
		Help: "Total CSV exports served",
	})

	// WebSocketClients tracks connected live-recalculation clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lotengine_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lotengine_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lotengine_http_request_duration_seconds",
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
