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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minaret_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minaret_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	notificationsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "minaret_notifications_scheduled_total",
			Help: "Total schedule rows created by the planner",
		},
	)

	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minaret_notifications_sent_total",
			Help: "Total delivery attempts by prayer and outcome",
		},
		[]string{"prayer", "outcome"},
	)

	deliveryLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "minaret_delivery_latency_seconds",
			Help:    "Time spent delivering one push message",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
	)

	dueBacklog = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "minaret_due_backlog",
			Help: "Due, unsent notifications picked up by the last scan tick",
		},
	)

	activeSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "minaret_active_subscribers",
			Help: "Active subscribers observed by the last nightly reschedule",
		},
	)

	rateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "minaret_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordNotificationsScheduled records rows created by a planning pass.
func RecordNotificationsScheduled(count int) {
	notificationsScheduled.Add(float64(count))
}

// RecordNotificationSent records one delivery attempt outcome.
func RecordNotificationSent(prayer, outcome string) {
	notificationsSent.WithLabelValues(prayer, outcome).Inc()
}

// RecordDeliveryLatency records how long one push delivery took.
func RecordDeliveryLatency(d time.Duration) {
	deliveryLatency.Observe(d.Seconds())
}

// SetDueBacklog sets the size of the last due-scan batch.
func SetDueBacklog(count int) {
	dueBacklog.Set(float64(count))
}

// SetActiveSubscribers sets the active subscriber count.
func SetActiveSubscribers(count int) {
	activeSubscribers.Set(float64(count))
}

// RecordRateLimitRejection records a rate limit rejection.
func RecordRateLimitRejection() {
	rateLimitRejections.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
