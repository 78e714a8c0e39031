package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const unmatchedRoute = "unmatched"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "taskcoin",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskcoin",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taskcoin",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	txOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskcoin",
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Ledger transactions by outcome (committed, rolled_back, conflict).",
		},
		[]string{"outcome"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskcoin",
			Subsystem: "ledger",
			Name:      "transitions_total",
			Help:      "Committed entity status transitions.",
		},
		[]string{"entity", "status"},
	)

	coinsMoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskcoin",
			Subsystem: "ledger",
			Name:      "coins_total",
			Help:      "Coins moved by committed operations, by ledger entry type.",
		},
		[]string{"entry_type"},
	)

	gatewayCalls = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taskcoin",
			Subsystem: "gateway",
			Name:      "call_duration_seconds",
			Help:      "Duration of payment gateway calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"op", "success"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskcoin",
			Subsystem: "notify",
			Name:      "enqueued_total",
			Help:      "Notification enqueue attempts.",
		},
		[]string{"success"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		txOutcomes,
		transitions,
		coinsMoved,
		gatewayCalls,
		notifications,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// next must be a *http.ServeMux or pass the request to one unchanged: the path
// label is the matched route pattern, and requests no route matched share the
// "unmatched" label.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := routeLabel(r.Pattern)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordTx records the outcome of one transaction attempt.
func RecordTx(outcome string) {
	txOutcomes.WithLabelValues(outcome).Inc()
}

// RecordTransition records a committed status change of a submission, withdrawal or payment.
func RecordTransition(entity, status string) {
	transitions.WithLabelValues(entity, status).Inc()
}

// RecordCoins records coins moved by a committed operation.
func RecordCoins(entryType string, amount int64) {
	if amount <= 0 {
		return
	}
	coinsMoved.WithLabelValues(entryType).Add(float64(amount))
}

// RecordGatewayCall records a payment gateway round trip.
func RecordGatewayCall(op string, duration time.Duration, success bool) {
	gatewayCalls.WithLabelValues(op, strconv.FormatBool(success)).Observe(duration.Seconds())
}

// RecordNotification records a notification enqueue attempt.
func RecordNotification(success bool) {
	notifications.WithLabelValues(strconv.FormatBool(success)).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// routeLabel strips the method from a ServeMux pattern such as "GET /api/v1/tasks/{id}".
func routeLabel(pattern string) string {
	if pattern == "" {
		return unmatchedRoute
	}
	if _, rest, ok := strings.Cut(pattern, " "); ok {
		return strings.TrimSpace(rest)
	}
	return pattern
}
