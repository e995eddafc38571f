package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tablebook"

var (
	once sync.Once

	availabilityChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_checks_total",
			Help:      "Count of availability checks by result.",
		},
		[]string{"result"},
	)

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_created_total",
			Help:      "Count of bookings committed by initial status and assignment strategy.",
		},
		[]string{"status", "strategy"},
	)

	bookingRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_rejected_total",
			Help:      "Count of booking requests rejected by error kind.",
		},
		[]string{"kind"},
	)

	statusChanged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_status_changed_total",
			Help:      "Count of booking status transitions by target status.",
		},
		[]string{"status"},
	)

	commitRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_commit_retries_total",
			Help:      "Count of commit attempts retried after a table conflict.",
		},
	)

	cacheRebuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_rebuild_total",
			Help:      "Count of availability snapshot rebuilds by result.",
		},
		[]string{"result"},
	)

	rebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "availability_rebuild_duration_seconds",
			Help:      "Time to rebuild the snapshots of one date.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
		},
	)

	cacheFailover = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_store_failover_total",
			Help:      "Count of snapshot store operations served by the fallback store.",
		},
		[]string{"op"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests by method, route and status code.",
		},
		[]string{"method", "route", "code"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			availabilityChecks,
			bookingCreated,
			bookingRejected,
			statusChanged,
			commitRetries,
			cacheRebuilds,
			rebuildDuration,
			cacheFailover,
			httpRequests,
		)
	})
}

func IncAvailabilityCheck(result string) {
	availabilityChecks.WithLabelValues(result).Inc()
}

func IncBookingCreated(status, strategy string) {
	bookingCreated.WithLabelValues(status, strategy).Inc()
}

func IncBookingRejected(kind string) {
	bookingRejected.WithLabelValues(kind).Inc()
}

func IncStatusChanged(status string) {
	statusChanged.WithLabelValues(status).Inc()
}

func IncCommitRetry() {
	commitRetries.Inc()
}

func IncCacheRebuild(result string) {
	cacheRebuilds.WithLabelValues(result).Inc()
}

func ObserveRebuildDuration(d time.Duration) {
	rebuildDuration.Observe(d.Seconds())
}

func IncStoreFailover(op string) {
	cacheFailover.WithLabelValues(op).Inc()
}

func IncHTTPRequest(method, route string, code int) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}
