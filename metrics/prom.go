package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Not-found reasons. Callers only ever see one 404; the label is for operators.
const (
	ReasonAbsent    = "absent"
	ReasonExpired   = "expired"
	ReasonExhausted = "exhausted"
)

var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pasteline_paste_created_total",
		Help: "no. of pastes created",
	})
	PasteRetrieved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pasteline_paste_retrieved_total",
			Help: "no. of successful paste retrievals",
		},
		[]string{"counted"},
	)
	PasteNotFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pasteline_paste_not_found_total",
			Help: "no. of retrievals answered with not found",
		},
		[]string{"reason"},
	)
	PasteBurned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pasteline_paste_burned_total",
		Help: "no. of pastes deleted on their final permitted view",
	})
	ValidationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pasteline_validation_failures_total",
		Help: "no. of create requests rejected by validation",
	})
	BackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pasteline_backend_errors_total",
			Help: "no. of failed key-value backend operations",
		},
		[]string{"op"},
	)
	EventPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pasteline_event_publish_errors_total",
		Help: "no. of lifecycle events that could not be published",
	})
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pasteline_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pasteline_rate_limit_hits_total",
			Help: "no. of rate limit violations",
		},
		[]string{"endpoint"},
	)
	RecentErrorRatePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pasteline_recent_error_rate_percent",
		Help: "share of 5xx responses over the last five minutes",
	})
	CleanupDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pasteline_cleanup_deleted_total",
		Help: "no. of expired rows reaped by the sqlite cleaner",
	})
)
