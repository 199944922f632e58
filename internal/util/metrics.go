package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HubConnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_connects_total",
		Help: "Total number of successful hub connections",
	}, []string{"channel"})

	HubReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_reconnects_total",
		Help: "Total number of hub reconnect attempts after a dropped connection",
	}, []string{"channel"})

	HubEventsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_events_received_total",
		Help: "Total number of hub events dispatched to handlers",
	}, []string{"channel", "event"})

	ListFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "list_fetches_total",
		Help: "Total number of paginated list fetches",
	}, []string{"list", "result"})

	StaleResponsesDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "list_stale_responses_discarded_total",
		Help: "Responses discarded because a newer fetch was issued for the list",
	}, []string{"list"})

	RefreshesScheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refresh_scheduled_total",
		Help: "Total number of debounced refreshes scheduled",
	})

	RefreshesFiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refresh_fired_total",
		Help: "Total number of debounced refreshes that actually fired",
	})

	RefreshesDeferredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refresh_deferred_total",
		Help: "Refreshes retained as pending because the view was not focused",
	})

	NotificationsAddedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_added_total",
		Help: "Total number of notifications accepted into the store",
	}, []string{"type"})

	NotificationsDedupedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_deduped_total",
		Help: "Notifications dropped as duplicates of an already-held delivery",
	})

	StatusAdvanceBatchFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "status_advance_batch_fallbacks_total",
		Help: "Batch status-change calls that fell back to per-item requests",
	})

	CartHydrationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_hydration_failures_total",
		Help: "Cart line detail fetches that failed and rendered placeholders",
	})

	BackendRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backend_request_latency_seconds",
		Help:    "Latency of REST calls against the backend",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
