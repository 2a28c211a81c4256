// Package observability holds the Prometheus collectors for business-level
// signals the transport middleware cannot see (AI provider calls, extraction
// cache effectiveness, billing webhook traffic, quota rejections) and the
// OpenTelemetry trace pipeline setup. HTTP-level metrics live in the
// middleware package.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// AIRequests counts calls to the AI provider, partitioned by operation
	// (vision, text) and outcome (ok, empty, error).
	AIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_upstream_requests_total",
			Help: "AI provider calls partitioned by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	// CacheRequests counts extraction cache lookups by result (hit, miss).
	CacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_cache_requests_total",
			Help: "Extraction cache lookups partitioned by result.",
		},
		[]string{"result"},
	)

	// WebhookEvents counts billing webhook deliveries by event type and
	// outcome (applied, apply_error, invalid_signature, verify_error,
	// unparseable, unreadable). Deliveries rejected before parsing carry
	// event_type "unknown".
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paypal_webhook_events_total",
			Help: "PayPal webhook deliveries partitioned by event type and outcome.",
		},
		[]string{"event_type", "outcome"},
	)

	// QuotaRejections counts requests turned away before reaching the AI
	// provider, partitioned by reason (no_subscription, limit_reached).
	QuotaRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_rejections_total",
			Help: "Metered requests rejected before processing, partitioned by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(AIRequests, CacheRequests, WebhookEvents, QuotaRejections)
}
