package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamchat_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// InviteEvents counts invite lifecycle transitions by event
	// (created|accepted|cancelled|expired|rejected).
	InviteEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamchat_invite_events_total",
			Help: "Total number of workspace invite lifecycle events",
		},
		[]string{"event"},
	)

	// MessagesAppended counts persisted messages by target (conversation|channel) and type.
	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamchat_messages_appended_total",
			Help: "Total number of messages appended",
		},
		[]string{"target", "type"},
	)

	// ConversationsCreated counts direct conversations created on first contact.
	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teamchat_conversations_created_total",
			Help: "Total number of direct conversations created",
		},
	)

	// CacheLookups records in-process cache lookups by cache name and result (hit|miss).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamchat_cache_lookups_total",
			Help: "Total number of in-process cache lookups",
		},
		[]string{"cache", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teamchat_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
