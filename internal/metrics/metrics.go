package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cardEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cards_events_total",
			Help: "Card lifecycle events published, by event and card type",
		},
		[]string{"event", "card_type"},
	)

	chatMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Chat message writes, by outcome",
		},
		[]string{"outcome"},
	)

	chatsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_deleted_total",
			Help: "Chats deleted, by reason",
		},
		[]string{"reason"},
	)

	matchTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_transitions_total",
			Help: "Directional match status transitions",
		},
		[]string{"to"},
	)

	postViews = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "post_views_total",
			Help: "Reported post views, by outcome",
		},
		[]string{"outcome"},
	)

	jobRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_job_retries_total",
			Help: "Background job retries, by job name",
		},
		[]string{"job"},
	)

	jobFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_job_failures_total",
			Help: "Background jobs dropped after exhausting retries",
		},
		[]string{"job"},
	)
)

func RecordCardEvent(event, cardType string) {
	cardEvents.WithLabelValues(event, cardType).Inc()
}

func RecordChatMessage(outcome string) {
	chatMessages.WithLabelValues(outcome).Inc()
}

func RecordChatDeleted(reason string) {
	chatsDeleted.WithLabelValues(reason).Inc()
}

func RecordMatchTransition(to string) {
	matchTransitions.WithLabelValues(to).Inc()
}

func RecordPostView(outcome string) {
	postViews.WithLabelValues(outcome).Inc()
}

func RecordJobRetry(job string) {
	jobRetries.WithLabelValues(job).Inc()
}

func RecordJobFailure(job string) {
	jobFailures.WithLabelValues(job).Inc()
}
