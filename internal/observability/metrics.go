package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layoutbot_updates_total",
			Help: "Telegram updates handled, by kind",
		},
		[]string{"kind"},
	)

	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layoutbot_commands_total",
			Help: "Translation commands processed, by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	MessagesRecordedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "layoutbot_messages_recorded_total",
			Help: "Messages persisted to the store",
		},
	)

	RetentionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layoutbot_retention_runs_total",
			Help: "Retention runs, by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	RetentionDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "layoutbot_retention_deleted_total",
			Help: "Messages removed by retention",
		},
	)

	StoreSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "layoutbot_store_size_bytes",
			Help: "Last observed on-disk size of the message store",
		},
	)

	TelegramRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "layoutbot_telegram_request_duration_seconds",
			Help:    "Duration of Telegram Bot API calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "outcome"},
	)
)
