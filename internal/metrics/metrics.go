package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Backend call counters, labelled by operation and outcome
// (ok, server_error, network_error, parse_error).
var (
	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lockin_backend_requests_total",
		Help: "Backend API calls by operation and outcome.",
	}, []string{"op", "outcome"})

	BackendRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lockin_backend_retries_total",
		Help: "Retried backend attempts after a 503.",
	}, []string{"op"})

	ReminderFirings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lockin_reminder_firings_total",
		Help: "Reminder scheduler firings by result (done, retry).",
	}, []string{"result"})

	NotificationsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lockin_notifications_published_total",
		Help: "Reminder notifications handed off to the dispatcher.",
	})
)
