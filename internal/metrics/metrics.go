package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Inbound pipeline metrics
var (
	InboundMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoresponder_inbound_messages_total",
			Help: "Inbound webhook calls by outcome",
		},
		[]string{"result"},
	)

	InboundDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autoresponder_inbound_duration_seconds",
			Help:    "Time spent processing an inbound webhook",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		},
		[]string{"result"},
	)

	SubscriptionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoresponder_subscription_transitions_total",
			Help: "Subscription state transitions",
		},
		[]string{"transition"},
	)

	UnsubscribesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoresponder_unsubscribes_total",
			Help: "Unsubscribe link visits by outcome",
		},
		[]string{"result"},
	)
)

// Queue and delivery metrics
var (
	JobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoresponder_jobs_enqueued_total",
			Help: "Jobs published to the queue",
		},
		[]string{"task"},
	)

	JobResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoresponder_job_results_total",
			Help: "Job executions by outcome (success, retry, dropped, requeued)",
		},
		[]string{"task", "result"},
	)

	OutboxRelayedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "autoresponder_outbox_relayed_total",
			Help: "Stale outbox jobs re-published by the relay",
		},
	)

	MailSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoresponder_mail_sends_total",
			Help: "Outbound mail send attempts by provider and outcome",
		},
		[]string{"provider", "result"},
	)
)
