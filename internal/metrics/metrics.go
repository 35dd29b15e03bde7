// Package metrics exposes the Prometheus collectors shared by the evaluation
// engine, the notification router and the HTTP layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EvaluationsTotal counts rule evaluations by outcome.
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bms",
		Subsystem: "alerting",
		Name:      "rule_evaluations_total",
		Help:      "Rule evaluations by outcome (triggered, not_triggered, error).",
	}, []string{"outcome"})

	// AlertsTriggered counts newly created alert instances by severity.
	AlertsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bms",
		Subsystem: "alerting",
		Name:      "alerts_triggered_total",
		Help:      "Alert instances created, labelled by severity.",
	}, []string{"severity"})

	// NotificationsTotal counts delivery attempts by channel and status.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bms",
		Subsystem: "notify",
		Name:      "notifications_total",
		Help:      "Notification delivery attempts by channel and terminal status.",
	}, []string{"channel", "status"})

	// EscalationsTotal counts escalation stages fired.
	EscalationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bms",
		Subsystem: "notify",
		Name:      "escalations_total",
		Help:      "Escalation stages fired.",
	})

	// RetriesTotal counts notification retry attempts by outcome.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bms",
		Subsystem: "notify",
		Name:      "retries_total",
		Help:      "Notification retry attempts by outcome.",
	}, []string{"outcome"})

	// HTTPRequestDuration observes API request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bms",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method, path and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
