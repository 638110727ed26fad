// Package metrics defines the prometheus collectors of the lender service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LedgerEntries counts ledger entries posted, by entry type.
	LedgerEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lender_ledger_entries_total",
			Help: "Ledger entries posted.",
		},
		[]string{"type"},
	)

	// LedgerRejections counts posts refused by the ledger, by reason.
	LedgerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lender_ledger_rejections_total",
			Help: "Ledger posts refused.",
		},
		[]string{"reason"},
	)

	// LedgerCorruptions counts accounts halted after a broken balance chain.
	LedgerCorruptions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lender_ledger_corruptions_total",
			Help: "Ledger accounts halted after a broken balance chain.",
		},
	)

	// Transitions counts lifecycle transitions, by entity and target status.
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lender_transitions_total",
			Help: "Loan and savings lifecycle transitions.",
		},
		[]string{"entity", "status"},
	)

	// Quotes counts computed loan quotes, by frequency.
	Quotes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lender_quotes_total",
			Help: "Loan quotes computed.",
		},
		[]string{"frequency"},
	)

	// EventsPublished counts published domain events, by type and outcome.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lender_events_published_total",
			Help: "Domain events handed to the publisher.",
		},
		[]string{"type", "status"},
	)

	// RequestDuration observes HTTP request latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lender_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

