// Package metrics defines the Prometheus collectors shared across the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveLobbies tracks how many review lobbies are currently live.
	ActiveLobbies = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "receipt_splitter_active_lobbies",
		Help: "Number of live review lobbies.",
	})

	// ReviewsFinished counts lobbies that completed a full item review.
	ReviewsFinished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receipt_splitter_reviews_finished_total",
		Help: "Completed receipt reviews.",
	})

	// EventsBroadcast counts group broadcasts through the hub.
	EventsBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receipt_splitter_events_broadcast_total",
		Help: "Events fanned out to lobby groups.",
	})

	// EventsDropped counts events lost to slow subscribers.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receipt_splitter_events_dropped_total",
		Help: "Events dropped because a subscriber was not draining.",
	})

	// Actions counts dispatched session actions by name and outcome.
	Actions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_splitter_actions_total",
		Help: "Session actions processed by the dispatch worker.",
	}, []string{"action", "outcome"})

	// RequestDuration observes HTTP handler latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "receipt_splitter_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)
