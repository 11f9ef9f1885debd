// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "peerprep"

var (
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "matching",
		Name:      "queue_depth",
		Help:      "Match requests currently waiting for a partner.",
	})

	MatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "matching",
		Name:      "matches_total",
		Help:      "Pairs formed by the matching queue.",
	})

	MatchRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "matching",
		Name:      "rejections_total",
		Help:      "Find-match requests rejected, by reason.",
	}, []string{"reason"})

	ExpiredRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "matching",
		Name:      "expired_requests_total",
		Help:      "Queued requests removed by the staleness sweep.",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "collab",
		Name:      "active_rooms",
		Help:      "Rooms with at least one live participant.",
	})

	QuestionFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "collab",
		Name:      "question_fetches_total",
		Help:      "Room question resolutions, by outcome.",
	}, []string{"outcome"})

	IdleEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "collab",
		Name:      "idle_evictions_total",
		Help:      "Connections closed by the idle sweep.",
	})

	HistoryWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "history",
		Name:      "writes_total",
		Help:      "Session history writes, by result.",
	}, []string{"result"})
)

// Question fetch outcomes.
const (
	OutcomeExact       = "exact"
	OutcomeFallback    = "fallback"
	OutcomePlaceholder = "placeholder"
)
