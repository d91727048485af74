// Package metrics exposes the Prometheus counters and histograms the
// service emits: CPU move latency, games created, moves per command, and
// facade error rates by kind.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GamesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mnk_games_created_total",
		Help: "Total number of games created, by rule set.",
	}, []string{"rule_set"})

	GamesTerminated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mnk_games_terminated_total",
		Help: "Total number of games that reached a terminal state, by outcome.",
	}, []string{"rule_set", "outcome"})

	MovesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mnk_moves_total",
		Help: "Total number of moves committed, by rule set and actor kind.",
	}, []string{"rule_set", "actor"})

	CPUMoveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mnk_cpu_move_duration_seconds",
		Help:    "Time spent by the CPU strategist deciding a move.",
		Buckets: prometheus.DefBuckets,
	}, []string{"rule_set"})

	FacadeCommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mnk_facade_command_duration_seconds",
		Help:    "Time spent executing a facade command.",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	FacadeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mnk_facade_errors_total",
		Help: "Total number of facade command errors, by command and error kind.",
	}, []string{"command", "kind"})

	EventPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mnk_event_publish_failures_total",
		Help: "Total number of domain events that failed to publish.",
	}, []string{"event_type"})
)
