package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"arena-server/internal/arena"
)

// Metrics holds the arena's Prometheus collectors. Each Server gets its own
// registry so tests can run several servers in one process.
type Metrics struct {
	Registry *prometheus.Registry

	commands        *prometheus.CounterVec
	rejected        *prometheus.CounterVec
	evictions       *prometheus.CounterVec
	timeouts        prometheus.Counter
	probes          prometheus.Counter
	matchesFinished prometheus.Counter
	statsFailures   *prometheus.CounterVec
}

func NewMetrics(a *arena.Arena) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		Registry: reg,
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "commands_total",
			Help:      "Commands handled, by phase and command",
		}, []string{"phase", "command"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "commands_rejected_total",
			Help:      "Requests dropped without a reply, by reason",
		}, []string{"reason"}),
		evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "evictions_total",
			Help:      "Seats evicted by the timeout monitor, by phase",
		}, []string{"phase"}),
		timeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "connection_timeouts_total",
			Help:      "Connections dropped after the read deadline",
		}),
		probes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "broadcast_probes_total",
			Help:      "Discovery probes answered",
		}),
		matchesFinished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "matches_finished_total",
			Help:      "Matches that reached game over",
		}),
		statsFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Name:      "stats_sink_failures_total",
			Help:      "Failed stats writes, by sink",
		}, []string{"sink"}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "arena",
		Name:      "lobby_players",
		Help:      "Occupied lobby seats",
	}, func() float64 { return float64(a.LobbySize()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "arena",
		Name:      "game_objects",
		Help:      "Game objects in the running match",
	}, func() float64 { return float64(len(a.Objects())) })

	return m
}
