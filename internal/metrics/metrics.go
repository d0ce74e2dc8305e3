// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LiveGames = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "battlecp_live_games",
		Help: "Games currently held in the registry.",
	})

	InboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "battlecp_inbound_messages_total",
		Help: "Inbound socket messages by kind.",
	}, []string{"kind"})

	FanoutDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "battlecp_fanout_dropped_events_total",
		Help: "Fanout events skipped because a subscriber lagged.",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "battlecp_sweep_duration_seconds",
		Help:    "Wall time of one full sweeper pass.",
		Buckets: prometheus.DefBuckets,
	})
)
