// Package observability holds the process-wide Prometheus collectors.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "duet"

var (
	SessionsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_live",
		Help:      "Connection sessions currently joined to a room.",
	})

	BroadcastFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_frames_total",
		Help:      "Frames handed to session outbound queues, by result.",
	}, []string{"result"})

	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Inbound events by type and outcome.",
	}, []string{"type", "outcome"})
)

const (
	ResultSent    = "sent"
	ResultDropped = "dropped"

	OutcomeOK        = "ok"
	OutcomeDropped   = "dropped"
	OutcomeMalformed = "malformed"
	OutcomeFailed    = "failed"
)

func CountBroadcast(sent, dropped int) {
	BroadcastFrames.WithLabelValues(ResultSent).Add(float64(sent))
	BroadcastFrames.WithLabelValues(ResultDropped).Add(float64(dropped))
}

func CountEvent(eventType, outcome string) {
	Events.WithLabelValues(eventType, outcome).Inc()
}
