// Package metrics exposes Prometheus collectors for the realtime core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shiftgrid/realtime/internal/model"
)

var (
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftgrid",
			Subsystem: "realtime",
			Name:      "state_transitions_total",
			Help:      "Connection state machine transitions",
		},
		[]string{"from", "to"},
	)

	eventsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftgrid",
			Subsystem: "realtime",
			Name:      "events_dispatched_total",
			Help:      "Inbound events delivered to the dispatch registry",
		},
		[]string{"type", "transport"},
	)

	reconnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "shiftgrid",
			Subsystem: "realtime",
			Name:      "reconnect_attempts_total",
			Help:      "Socket reconnection attempts",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "shiftgrid",
			Subsystem: "realtime",
			Name:      "queue_depth",
			Help:      "Pending actions in the offline queue",
		},
	)

	actionsReplayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftgrid",
			Subsystem: "realtime",
			Name:      "actions_replayed_total",
			Help:      "Offline queue replay outcomes",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		stateTransitions,
		eventsDispatched,
		reconnectAttempts,
		queueDepth,
		actionsReplayed,
	)
}

// RecordStateTransition counts a state machine transition.
func RecordStateTransition(from, to model.ConnectionState) {
	stateTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordEventDispatched counts an inbound event by type and transport.
func RecordEventDispatched(eventType, transport string) {
	eventsDispatched.WithLabelValues(eventType, transport).Inc()
}

// RecordReconnectAttempt counts a socket reconnection attempt.
func RecordReconnectAttempt() {
	reconnectAttempts.Inc()
}

// SetQueueDepth records the current offline queue depth.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// RecordActionReplay counts a replay outcome: "delivered", "requeued",
// or "dropped".
func RecordActionReplay(result string) {
	actionsReplayed.WithLabelValues(result).Inc()
}
