// Package metrics exposes the process-wide Prometheus collectors. They
// register on the default registry so the control API can serve them through
// promhttp without extra wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decisions counts component-tree decisions by action.
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "negotiator_decisions_total",
		Help: "Decisions emitted by component trees, by action.",
	}, []string{"action"})

	// SessionsTerminated counts terminal sessions by outcome.
	SessionsTerminated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "negotiator_sessions_terminated_total",
		Help: "Sessions reaching a terminal outcome, by outcome.",
	}, []string{"outcome"})

	// EventsDelivered counts events handed to a subscriber's Notify.
	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "negotiator_events_delivered_total",
		Help: "Events delivered to subscribers, by kind.",
	}, []string{"kind"})

	// EventsDropped counts events dropped on a subscriber's behalf.
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "negotiator_events_dropped_total",
		Help: "Events dropped per subscriber, by cause.",
	}, []string{"cause"})

	// ControlCommands counts control command results.
	ControlCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "negotiator_control_commands_total",
		Help: "Control commands routed to components, by result.",
	}, []string{"result"})
)
