// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package metrics exposes session controller activity as Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	apperrors "idkeeper/cli/internal/errors"
	"idkeeper/cli/internal/session"
)

const namespace = "idkeeper"

// Recorder implements session.Recorder on top of Prometheus counters.
type Recorder struct {
	transitions *prometheus.CounterVec
	events      *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	status      *prometheus.GaugeVec
}

var _ session.Recorder = (*Recorder)(nil)

// New creates a Recorder and registers its collectors with reg.
// A nil reg leaves the collectors unregistered.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session status transitions.",
		}, []string{"from", "to"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "events_total",
			Help:      "Session events published to subscribers.",
		}, []string{"kind"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Identity provider requests by operation and result.",
		}, []string{"op", "result"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "status",
			Help:      "1 for the current session status, 0 otherwise.",
		}, []string{"status"}),
	}
	if reg == nil {
		return r, nil
	}
	for _, c := range []prometheus.Collector{r.transitions, r.events, r.outcomes, r.status} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) Transition(from, to session.Status) {
	r.transitions.WithLabelValues(from.String(), to.String()).Inc()
	r.status.WithLabelValues(from.String()).Set(0)
	r.status.WithLabelValues(to.String()).Set(1)
}

func (r *Recorder) Event(kind session.EventKind) {
	r.events.WithLabelValues(kind.String()).Inc()
}

func (r *Recorder) Outcome(op string, err error) {
	r.outcomes.WithLabelValues(op, result(err)).Inc()
}

// result collapses an error into a bounded label value.
func result(err error) string {
	if err == nil {
		return "ok"
	}
	switch k := apperrors.KindOf(err); k {
	case apperrors.Unauthorized, apperrors.Network, apperrors.Malformed, apperrors.Unavailable:
		return string(k)
	default:
		return "error"
	}
}
