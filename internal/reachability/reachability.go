// Package reachability reports whether the identity provider can be reached.
//
// A Monitor publishes transitions on a channel: the first value reflects the
// state at the time it is known, later values only changes. The channel is
// closed when the watch context ends.
package reachability

import (
	"context"
)

// Transition is a change of connectivity.
type Transition int

const (
	BecameReachable Transition = iota + 1
	BecameUnreachable
)

func (t Transition) String() string {
	switch t {
	case BecameReachable:
		return "becameReachable"
	case BecameUnreachable:
		return "becameUnreachable"
	}
	return "unknown"
}

// Monitor is a source of connectivity transitions.
type Monitor interface {
	Watch(ctx context.Context) <-chan Transition
}

func of(reachable bool) Transition {
	if reachable {
		return BecameReachable
	}
	return BecameUnreachable
}

// emitter forwards observations to out, dropping repeats.
type emitter struct {
	out  chan Transition
	last Transition
}

func newEmitter() *emitter {
	return &emitter{out: make(chan Transition, 1)}
}

// observe reports false once ctx is done.
func (e *emitter) observe(ctx context.Context, reachable bool) bool {
	t := of(reachable)
	if t == e.last {
		return ctx.Err() == nil
	}
	select {
	case e.out <- t:
		e.last = t
		return true
	case <-ctx.Done():
		return false
	}
}
