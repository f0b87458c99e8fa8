package reachability

import (
	"context"
	"sync"
)

// Manual is a monitor whose state is set by its owner. It backs the CLI's
// offline mode and tests.
type Manual struct {
	mu        sync.Mutex
	reachable bool
	notify    []chan struct{}
}

// NewManual returns a monitor starting in the given state.
func NewManual(reachable bool) *Manual {
	return &Manual{reachable: reachable}
}

// Set changes the reported state.
func (m *Manual) Set(reachable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reachable = reachable
	for _, ch := range m.notify {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Reachable returns the current state.
func (m *Manual) Reachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reachable
}

// Watch emits the current state, then every change.
func (m *Manual) Watch(ctx context.Context) <-chan Transition {
	wake := make(chan struct{}, 1)
	m.mu.Lock()
	m.notify = append(m.notify, wake)
	m.mu.Unlock()

	em := newEmitter()
	go func() {
		defer close(em.out)
		defer m.forget(wake)
		for {
			if !em.observe(ctx, m.Reachable()) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-wake:
			}
		}
	}()
	return em.out
}

func (m *Manual) forget(wake chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, ch := range m.notify {
		if ch == wake {
			m.notify = append(m.notify[:i], m.notify[i+1:]...)
			return
		}
	}
}
