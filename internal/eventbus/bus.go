// Package eventbus fans values out to any number of subscribers without ever
// blocking the publisher. Each subscriber owns an unbounded queue drained by its
// own goroutine, so a slow reader delays only itself and always observes
// values in publication order.
package eventbus

import (
	"sync"
)

// Bus broadcasts values of type T.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

// New returns an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Subscription receives values published after it was created.
type Subscription[T any] struct {
	bus  *Bus[T]
	out  chan T
	done chan struct{}

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []T
	stopped bool
	dropped bool
}

// Subscribe registers a new subscriber. Values published before this call are
// not delivered to it.
func (b *Bus[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{bus: b, out: make(chan T), done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.out)
		s.stopped = true
		return s
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.pump()
	return s
}

// Publish enqueues v for every current subscriber and returns immediately.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		s.enqueue(v)
	}
}

// Len reports the number of live subscribers.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close stops every subscription after its queued values were delivered.
// Publishing after Close is a no-op.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = map[*Subscription[T]]struct{}{}
	b.mu.Unlock()

	for s := range subs {
		s.finish(false)
	}
}

// C returns the channel values are delivered on. It is closed once the
// subscription ends.
func (s *Subscription[T]) C() <-chan T { return s.out }

// Unsubscribe detaches the subscriber and discards anything still queued.
func (s *Subscription[T]) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.finish(true)
}

func (s *Subscription[T]) enqueue(v T) {
	s.mu.Lock()
	if !s.stopped {
		s.queue = append(s.queue, v)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

// finish ends the pump. With drop set, pending values are discarded;
// otherwise the pump delivers them before closing the channel.
func (s *Subscription[T]) finish(drop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if drop && !s.dropped {
		s.dropped = true
		s.queue = nil
		close(s.done)
	}
	s.cond.Broadcast()
}

func (s *Subscription[T]) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		v := s.queue[0]
		var zero T
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- v:
		case <-s.done:
			return
		}
	}
}
