package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, s *Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-s.C():
		require.True(t, ok, "subscription closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	bus := New[int]()
	slow := bus.Subscribe()
	defer slow.Unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked while nobody was reading")
	}

	for i := 0; i < 1000; i++ {
		assert.Equal(t, i, receive(t, slow))
	}
}

func TestEverySubscriberSeesSameOrder(t *testing.T) {
	bus := New[string]()
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer a.Unsubscribe()
	defer b.Unsubscribe()

	want := []string{"opened", "refreshed", "closed"}
	for _, v := range want {
		bus.Publish(v)
	}

	for _, sub := range []*Subscription[string]{a, b} {
		var got []string
		for range want {
			got = append(got, receive(t, sub))
		}
		assert.Equal(t, want, got)
	}
}

func TestLateSubscriberMissesEarlierValues(t *testing.T) {
	bus := New[int]()
	bus.Publish(1)
	s := bus.Subscribe()
	defer s.Unsubscribe()
	bus.Publish(2)

	assert.Equal(t, 2, receive(t, s))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New[int]()
	s := bus.Subscribe()
	bus.Publish(1)
	s.Unsubscribe()
	assert.Equal(t, 0, bus.Len())

	// Queued values may or may not have been handed over, but the channel
	// must close.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-s.C():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after Unsubscribe")
		}
	}
}

func TestCloseDrainsQueuedValues(t *testing.T) {
	bus := New[int]()
	s := bus.Subscribe()
	bus.Publish(1)
	bus.Publish(2)
	bus.Close()
	bus.Publish(3)

	var got []int
	for v := range s.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2}, got)

	late := bus.Subscribe()
	_, ok := <-late.C()
	assert.False(t, ok)
}
