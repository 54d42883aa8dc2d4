// persistence/subscription.go
package persistence

import (
	"sync"
)

// Subscription delivers committed room snapshots to one listener, in commit
// order. A slow listener is never dropped: intermediate snapshots coalesce
// into the latest one instead, which the transition logic tolerates because
// no quorum check ever depends on having seen every intermediate state.
// The deleted signal and feed errors are terminal.
type Subscription struct {
	events chan Event

	mu      sync.Mutex
	pending *Event
	signal  chan struct{}

	done     chan struct{}
	once     sync.Once
	onCancel func()
}

func newSubscription(onCancel func()) *Subscription {
	s := &Subscription{
		events:   make(chan Event),
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		onCancel: onCancel,
	}
	go s.pump()
	return s
}

// Events returns the delivery channel. It is closed after a terminal event
// or once the subscription is cancelled.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Cancel stops delivery. Safe to call more than once and has no effect on
// the room itself.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		if s.onCancel != nil {
			s.onCancel()
		}
		close(s.done)
	})
}

// publish hands the subscription a new event. Called by the store with
// events in commit order; a snapshot still waiting to be consumed is
// replaced by the newer one.
func (s *Subscription) publish(ev Event) {
	s.mu.Lock()
	if s.pending != nil && (s.pending.Deleted || s.pending.Err != nil) {
		// terminal event already queued, nothing newer can matter
		s.mu.Unlock()
		return
	}
	s.pending = &ev
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.events)
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}

		s.mu.Lock()
		ev := s.pending
		s.pending = nil
		s.mu.Unlock()
		if ev == nil {
			continue
		}

		select {
		case s.events <- *ev:
		case <-s.done:
			return
		}

		if ev.Deleted || ev.Err != nil {
			s.Cancel()
			return
		}
	}
}
