// Package feed delivers live ticket snapshots to subscribers.
//
// A Subscription carries full-state snapshots, not deltas, so a consumer
// that falls behind loses nothing by skipping intermediate states: the
// channel holds at most one pending snapshot and a newer one replaces it.
// Producers never block on a slow consumer.
package feed

import (
	"sync"

	"github.com/spec-kit/support-tickets/internal/domain"
)

// Snapshot is the complete current result of a watched query. A non-nil
// Err is terminal: the subscription closes after delivering it.
type Snapshot struct {
	Tickets []domain.Ticket
	Err     error
}

// Subscription is a stream of snapshots plus a cancel function.
type Subscription struct {
	mu     sync.Mutex
	ch     chan Snapshot
	done   chan struct{}
	closed bool
	stop   func()
}

// NewSubscription returns an open subscription. stop runs once on Close
// and should release whatever the producer holds for this subscriber.
func NewSubscription(stop func()) *Subscription {
	return &Subscription{
		ch:   make(chan Snapshot, 1),
		done: make(chan struct{}),
		stop: stop,
	}
}

// C returns the snapshot channel. It is closed after Close.
func (s *Subscription) C() <-chan Snapshot { return s.ch }

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Publish offers a snapshot without blocking. A pending undelivered
// snapshot is replaced. Returns false once the subscription is closed.
func (s *Subscription) Publish(snapshot Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snapshot
	return true
}

// Fail delivers a terminal error snapshot and closes the subscription.
func (s *Subscription) Fail(err error) {
	s.Publish(Snapshot{Err: err})
	s.shutdown(false)
}

// Close cancels the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.shutdown(true)
}

func (s *Subscription) shutdown(drain bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if drain {
		select {
		case <-s.ch:
		default:
		}
	}
	close(s.ch)
	close(s.done)
	stop := s.stop
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}
