package repository

import (
	"context"
	"sync"

	"github.com/spec-kit/support-tickets/internal/domain"
	"github.com/spec-kit/support-tickets/internal/feed"
)

// watcher is one live query. ticketID is set for single-ticket watches.
type watcher struct {
	query    TicketQuery
	ticketID string
	sub      *feed.Subscription

	// members holds the ids of the last list snapshot. Drivers that only
	// learn the new state of a changed ticket use it to notice a ticket
	// leaving the query. Guarded by the driver's fan-out lock.
	members map[string]struct{}
}

func (w *watcher) single() bool { return w.ticketID != "" }

// remember records the ids of a published list snapshot.
func (w *watcher) remember(tickets []domain.Ticket) {
	w.members = make(map[string]struct{}, len(tickets))
	for i := range tickets {
		w.members[tickets[i].ID] = struct{}{}
	}
}

// affectedBy reports whether a change to ticket id, now in state changed
// (nil once deleted), can alter what the watcher shows.
func (w *watcher) affectedBy(id string, changed *domain.Ticket) bool {
	if w.single() {
		return w.ticketID == id
	}
	if _, ok := w.members[id]; ok {
		return true
	}
	return w.query.Matches(changed)
}

// watcherSet tracks live queries for drivers that fan out changes
// themselves rather than relying on store-side listeners.
type watcherSet struct {
	mu       sync.Mutex
	next     uint64
	watchers map[uint64]*watcher
}

func newWatcherSet() *watcherSet {
	return &watcherSet{watchers: make(map[uint64]*watcher)}
}

// add registers a watcher whose subscription unregisters itself on close
// and closes when ctx ends.
func (s *watcherSet) add(ctx context.Context, query TicketQuery, ticketID string) *watcher {
	s.mu.Lock()
	s.next++
	key := s.next
	s.mu.Unlock()

	w := &watcher{query: query, ticketID: ticketID}
	w.sub = feed.NewSubscription(func() { s.remove(key) })

	s.mu.Lock()
	s.watchers[key] = w
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			w.sub.Close()
		case <-w.sub.Done():
		}
	}()
	return w
}

func (s *watcherSet) remove(key uint64) {
	s.mu.Lock()
	delete(s.watchers, key)
	s.mu.Unlock()
}

func (s *watcherSet) snapshot() []*watcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		out = append(out, w)
	}
	return out
}

// len reports the number of registered watchers.
func (s *watcherSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// failAll ends every watcher with err.
func (s *watcherSet) failAll(err error) {
	for _, w := range s.snapshot() {
		w.sub.Fail(err)
	}
}

func singleSnapshot(ticket *domain.Ticket) feed.Snapshot {
	if ticket == nil {
		return feed.Snapshot{Tickets: []domain.Ticket{}}
	}
	return feed.Snapshot{Tickets: []domain.Ticket{*ticket.Clone()}}
}
