package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/support-tickets/internal/domain"
	"github.com/spec-kit/support-tickets/internal/feed"
)

// MemoryTicketRepository keeps tickets in process memory. It backs local
// development and tests; every read and write works on copies.
type MemoryTicketRepository struct {
	mu       sync.RWMutex
	tickets  map[string]*domain.Ticket
	watchers *watcherSet
}

// NewMemoryTicketRepository returns an empty store.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{
		tickets:  make(map[string]*domain.Ticket),
		watchers: newWatcherSet(),
	}
}

func (r *MemoryTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored := ticket.Clone()
	stored.ID = uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[stored.ID] = stored
	r.publishLocked(nil, stored)
	return stored.Clone(), nil
}

func (r *MemoryTicketRepository) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ticket.Clone(), nil
}

func (r *MemoryTicketRepository) List(ctx context.Context, query TicketQuery) ([]domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(query), nil
}

func (r *MemoryTicketRepository) Mutate(ctx context.Context, id string, fn MutateFunc) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = current.ID
	working.Owner = current.Owner
	r.tickets[id] = working
	r.publishLocked(current, working)
	return working.Clone(), nil
}

func (r *MemoryTicketRepository) Watch(ctx context.Context, query TicketQuery) (*feed.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	w := r.watchers.add(ctx, query, "")
	w.sub.Publish(feed.Snapshot{Tickets: r.listLocked(query)})
	return w.sub, nil
}

func (r *MemoryTicketRepository) WatchTicket(ctx context.Context, id string) (*feed.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	w := r.watchers.add(ctx, TicketQuery{}, id)
	w.sub.Publish(singleSnapshot(r.tickets[id]))
	return w.sub, nil
}

func (r *MemoryTicketRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryTicketRepository) listLocked(query TicketQuery) []domain.Ticket {
	out := make([]domain.Ticket, 0)
	for _, ticket := range r.tickets {
		if query.Matches(ticket) {
			out = append(out, *ticket.Clone())
		}
	}
	domain.SortByUpdatedDesc(out)
	return out
}

// publishLocked pushes fresh snapshots to every watcher the change could
// affect. Callers hold r.mu so snapshots reach subscribers in write order.
func (r *MemoryTicketRepository) publishLocked(before, after *domain.Ticket) {
	for _, w := range r.watchers.snapshot() {
		if w.single() {
			if w.ticketID == after.ID {
				w.sub.Publish(singleSnapshot(after))
			}
			continue
		}
		if w.query.Matches(before) || w.query.Matches(after) {
			w.sub.Publish(feed.Snapshot{Tickets: r.listLocked(w.query)})
		}
	}
}
