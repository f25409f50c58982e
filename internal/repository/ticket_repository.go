package repository

import (
	"context"
	"errors"

	"github.com/spec-kit/support-tickets/internal/domain"
	"github.com/spec-kit/support-tickets/internal/feed"
)

// ErrNotFound is returned when a ticket id does not resolve to a document.
var ErrNotFound = errors.New("ticket not found")

// TicketQuery selects tickets for listings and live queries. A nil Owner
// means every ticket.
type TicketQuery struct {
	Owner  *domain.Owner
	Filter domain.TicketFilter
}

// OwnerQuery scopes a query to a single owner.
func OwnerQuery(owner domain.Owner) TicketQuery {
	return TicketQuery{Owner: &owner}
}

// FilterQuery selects every ticket matching filter.
func FilterQuery(filter domain.TicketFilter) TicketQuery {
	return TicketQuery{Filter: filter}
}

// Matches reports whether t belongs in the query's result set.
func (q TicketQuery) Matches(t *domain.Ticket) bool {
	if t == nil {
		return false
	}
	if q.Owner != nil && t.Owner != *q.Owner {
		return false
	}
	return q.Filter.Matches(t)
}

// MutateFunc edits a ticket in place. Returning an error aborts the write.
type MutateFunc func(ticket *domain.Ticket) error

// TicketRepository encapsulates ticket persistence. Results are always
// ordered by UpdatedAt descending.
type TicketRepository interface {
	// Create stores a new ticket and assigns its ID.
	Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error)
	Get(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, query TicketQuery) ([]domain.Ticket, error)
	// Mutate runs fn against the current document and writes the result as
	// one atomic read-modify-write.
	Mutate(ctx context.Context, id string, fn MutateFunc) (*domain.Ticket, error)
	// Watch streams the full result of query on every change. The first
	// snapshot carries the current state.
	Watch(ctx context.Context, query TicketQuery) (*feed.Subscription, error)
	// WatchTicket streams a single ticket. A missing ticket yields an empty
	// snapshot.
	WatchTicket(ctx context.Context, id string) (*feed.Subscription, error)
	Ping(ctx context.Context) error
}
