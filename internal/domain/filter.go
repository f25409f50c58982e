package domain

import "sort"

// TicketFilter narrows admin listings. Nil fields impose no constraint.
type TicketFilter struct {
	Status     *TicketStatus
	Priority   *TicketPriority
	AssignedTo *string
}

// Matches reports whether t satisfies every set field.
func (f TicketFilter) Matches(t *Ticket) bool {
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	if f.AssignedTo != nil && (t.AssignedTo == nil || *t.AssignedTo != *f.AssignedTo) {
		return false
	}
	return true
}

// TicketPatch carries an admin update. Nil fields are left unchanged; an
// empty AssignedTo clears the assignment.
type TicketPatch struct {
	Status     *TicketStatus
	Priority   *TicketPriority
	AssignedTo *string
	Tags       *[]string
}

// Empty reports whether the patch changes nothing.
func (p TicketPatch) Empty() bool {
	return p.Status == nil && p.Priority == nil && p.AssignedTo == nil && p.Tags == nil
}

// SortByUpdatedDesc orders tickets most recently active first. Ties fall
// back to id so the order is stable across snapshots.
func SortByUpdatedDesc(tickets []Ticket) {
	sort.SliceStable(tickets, func(i, j int) bool {
		if tickets[i].UpdatedAt.Equal(tickets[j].UpdatedAt) {
			return tickets[i].ID < tickets[j].ID
		}
		return tickets[i].UpdatedAt.After(tickets[j].UpdatedAt)
	})
}
