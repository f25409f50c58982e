package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets. Any status may be
// set from any other; the enum classifies a ticket rather than enforcing
// a workflow graph.
type TicketStatus string

const (
	TicketStatusOpen               TicketStatus = "OPEN"
	TicketStatusInProgress         TicketStatus = "IN_PROGRESS"
	TicketStatusWaitingForResponse TicketStatus = "WAITING_FOR_RESPONSE"
	TicketStatusResolved           TicketStatus = "RESOLVED"
	TicketStatusClosed             TicketStatus = "CLOSED"
)

// TicketStatuses lists every status in display order.
var TicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusWaitingForResponse,
	TicketStatusResolved,
	TicketStatusClosed,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	for _, known := range TicketStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseTicketStatus accepts any casing and surrounding whitespace.
func ParseTicketStatus(raw string) (TicketStatus, bool) {
	status := TicketStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return status, status.Valid()
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityNormal TicketPriority = "NORMAL"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// TicketPriorities lists every priority from lowest to highest.
var TicketPriorities = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityNormal,
	TicketPriorityHigh,
	TicketPriorityUrgent,
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	for _, known := range TicketPriorities {
		if p == known {
			return true
		}
	}
	return false
}

// ParseTicketPriority accepts any casing and surrounding whitespace.
func ParseTicketPriority(raw string) (TicketPriority, bool) {
	priority := TicketPriority(strings.ToUpper(strings.TrimSpace(raw)))
	return priority, priority.Valid()
}

// Ticket is the aggregate for support requests. Replies are embedded and
// owned exclusively by the ticket.
type Ticket struct {
	ID            string
	Subject       string
	Message       string
	Status        TicketStatus
	Priority      TicketPriority
	Owner         Owner
	Tags          []string
	AssignedTo    *string
	IsRead        bool
	UserLastRead  *time.Time
	AdminLastRead *time.Time
	Replies       []Reply
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewTicket builds an OPEN ticket with no replies. The caller assigns ID
// through the store.
func NewTicket(owner Owner, subject, message string, priority TicketPriority, tags []string, now time.Time) *Ticket {
	now = now.Truncate(time.Microsecond)
	if priority == "" {
		priority = TicketPriorityNormal
	}
	return &Ticket{
		Subject:   strings.TrimSpace(subject),
		Message:   strings.TrimSpace(message),
		Status:    TicketStatusOpen,
		Priority:  priority,
		Owner:     owner,
		Tags:      NormalizeTags(tags),
		Replies:   []Reply{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// touch advances UpdatedAt and returns the stamp used. Stores keep
// microsecond precision, so a clock that has not moved past the previous
// stamp still yields a strictly later one.
func (t *Ticket) touch(now time.Time) time.Time {
	now = now.Truncate(time.Microsecond)
	if !now.After(t.UpdatedAt) {
		now = t.UpdatedAt.Add(time.Microsecond)
	}
	t.UpdatedAt = now
	return now
}

// AppendReply adds a reply and applies the reply-driven status rule: an
// admin reply hands the ticket to the user (WAITING_FOR_RESPONSE), a user
// reply hands it back to support (OPEN). Prior status is irrelevant.
func (t *Ticket) AppendReply(reply Reply, now time.Time) Reply {
	stamp := t.touch(now)
	reply.TicketID = t.ID
	reply.Message = strings.TrimSpace(reply.Message)
	reply.CreatedAt = stamp
	reply.IsRead = false
	t.Replies = append(t.Replies, reply)

	if reply.IsFromAdmin {
		t.Status = TicketStatusWaitingForResponse
		t.AdminLastRead = &stamp
	} else {
		t.Status = TicketStatusOpen
		t.UserLastRead = &stamp
	}
	return reply
}

// Apply writes the supplied patch fields. Omitted fields stay unchanged.
func (t *Ticket) Apply(patch TicketPatch, now time.Time) {
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.AssignedTo != nil {
		assignee := strings.TrimSpace(*patch.AssignedTo)
		if assignee == "" {
			t.AssignedTo = nil
		} else {
			t.AssignedTo = &assignee
		}
	}
	if patch.Tags != nil {
		t.Tags = NormalizeTags(*patch.Tags)
	}
	t.touch(now)
}

// MarkRead records that one role looked at the ticket.
func (t *Ticket) MarkRead(isAdmin bool, now time.Time) {
	stamp := t.touch(now)
	t.IsRead = true
	if isAdmin {
		t.AdminLastRead = &stamp
	} else {
		t.UserLastRead = &stamp
	}
}

// FirstAdminReply returns the earliest admin reply, if any.
func (t *Ticket) FirstAdminReply() *Reply {
	for i := range t.Replies {
		if t.Replies[i].IsFromAdmin {
			return &t.Replies[i]
		}
	}
	return nil
}

// lastActivity returns the newest createdAt among the ticket itself and
// the replies authored by the given side.
func (t *Ticket) lastActivity(fromAdmin bool) (time.Time, bool) {
	var last time.Time
	found := false
	if !fromAdmin {
		last, found = t.CreatedAt, true
	}
	for _, reply := range t.Replies {
		if reply.IsFromAdmin == fromAdmin && reply.CreatedAt.After(last) {
			last, found = reply.CreatedAt, true
		}
	}
	return last, found
}

// UnreadForAdmin reports whether support has user activity it has not seen.
func (t *Ticket) UnreadForAdmin() bool {
	if t.AdminLastRead == nil {
		return true
	}
	last, _ := t.lastActivity(false)
	return last.After(*t.AdminLastRead)
}

// UnreadForUser reports whether the owner has an admin reply it has not seen.
func (t *Ticket) UnreadForUser() bool {
	last, ok := t.lastActivity(true)
	if !ok {
		return false
	}
	return t.UserLastRead == nil || last.After(*t.UserLastRead)
}

// Clone returns a deep copy.
func (t *Ticket) Clone() *Ticket {
	out := *t
	if t.Tags != nil {
		out.Tags = append([]string(nil), t.Tags...)
	}
	if t.Replies != nil {
		out.Replies = make([]Reply, len(t.Replies))
		for i, reply := range t.Replies {
			out.Replies[i] = reply.clone()
		}
	}
	out.AssignedTo = cloneString(t.AssignedTo)
	out.UserLastRead = cloneTime(t.UserLastRead)
	out.AdminLastRead = cloneTime(t.AdminLastRead)
	return &out
}

// NormalizeTags trims labels, drops empties and duplicates, keeping order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
