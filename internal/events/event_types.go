package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-tickets/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated    EventType = "ticket_created"
	EventTicketReplyAdded EventType = "ticket_reply_added"
	EventTicketUpdated    EventType = "ticket_updated"
	EventTicketRead       EventType = "ticket_read"
)

// AllEventTypes lists every event the ticket service emits.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketReplyAdded,
	EventTicketUpdated,
	EventTicketRead,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Admin     bool   `json:"admin"`
}

// ActorFor describes the caller behind an event.
func ActorFor(caller domain.Caller, admin bool) Actor {
	if caller.UserID != "" {
		return Actor{UserID: caller.UserID, Admin: admin}
	}
	return Actor{SessionID: caller.SessionID}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Owner     string      `json:"owner"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// NewEvent stamps an event for ticket.
func NewEvent(eventType EventType, ticket *domain.Ticket, actor Actor, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticket.ID,
		Owner:     ticket.Owner.Key(),
		Actor:     actor,
		Timestamp: at,
		Payload:   payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Subject  string                `json:"subject"`
	Priority domain.TicketPriority `json:"priority"`
	Tags     []string              `json:"tags"`
}

// TicketReplyAddedPayload payload.
type TicketReplyAddedPayload struct {
	ReplyID     string              `json:"reply_id"`
	IsFromAdmin bool                `json:"is_from_admin"`
	AuthorName  string              `json:"author_name"`
	BodyPreview string              `json:"body_preview"`
	NewStatus   domain.TicketStatus `json:"new_status"`
}

// TicketUpdatedPayload payload. Only changed fields are set.
type TicketUpdatedPayload struct {
	OldStatus   *domain.TicketStatus   `json:"old_status,omitempty"`
	NewStatus   *domain.TicketStatus   `json:"new_status,omitempty"`
	OldPriority *domain.TicketPriority `json:"old_priority,omitempty"`
	NewPriority *domain.TicketPriority `json:"new_priority,omitempty"`
	AssignedTo  *string                `json:"assigned_to,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
}

// TicketReadPayload payload.
type TicketReadPayload struct {
	ByAdmin bool `json:"by_admin"`
}
