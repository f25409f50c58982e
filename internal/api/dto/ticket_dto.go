package dto

import (
	"time"

	"github.com/spec-kit/support-tickets/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Subject  string   `json:"subject"`
	Message  string   `json:"message"`
	Priority string   `json:"priority"`
	Tags     []string `json:"tags"`
}

// CreateReplyRequest payload. Admin endpoints may override the author name.
type CreateReplyRequest struct {
	Message    string `json:"message"`
	AuthorName string `json:"author_name"`
}

// UpdateTicketRequest payload. Absent fields are left unchanged; an empty
// assigned_to clears the assignment.
type UpdateTicketRequest struct {
	Status     *string   `json:"status"`
	Priority   *string   `json:"priority"`
	AssignedTo *string   `json:"assigned_to"`
	Tags       *[]string `json:"tags"`
}

// TicketResponse is the full ticket including its thread.
type TicketResponse struct {
	ID             string                `json:"id"`
	UserID         *string               `json:"user_id,omitempty"`
	SessionID      *string               `json:"session_id,omitempty"`
	Subject        string                `json:"subject"`
	Message        string                `json:"message"`
	Status         domain.TicketStatus   `json:"status"`
	Priority       domain.TicketPriority `json:"priority"`
	Tags           []string              `json:"tags"`
	AssignedTo     *string               `json:"assigned_to"`
	IsRead         bool                  `json:"is_read"`
	UserLastRead   *time.Time            `json:"user_last_read"`
	AdminLastRead  *time.Time            `json:"admin_last_read"`
	UnreadForUser  bool                  `json:"unread_for_user"`
	UnreadForAdmin bool                  `json:"unread_for_admin"`
	Replies        []ReplyResponse       `json:"replies"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// ReplyResponse represents one thread entry.
type ReplyResponse struct {
	ID          string    `json:"id"`
	TicketID    string    `json:"ticket_id"`
	Message     string    `json:"message"`
	IsFromAdmin bool      `json:"is_from_admin"`
	AuthorID    *string   `json:"author_id"`
	AuthorName  string    `json:"author_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// StatsResponse is the admin dashboard summary. Times are in hours.
type StatsResponse struct {
	Total                 int            `json:"total"`
	ByStatus              map[string]int `json:"by_status"`
	ByPriority            map[string]int `json:"by_priority"`
	UnreadByAdmin         int            `json:"unread_by_admin"`
	AverageResponseTime   float64        `json:"average_response_time_hours"`
	AverageResolutionTime float64        `json:"average_resolution_time_hours"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(ticket *domain.Ticket) TicketResponse {
	replies := make([]ReplyResponse, 0, len(ticket.Replies))
	for _, reply := range ticket.Replies {
		replies = append(replies, ReplyResponse{
			ID:          reply.ID,
			TicketID:    ticket.ID,
			Message:     reply.Message,
			IsFromAdmin: reply.IsFromAdmin,
			AuthorID:    reply.AuthorID,
			AuthorName:  reply.AuthorName,
			CreatedAt:   reply.CreatedAt,
		})
	}
	tags := ticket.Tags
	if tags == nil {
		tags = []string{}
	}
	resp := TicketResponse{
		ID:             ticket.ID,
		Subject:        ticket.Subject,
		Message:        ticket.Message,
		Status:         ticket.Status,
		Priority:       ticket.Priority,
		Tags:           tags,
		AssignedTo:     ticket.AssignedTo,
		IsRead:         ticket.IsRead,
		UserLastRead:   ticket.UserLastRead,
		AdminLastRead:  ticket.AdminLastRead,
		UnreadForUser:  ticket.UnreadForUser(),
		UnreadForAdmin: ticket.UnreadForAdmin(),
		Replies:        replies,
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
	}
	if ticket.Owner.UserID != "" {
		userID := ticket.Owner.UserID
		resp.UserID = &userID
	}
	if ticket.Owner.SessionID != "" {
		sessionID := ticket.Owner.SessionID
		resp.SessionID = &sessionID
	}
	return resp
}

// NewTicketListResponse maps a snapshot or listing.
func NewTicketListResponse(tickets []domain.Ticket) []TicketResponse {
	items := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, NewTicketResponse(&tickets[i]))
	}
	return items
}

// NewStatsResponse maps dashboard stats. Every status and priority is
// present, zero counts included.
func NewStatsResponse(stats *domain.TicketStats) StatsResponse {
	resp := StatsResponse{
		Total:                 stats.Total,
		ByStatus:              make(map[string]int, len(domain.TicketStatuses)),
		ByPriority:            make(map[string]int, len(domain.TicketPriorities)),
		UnreadByAdmin:         stats.UnreadByAdmin,
		AverageResponseTime:   stats.AverageResponseTime,
		AverageResolutionTime: stats.AverageResolutionTime,
	}
	for _, status := range domain.TicketStatuses {
		resp.ByStatus[string(status)] = stats.ByStatus[status]
	}
	for _, priority := range domain.TicketPriorities {
		resp.ByPriority[string(priority)] = stats.ByPriority[priority]
	}
	return resp
}
