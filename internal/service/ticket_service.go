package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-tickets/internal/clock"
	"github.com/spec-kit/support-tickets/internal/domain"
	"github.com/spec-kit/support-tickets/internal/events"
	"github.com/spec-kit/support-tickets/internal/feed"
	"github.com/spec-kit/support-tickets/internal/observability"
	"github.com/spec-kit/support-tickets/internal/repository"
	apperrors "github.com/spec-kit/support-tickets/pkg/util/errorutil"
)

// Default reply author names when the caller does not supply one.
const (
	DefaultAdminAuthor = "Support Team"
	DefaultUserAuthor  = "User"
)

// AdminPolicy decides whether a caller holds the admin role.
type AdminPolicy interface {
	IsAdmin(caller domain.Caller) bool
}

// TicketService is the ticket lifecycle manager. It enforces every state
// transition and authorization rule; the store underneath is treated as a
// plain document store.
type TicketService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	clock      clock.Clock
	admins     AdminPolicy
	metrics    *observability.Metrics
	logger     *zap.Logger
	validate   *validator.Validate
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	Repo       repository.TicketRepository
	Dispatcher events.Dispatcher
	Clock      clock.Clock
	Admins     AdminPolicy
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Subject  string                `json:"subject" validate:"notblank"`
	Message  string                `json:"message" validate:"notblank"`
	Priority domain.TicketPriority `json:"priority" validate:"omitempty,ticket_priority"`
	Tags     []string              `json:"tags" validate:"omitempty,max=20"`
}

// ReplyInput describes a reply. IsFromAdmin requires an admin caller.
type ReplyInput struct {
	Message     string  `json:"message" validate:"notblank"`
	IsFromAdmin bool    `json:"is_from_admin"`
	AuthorID    *string `json:"author_id"`
	AuthorName  string  `json:"author_name" validate:"max=120"`
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher(logger)
	}
	return &TicketService{
		tickets:    deps.Repo,
		dispatcher: dispatcher,
		clock:      clk,
		admins:     deps.Admins,
		metrics:    deps.Metrics,
		logger:     logger,
		validate:   newValidator(),
	}
}

// IsAdmin reports whether caller holds the admin role.
func (s *TicketService) IsAdmin(caller domain.Caller) bool {
	return s.admins != nil && s.admins.IsAdmin(caller)
}

// CanView reports whether caller may see ticket: admins see everything,
// everyone else only what they own.
func (s *TicketService) CanView(caller domain.Caller, ticket *domain.Ticket) bool {
	if s.IsAdmin(caller) {
		return true
	}
	owner, ok := caller.Owner()
	return ok && ticket.Owner == owner
}

// CreateTicket files a ticket owned by the caller's resolved identity.
func (s *TicketService) CreateTicket(ctx context.Context, caller domain.Caller, input TicketCreateInput) (ticket *domain.Ticket, err error) {
	defer func() { s.observe("create", err) }()

	owner, ok := caller.Owner()
	if !ok {
		return nil, apperrors.NewUnauthorized("sign in or start a session to file a ticket")
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}
	priority := domain.TicketPriorityNormal
	if input.Priority != "" {
		priority, _ = domain.ParseTicketPriority(string(input.Priority))
	}

	draft := domain.NewTicket(owner, input.Subject, input.Message, priority, input.Tags, s.clock.Now())
	ticket, err = s.tickets.Create(ctx, draft)
	if err != nil {
		return nil, storeError(err)
	}

	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("owner", owner.Key()),
		zap.String("priority", string(ticket.Priority)))
	s.publish(ctx, events.NewEvent(events.EventTicketCreated, ticket, events.ActorFor(caller, false), ticket.CreatedAt,
		events.TicketCreatedPayload{Subject: ticket.Subject, Priority: ticket.Priority, Tags: ticket.Tags}))
	return ticket, nil
}

// ListOwnTickets returns the caller's tickets, most recently active first.
func (s *TicketService) ListOwnTickets(ctx context.Context, caller domain.Caller) ([]domain.Ticket, error) {
	owner, ok := caller.Owner()
	if !ok {
		return nil, apperrors.NewUnauthorized("sign in or start a session to see your tickets")
	}
	tickets, err := s.tickets.List(ctx, repository.OwnerQuery(owner))
	if err != nil {
		return nil, storeError(err)
	}
	return tickets, nil
}

// WatchOwnTickets streams the caller's tickets.
func (s *TicketService) WatchOwnTickets(ctx context.Context, caller domain.Caller) (*feed.Subscription, error) {
	owner, ok := caller.Owner()
	if !ok {
		return nil, apperrors.NewUnauthorized("sign in or start a session to see your tickets")
	}
	sub, err := s.tickets.Watch(ctx, repository.OwnerQuery(owner))
	if err != nil {
		return nil, storeError(err)
	}
	return s.relay("own", sub), nil
}

// ListAllTickets returns every ticket matching filter. Admin only.
func (s *TicketService) ListAllTickets(ctx context.Context, caller domain.Caller, filter domain.TicketFilter) ([]domain.Ticket, error) {
	if err := s.requireAdmin(caller); err != nil {
		return nil, err
	}
	if err := s.validateFilter(filter); err != nil {
		return nil, err
	}
	tickets, err := s.tickets.List(ctx, repository.FilterQuery(filter))
	if err != nil {
		return nil, storeError(err)
	}
	return tickets, nil
}

// WatchAllTickets streams every ticket matching filter. Admin only.
func (s *TicketService) WatchAllTickets(ctx context.Context, caller domain.Caller, filter domain.TicketFilter) (*feed.Subscription, error) {
	if err := s.requireAdmin(caller); err != nil {
		return nil, err
	}
	if err := s.validateFilter(filter); err != nil {
		return nil, err
	}
	sub, err := s.tickets.Watch(ctx, repository.FilterQuery(filter))
	if err != nil {
		return nil, storeError(err)
	}
	return s.relay("all", sub), nil
}

// GetTicket looks a ticket up by id. Callers exposing it to end users
// must check CanView.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.Get(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return ticket, nil
}

// WatchTicket streams one ticket. The snapshot is empty while the id does
// not resolve.
func (s *TicketService) WatchTicket(ctx context.Context, id string) (*feed.Subscription, error) {
	sub, err := s.tickets.WatchTicket(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return s.relay("ticket", sub), nil
}

// AddReply appends a reply and moves the ticket to whichever side now
// owes a response.
func (s *TicketService) AddReply(ctx context.Context, caller domain.Caller, ticketID string, input ReplyInput) (ticket *domain.Ticket, err error) {
	defer func() { s.observe("reply", err) }()

	admin := s.IsAdmin(caller)
	if input.IsFromAdmin && !admin {
		return nil, apperrors.NewForbidden("only support staff can post admin replies")
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}

	reply := domain.Reply{
		ID:          uuid.NewString(),
		Message:     input.Message,
		IsFromAdmin: input.IsFromAdmin,
		AuthorID:    input.AuthorID,
		AuthorName:  strings.TrimSpace(input.AuthorName),
	}
	if reply.AuthorID == nil && caller.UserID != "" {
		authorID := caller.UserID
		reply.AuthorID = &authorID
	}
	if reply.AuthorName == "" {
		reply.AuthorName = DefaultUserAuthor
		if input.IsFromAdmin {
			reply.AuthorName = DefaultAdminAuthor
		}
	}

	var appended domain.Reply
	ticket, err = s.tickets.Mutate(ctx, ticketID, func(current *domain.Ticket) error {
		if !input.IsFromAdmin && !s.CanView(caller, current) {
			return ticketNotFound(ticketID)
		}
		appended = current.AppendReply(reply, s.clock.Now())
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.logger.Info("ticket reply added",
		zap.String("ticket_id", ticket.ID),
		zap.String("reply_id", appended.ID),
		zap.Bool("from_admin", appended.IsFromAdmin),
		zap.String("status", string(ticket.Status)))
	s.publish(ctx, events.NewEvent(events.EventTicketReplyAdded, ticket, events.ActorFor(caller, input.IsFromAdmin), appended.CreatedAt,
		events.TicketReplyAddedPayload{
			ReplyID:     appended.ID,
			IsFromAdmin: appended.IsFromAdmin,
			AuthorName:  appended.AuthorName,
			BodyPreview: stringPreview(appended.Message, 120),
			NewStatus:   ticket.Status,
		}))
	return ticket, nil
}

// UpdateTicket applies an admin patch. Any status may follow any other.
func (s *TicketService) UpdateTicket(ctx context.Context, caller domain.Caller, ticketID string, patch domain.TicketPatch) (ticket *domain.Ticket, err error) {
	defer func() { s.observe("update", err) }()

	if err := s.requireAdmin(caller); err != nil {
		return nil, err
	}
	patch, err = s.normalizePatch(patch)
	if err != nil {
		return nil, err
	}

	var payload events.TicketUpdatedPayload
	ticket, err = s.tickets.Mutate(ctx, ticketID, func(current *domain.Ticket) error {
		payload = diffPatch(current, patch)
		current.Apply(patch, s.clock.Now())
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.logger.Info("ticket updated",
		zap.String("ticket_id", ticket.ID),
		zap.String("status", string(ticket.Status)),
		zap.String("priority", string(ticket.Priority)))
	s.publish(ctx, events.NewEvent(events.EventTicketUpdated, ticket, events.ActorFor(caller, true), ticket.UpdatedAt, payload))
	return ticket, nil
}

// MarkAsRead records that the admin side (isAdmin) or the owner looked at
// the ticket.
func (s *TicketService) MarkAsRead(ctx context.Context, caller domain.Caller, ticketID string, isAdmin bool) (ticket *domain.Ticket, err error) {
	defer func() { s.observe("mark_read", err) }()

	if isAdmin {
		if err := s.requireAdmin(caller); err != nil {
			return nil, err
		}
	} else if _, ok := caller.Owner(); !ok {
		return nil, apperrors.NewUnauthorized("sign in or start a session to read tickets")
	}

	ticket, err = s.tickets.Mutate(ctx, ticketID, func(current *domain.Ticket) error {
		if !isAdmin && !s.CanView(caller, current) {
			return ticketNotFound(ticketID)
		}
		current.MarkRead(isAdmin, s.clock.Now())
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.publish(ctx, events.NewEvent(events.EventTicketRead, ticket, events.ActorFor(caller, isAdmin), ticket.UpdatedAt,
		events.TicketReadPayload{ByAdmin: isAdmin}))
	return ticket, nil
}

// GetStats scans every ticket. The scan is not atomic with respect to
// concurrent writers.
func (s *TicketService) GetStats(ctx context.Context, caller domain.Caller) (*domain.TicketStats, error) {
	if err := s.requireAdmin(caller); err != nil {
		return nil, err
	}
	tickets, err := s.tickets.List(ctx, repository.TicketQuery{})
	if err != nil {
		return nil, storeError(err)
	}
	stats := domain.ComputeStats(tickets)
	return &stats, nil
}

func (s *TicketService) requireAdmin(caller domain.Caller) error {
	if !caller.Authenticated() {
		return apperrors.NewUnauthorized("authentication required")
	}
	if !s.IsAdmin(caller) {
		return apperrors.NewForbidden("admin access required")
	}
	return nil
}

func (s *TicketService) validateFilter(filter domain.TicketFilter) error {
	details := map[string]any{}
	if filter.Status != nil && !filter.Status.Valid() {
		details["status"] = describeRule("ticket_status")
	}
	if filter.Priority != nil && !filter.Priority.Valid() {
		details["priority"] = describeRule("ticket_priority")
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid filter", details)
	}
	return nil
}

// normalizePatch validates a patch and returns it with enum values in
// canonical form, so "resolved" is stored as RESOLVED.
func (s *TicketService) normalizePatch(patch domain.TicketPatch) (domain.TicketPatch, error) {
	if patch.Empty() {
		return patch, apperrors.NewValidationError("nothing to update", nil)
	}
	details := map[string]any{}
	if patch.Status != nil {
		if err := s.validate.Var(string(*patch.Status), "ticket_status"); err != nil {
			details["status"] = describeRule("ticket_status")
		} else {
			status, _ := domain.ParseTicketStatus(string(*patch.Status))
			patch.Status = &status
		}
	}
	if patch.Priority != nil {
		if err := s.validate.Var(string(*patch.Priority), "ticket_priority"); err != nil {
			details["priority"] = describeRule("ticket_priority")
		} else {
			priority, _ := domain.ParseTicketPriority(string(*patch.Priority))
			patch.Priority = &priority
		}
	}
	if patch.Tags != nil {
		if err := s.validate.Var(*patch.Tags, "max=20"); err != nil {
			details["tags"] = describeRule("max")
		}
	}
	if len(details) > 0 {
		return patch, apperrors.NewValidationError("invalid update", details)
	}
	return patch, nil
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func (s *TicketService) observe(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperrors.ToDomainError(err).Code
	}
	s.metrics.RecordTicketOperation(operation, outcome)
}

func diffPatch(current *domain.Ticket, patch domain.TicketPatch) events.TicketUpdatedPayload {
	var payload events.TicketUpdatedPayload
	if patch.Status != nil && *patch.Status != current.Status {
		old, next := current.Status, *patch.Status
		payload.OldStatus, payload.NewStatus = &old, &next
	}
	if patch.Priority != nil && *patch.Priority != current.Priority {
		old, next := current.Priority, *patch.Priority
		payload.OldPriority, payload.NewPriority = &old, &next
	}
	if patch.AssignedTo != nil {
		assignee := strings.TrimSpace(*patch.AssignedTo)
		payload.AssignedTo = &assignee
	}
	if patch.Tags != nil {
		payload.Tags = domain.NormalizeTags(*patch.Tags)
	}
	return payload
}

func ticketNotFound(id string) error {
	return apperrors.NewNotFound("ticket", map[string]any{"id": id})
}

// storeError keeps domain errors raised inside a mutation and classifies
// everything else coming out of the repository.
func storeError(err error) error {
	var domainErr *apperrors.DomainError
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("ticket", nil)
	default:
		return apperrors.NewStoreError(err)
	}
}

func stringPreview(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
