package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-tickets/internal/api/dto"
	"github.com/spec-kit/support-tickets/internal/auth"
	"github.com/spec-kit/support-tickets/internal/domain"
	"github.com/spec-kit/support-tickets/internal/service"
	apperrors "github.com/spec-kit/support-tickets/pkg/util/errorutil"
)

// AdminTicketsHandler serves the support console.
type AdminTicketsHandler struct {
	tickets *service.TicketService
}

// NewAdminTicketsHandler constructs handler.
func NewAdminTicketsHandler(ticketService *service.TicketService) *AdminTicketsHandler {
	return &AdminTicketsHandler{tickets: ticketService}
}

// ListTickets GET /admin/tickets?status=&priority=&assigned_to=.
func (h *AdminTicketsHandler) ListTickets(c *fiber.Ctx) error {
	tickets, err := h.tickets.ListAllTickets(c.UserContext(), auth.CallerFromContext(c), ParseTicketFilter(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketListResponse(tickets)})
}

// GetTicket GET /admin/tickets/:id.
func (h *AdminTicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.tickets.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// AddReply POST /admin/tickets/:id/replies.
func (h *AdminTicketsHandler) AddReply(c *fiber.Ctx) error {
	var req dto.CreateReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.AddReply(c.UserContext(), auth.CallerFromContext(c), c.Params("id"), service.ReplyInput{
		Message:     req.Message,
		IsFromAdmin: true,
		AuthorName:  req.AuthorName,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// UpdateTicket PATCH /admin/tickets/:id.
func (h *AdminTicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	patch := domain.TicketPatch{AssignedTo: req.AssignedTo, Tags: req.Tags}
	if req.Status != nil {
		status := domain.TicketStatus(normalizeEnum(*req.Status))
		patch.Status = &status
	}
	if req.Priority != nil {
		priority := domain.TicketPriority(normalizeEnum(*req.Priority))
		patch.Priority = &priority
	}

	ticket, err := h.tickets.UpdateTicket(c.UserContext(), auth.CallerFromContext(c), c.Params("id"), patch)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// MarkRead POST /admin/tickets/:id/read.
func (h *AdminTicketsHandler) MarkRead(c *fiber.Ctx) error {
	ticket, err := h.tickets.MarkAsRead(c.UserContext(), auth.CallerFromContext(c), c.Params("id"), true)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Stats GET /admin/tickets/stats.
func (h *AdminTicketsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.tickets.GetStats(c.UserContext(), auth.CallerFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewStatsResponse(stats)})
}

// ParseTicketFilter reads the admin listing filter from query parameters.
// Unknown enum values pass through so the service can reject them.
func ParseTicketFilter(c *fiber.Ctx) domain.TicketFilter {
	var filter domain.TicketFilter
	if raw := c.Query("status"); raw != "" {
		status := domain.TicketStatus(normalizeEnum(raw))
		filter.Status = &status
	}
	if raw := c.Query("priority"); raw != "" {
		priority := domain.TicketPriority(normalizeEnum(raw))
		filter.Priority = &priority
	}
	if raw := strings.TrimSpace(c.Query("assigned_to")); raw != "" {
		filter.AssignedTo = &raw
	}
	return filter
}

func normalizeEnum(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
