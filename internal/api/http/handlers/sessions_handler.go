package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-tickets/internal/api/dto"
	"github.com/spec-kit/support-tickets/internal/auth"
	"github.com/spec-kit/support-tickets/internal/config"
	"github.com/spec-kit/support-tickets/internal/session"
	apperrors "github.com/spec-kit/support-tickets/pkg/util/errorutil"
)

// SessionsHandler issues anonymous sessions and reports the caller.
type SessionsHandler struct {
	sessions session.Store
	admins   auth.AdminPolicy
	cfg      config.SessionConfig
}

// NewSessionsHandler constructs handler.
func NewSessionsHandler(sessions session.Store, admins auth.AdminPolicy, cfg config.SessionConfig) *SessionsHandler {
	return &SessionsHandler{sessions: sessions, admins: admins, cfg: cfg}
}

// Start handles POST /sessions.
func (h *SessionsHandler) Start(c *fiber.Ctx) error {
	id, err := h.sessions.Issue(c.UserContext())
	if err != nil {
		return apperrors.NewStoreError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.SessionResponse{
		SessionID: id,
		Header:    h.cfg.HeaderName,
		ExpiresIn: int64(h.cfg.TTL().Seconds()),
	}})
}

// Me handles GET /me.
func (h *SessionsHandler) Me(c *fiber.Ctx) error {
	caller := auth.CallerFromContext(c)
	return c.JSON(fiber.Map{"data": dto.CallerResponse{
		UserID:    caller.UserID,
		Email:     caller.Email,
		SessionID: caller.SessionID,
		IsAdmin:   h.admins != nil && h.admins.IsAdmin(caller),
	}})
}
