package http

import (
	"bytes"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-tickets/internal/api/http/handlers"
	"github.com/spec-kit/support-tickets/internal/auth"
	"github.com/spec-kit/support-tickets/internal/clock"
	"github.com/spec-kit/support-tickets/internal/config"
	"github.com/spec-kit/support-tickets/internal/observability"
	"github.com/spec-kit/support-tickets/internal/repository"
	"github.com/spec-kit/support-tickets/internal/service"
	"github.com/spec-kit/support-tickets/internal/session"
)

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics("test")
	repo := repository.NewMemoryTicketRepository()
	sessions := session.NewMemoryStore(clock.Real(), time.Hour)
	tokens := auth.NewTokenManager("test-secret", "", 5)
	admins := auth.NewAdminAllowlist([]string{"admin@example.com"})

	tickets := service.NewTicketService(service.TicketDependencies{
		Repo:    repo,
		Admins:  admins,
		Metrics: metrics,
		Logger:  logger,
	})

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("support-tickets", "test", map[string]handlers.Pinger{"store": repo}),
		Sessions:       handlers.NewSessionsHandler(sessions, admins, config.SessionConfig{HeaderName: "X-Session-ID", TTLHours: 1}),
		Tickets:        handlers.NewTicketsHandler(tickets),
		AdminTickets:   handlers.NewAdminTicketsHandler(tickets),
		AuthMiddleware: auth.NewMiddleware(auth.NewResolver(tokens, sessions), "X-Session-ID"),
		Admins:         admins,
		Metrics:        metrics,
		MetricsPath:    "/metrics",
	})
	return &testServer{app: app, tokens: tokens}
}

func (s *testServer) bearer(t *testing.T, userID, email string) map[string]string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(userID, email)
	require.NoError(t, err)
	return map[string]string{fiber.HeaderAuthorization: "Bearer " + token}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	out, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing data object in %v", body)
	return out
}

func errorCode(body map[string]any) string {
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func TestAnonymousSessionFlow(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, nethttp.MethodPost, "/sessions", nil, nil)
	require.Equal(t, nethttp.StatusCreated, status)
	sessionID, _ := data(t, body)["session_id"].(string)
	require.NotEmpty(t, sessionID)
	headers := map[string]string{"X-Session-ID": sessionID}

	status, body = s.do(t, nethttp.MethodPost, "/tickets", map[string]any{
		"subject": "Billing issue",
		"message": "Charged twice",
	}, headers)
	require.Equal(t, nethttp.StatusCreated, status)
	ticket := data(t, body)
	assert.Equal(t, "OPEN", ticket["status"])
	assert.Equal(t, "NORMAL", ticket["priority"])
	assert.Equal(t, sessionID, ticket["session_id"])
	assert.Empty(t, ticket["replies"])

	status, body = s.do(t, nethttp.MethodGet, "/tickets", nil, headers)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = s.do(t, nethttp.MethodPost, "/sessions", nil, nil)
	require.Equal(t, nethttp.StatusCreated, status)
	other := map[string]string{"X-Session-ID": data(t, body)["session_id"].(string)}
	status, body = s.do(t, nethttp.MethodGet, "/tickets", nil, other)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Empty(t, body["data"])

	status, body = s.do(t, nethttp.MethodGet, "/tickets/"+ticket["id"].(string), nil, other)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestUnknownSessionRejected(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, nethttp.MethodGet, "/tickets", nil, map[string]string{"X-Session-ID": "forged"})
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, body = s.do(t, nethttp.MethodPost, "/tickets", map[string]any{"subject": "a", "message": "b"}, nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))
}

func TestSupportConversationOverHTTP(t *testing.T) {
	s := newTestServer(t)
	user := s.bearer(t, "alice", "alice@example.com")
	admin := s.bearer(t, "admin-1", "admin@example.com")

	status, body := s.do(t, nethttp.MethodPost, "/tickets", map[string]any{
		"subject":  "Export fails",
		"message":  "CSV is empty",
		"priority": "high",
	}, user)
	require.Equal(t, nethttp.StatusCreated, status)
	id := data(t, body)["id"].(string)
	assert.Equal(t, "HIGH", data(t, body)["priority"])
	assert.Equal(t, true, data(t, body)["unread_for_admin"])

	status, body = s.do(t, nethttp.MethodGet, "/admin/tickets?status=open", nil, admin)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = s.do(t, nethttp.MethodPost, "/admin/tickets/"+id+"/replies", map[string]any{"message": "Looking into it"}, admin)
	require.Equal(t, nethttp.StatusCreated, status)
	ticket := data(t, body)
	assert.Equal(t, "WAITING_FOR_RESPONSE", ticket["status"])
	replies := ticket["replies"].([]any)
	require.Len(t, replies, 1)
	assert.Equal(t, "Support Team", replies[0].(map[string]any)["author_name"])
	assert.Equal(t, true, replies[0].(map[string]any)["is_from_admin"])

	status, body = s.do(t, nethttp.MethodGet, "/tickets/"+id, nil, user)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, true, data(t, body)["unread_for_user"])

	status, body = s.do(t, nethttp.MethodPost, "/tickets/"+id+"/read", nil, user)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, false, data(t, body)["unread_for_user"])

	status, body = s.do(t, nethttp.MethodPost, "/tickets/"+id+"/replies", map[string]any{"message": "Thanks!"}, user)
	require.Equal(t, nethttp.StatusCreated, status)
	assert.Equal(t, "OPEN", data(t, body)["status"])

	status, body = s.do(t, nethttp.MethodPatch, "/admin/tickets/"+id, map[string]any{"status": "RESOLVED", "assigned_to": "agent-7"}, admin)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "RESOLVED", data(t, body)["status"])
	assert.Equal(t, "agent-7", data(t, body)["assigned_to"])

	status, body = s.do(t, nethttp.MethodGet, "/admin/tickets/stats", nil, admin)
	require.Equal(t, nethttp.StatusOK, status)
	stats := data(t, body)
	assert.Equal(t, float64(1), stats["total"])
	assert.Equal(t, float64(1), stats["by_status"].(map[string]any)["RESOLVED"])
	assert.Equal(t, float64(0), stats["by_status"].(map[string]any)["OPEN"])
}

func TestAdminSurfaceGuarded(t *testing.T) {
	s := newTestServer(t)
	user := s.bearer(t, "alice", "alice@example.com")

	status, body := s.do(t, nethttp.MethodGet, "/admin/tickets/stats", nil, user)
	assert.Equal(t, nethttp.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	status, body = s.do(t, nethttp.MethodGet, "/admin/tickets", nil, nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))
}

func TestValidationErrorsRendered(t *testing.T) {
	s := newTestServer(t)
	user := s.bearer(t, "alice", "alice@example.com")
	admin := s.bearer(t, "admin-1", "admin@example.com")

	status, body := s.do(t, nethttp.MethodPost, "/tickets", map[string]any{"subject": "", "message": "x"}, user)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Contains(t, details, "subject")

	status, body = s.do(t, nethttp.MethodPost, "/tickets", "{not json", user)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, nethttp.MethodGet, "/admin/tickets?priority=critical", nil, admin)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, nethttp.MethodPatch, "/admin/tickets/missing", map[string]any{"status": "CLOSED"}, admin)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestMeAndProbes(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, nethttp.MethodGet, "/me", nil, s.bearer(t, "admin-1", "Admin@Example.com"))
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, true, data(t, body)["is_admin"])

	status, body = s.do(t, nethttp.MethodGet, "/health/ready", nil, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	status, _ = s.do(t, nethttp.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, nethttp.StatusOK, status)
}
