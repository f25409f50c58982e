package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-tickets/internal/auth"
	"github.com/spec-kit/support-tickets/internal/clock"
	"github.com/spec-kit/support-tickets/internal/config"
	"github.com/spec-kit/support-tickets/internal/domain"
	"github.com/spec-kit/support-tickets/internal/repository"
	"github.com/spec-kit/support-tickets/internal/service"
	"github.com/spec-kit/support-tickets/internal/session"
)

type harness struct {
	url      string
	tickets  *service.TicketService
	tokens   *auth.TokenManager
	sessions session.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sessions := session.NewMemoryStore(clock.Real(), time.Hour)
	tokens := auth.NewTokenManager("test-secret", "", 5)
	tickets := service.NewTicketService(service.TicketDependencies{
		Repo:   repository.NewMemoryTicketRepository(),
		Admins: auth.NewAdminAllowlist([]string{"admin@example.com"}),
	})
	srv := NewServer(tickets, auth.NewResolver(tokens, sessions), config.RealtimeConfig{}, "X-Session-ID", nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &harness{url: "ws" + strings.TrimPrefix(ts.URL, "http"), tickets: tickets, tokens: tokens, sessions: sessions}
}

func (h *harness) token(t *testing.T, userID, email string) string {
	t.Helper()
	token, _, err := h.tokens.GenerateToken(userID, email)
	require.NoError(t, err)
	return token
}

func dial(t *testing.T, rawURL string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(rawURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(Frame) bool) Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var frame Frame
		require.NoError(t, conn.ReadJSON(&frame))
		if match(frame) {
			return frame
		}
	}
}

func TestOwnTicketsStream(t *testing.T) {
	h := newHarness(t)
	sessionID, err := h.sessions.Issue(context.Background())
	require.NoError(t, err)

	conn := dial(t, h.url+"/ws/tickets?session_id="+url.QueryEscape(sessionID))

	first := readUntil(t, conn, func(Frame) bool { return true })
	assert.Equal(t, FrameSnapshot, first.Type)
	assert.Empty(t, first.Tickets)

	created, err := h.tickets.CreateTicket(context.Background(), domain.Caller{SessionID: sessionID},
		service.TicketCreateInput{Subject: "Live", Message: "update me"})
	require.NoError(t, err)

	frame := readUntil(t, conn, func(f Frame) bool { return len(f.Tickets) == 1 })
	assert.Equal(t, created.ID, frame.Tickets[0].ID)
	assert.Equal(t, domain.TicketStatusOpen, frame.Tickets[0].Status)
}

func TestTicketStreamHidesForeignTickets(t *testing.T) {
	h := newHarness(t)
	owner := domain.Caller{UserID: "alice", Email: "alice@example.com"}
	ticket, err := h.tickets.CreateTicket(context.Background(), owner, service.TicketCreateInput{Subject: "Private", Message: "mine"})
	require.NoError(t, err)

	mine := dial(t, h.url+"/ws/tickets/"+ticket.ID+"?token="+h.token(t, "alice", "alice@example.com"))
	frame := readUntil(t, mine, func(Frame) bool { return true })
	require.Len(t, frame.Tickets, 1)

	theirs := dial(t, h.url+"/ws/tickets/"+ticket.ID+"?token="+h.token(t, "bob", "bob@example.com"))
	frame = readUntil(t, theirs, func(Frame) bool { return true })
	assert.Empty(t, frame.Tickets)

	admin := dial(t, h.url+"/ws/tickets/"+ticket.ID+"?token="+h.token(t, "admin-1", "admin@example.com"))
	frame = readUntil(t, admin, func(Frame) bool { return true })
	assert.Len(t, frame.Tickets, 1)
}

func TestAdminStreamRequiresAdmin(t *testing.T) {
	h := newHarness(t)

	_, resp, err := websocket.DefaultDialer.Dial(h.url+"/ws/admin/tickets?token="+h.token(t, "alice", "alice@example.com"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(h.url+"/ws/tickets?session_id=forged", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminStreamFilters(t *testing.T) {
	h := newHarness(t)
	admin := domain.Caller{UserID: "admin-1", Email: "admin@example.com"}
	user := domain.Caller{UserID: "alice"}

	urgent, err := h.tickets.CreateTicket(context.Background(), user, service.TicketCreateInput{Subject: "Down", Message: "prod", Priority: domain.TicketPriorityUrgent})
	require.NoError(t, err)
	_, err = h.tickets.CreateTicket(context.Background(), user, service.TicketCreateInput{Subject: "Typo", Message: "footer"})
	require.NoError(t, err)

	conn := dial(t, h.url+"/ws/admin/tickets?priority=urgent&token="+h.token(t, admin.UserID, admin.Email))
	frame := readUntil(t, conn, func(Frame) bool { return true })
	require.Len(t, frame.Tickets, 1)
	assert.Equal(t, urgent.ID, frame.Tickets[0].ID)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://support.example.com/"})
	req := httptest.NewRequest(http.MethodGet, "/ws/tickets", nil)

	assert.True(t, check(req))
	req.Header.Set("Origin", "https://support.example.com")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
	assert.True(t, originChecker([]string{"*"})(req))
}
