// Package realtime streams live ticket snapshots over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/support-tickets/internal/api/dto"
	"github.com/spec-kit/support-tickets/internal/auth"
	"github.com/spec-kit/support-tickets/internal/config"
	"github.com/spec-kit/support-tickets/internal/domain"
	"github.com/spec-kit/support-tickets/internal/feed"
	"github.com/spec-kit/support-tickets/internal/service"
	apperrors "github.com/spec-kit/support-tickets/pkg/util/errorutil"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// Frame types.
const (
	FrameSnapshot = "snapshot"
	FrameError    = "error"
)

// Frame is one message sent to the client. Every snapshot carries the
// complete current result set.
type Frame struct {
	Type      string               `json:"type"`
	Tickets   []dto.TicketResponse `json:"tickets,omitempty"`
	Error     *ErrorBody           `json:"error,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// ErrorBody mirrors the HTTP error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server upgrades requests to websockets and pipes subscriptions into them.
type Server struct {
	tickets       *service.TicketService
	resolver      *auth.Resolver
	sessionHeader string
	upgrader      websocket.Upgrader
	logger        *zap.Logger
}

// NewServer constructs the realtime server.
func NewServer(tickets *service.TicketService, resolver *auth.Resolver, cfg config.RealtimeConfig, sessionHeader string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		tickets:       tickets,
		resolver:      resolver,
		sessionHeader: sessionHeader,
		logger:        logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return s
}

// Handler returns the routes served on the realtime listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/tickets", s.handleOwnTickets)
	mux.HandleFunc("GET /ws/tickets/{id}", s.handleTicket)
	mux.HandleFunc("GET /ws/admin/tickets", s.handleAllTickets)
	return mux
}

func (s *Server) handleOwnTickets(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, func(ctx context.Context, caller domain.Caller) (*feed.Subscription, func([]domain.Ticket) []domain.Ticket, error) {
		sub, err := s.tickets.WatchOwnTickets(ctx, caller)
		return sub, nil, err
	})
}

func (s *Server) handleAllTickets(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r.URL.Query())
	s.serve(w, r, func(ctx context.Context, caller domain.Caller) (*feed.Subscription, func([]domain.Ticket) []domain.Ticket, error) {
		sub, err := s.tickets.WatchAllTickets(ctx, caller, filter)
		return sub, nil, err
	})
}

// handleTicket streams one ticket. A ticket the caller may not see is
// reported as absent, the same as a missing id.
func (s *Server) handleTicket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.serve(w, r, func(ctx context.Context, caller domain.Caller) (*feed.Subscription, func([]domain.Ticket) []domain.Ticket, error) {
		sub, err := s.tickets.WatchTicket(ctx, id)
		visible := func(tickets []domain.Ticket) []domain.Ticket {
			out := tickets[:0:0]
			for i := range tickets {
				if s.tickets.CanView(caller, &tickets[i]) {
					out = append(out, tickets[i])
				}
			}
			return out
		}
		return sub, visible, err
	})
}

type openFunc func(ctx context.Context, caller domain.Caller) (*feed.Subscription, func([]domain.Ticket) []domain.Ticket, error)

func (s *Server) serve(w http.ResponseWriter, r *http.Request, open openFunc) {
	caller, err := s.resolveCaller(r)
	if err != nil {
		writeHTTPError(w, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, filter, err := open(ctx, caller)
	if err != nil {
		writeHTTPError(w, err)
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.logger.Info("websocket connected", zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
	go s.readPump(conn, cancel)
	s.writePump(ctx, conn, sub, filter)
	s.logger.Info("websocket closed", zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
}

// readPump only services control frames; client messages are ignored.
// It cancels the stream once the peer goes away.
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, sub *feed.Subscription, filter func([]domain.Ticket) []domain.Ticket) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case snapshot, ok := <-sub.C():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription ended"), time.Now().Add(writeWait))
				return
			}
			frame := snapshotFrame(snapshot, filter)
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
			if frame.Type == FrameError {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseInternalServerErr, frame.Error.Code), time.Now().Add(writeWait))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// resolveCaller reads credentials from query parameters first, since
// browsers cannot set headers on websocket requests, then from headers.
func (s *Server) resolveCaller(r *http.Request) (domain.Caller, error) {
	query := r.URL.Query()
	authorization := r.Header.Get("Authorization")
	if token := query.Get("token"); token != "" {
		authorization = "Bearer " + token
	}
	sessionID := r.Header.Get(s.sessionHeader)
	if id := query.Get("session_id"); id != "" {
		sessionID = id
	}
	return s.resolver.Resolve(r.Context(), authorization, sessionID)
}

func snapshotFrame(snapshot feed.Snapshot, filter func([]domain.Ticket) []domain.Ticket) Frame {
	now := time.Now().UTC()
	if snapshot.Err != nil {
		domainErr := apperrors.ToDomainError(snapshot.Err)
		return Frame{Type: FrameError, Error: &ErrorBody{Code: domainErr.Code, Message: domainErr.Message}, Timestamp: now}
	}
	tickets := snapshot.Tickets
	if filter != nil {
		tickets = filter(tickets)
	}
	return Frame{Type: FrameSnapshot, Tickets: dto.NewTicketListResponse(tickets), Timestamp: now}
}

func writeHTTPError(w http.ResponseWriter, err error) {
	domainErr := apperrors.ToDomainError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(domainErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": ErrorBody{Code: domainErr.Code, Message: domainErr.Message}})
}

func parseFilter(values url.Values) domain.TicketFilter {
	var filter domain.TicketFilter
	if raw := strings.TrimSpace(values.Get("status")); raw != "" {
		status := domain.TicketStatus(strings.ToUpper(raw))
		filter.Status = &status
	}
	if raw := strings.TrimSpace(values.Get("priority")); raw != "" {
		priority := domain.TicketPriority(strings.ToUpper(raw))
		filter.Priority = &priority
	}
	if raw := strings.TrimSpace(values.Get("assigned_to")); raw != "" {
		filter.AssignedTo = &raw
	}
	return filter
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}
