package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/support-tickets/internal/domain"
	"github.com/spec-kit/support-tickets/internal/feed"
)

// NotifyChannel is the LISTEN/NOTIFY channel the tickets trigger writes to.
const NotifyChannel = "tickets_changed"

const ticketColumns = `id::text, user_id, session_id, subject, message, status, priority, tags,
               assigned_to, is_read, user_last_read, admin_last_read, replies, created_at, updated_at`

const listenRetryDelay = time.Second

type replyRecord struct {
	ID          string    `json:"id"`
	Message     string    `json:"message"`
	IsFromAdmin bool      `json:"is_from_admin"`
	AuthorID    *string   `json:"author_id,omitempty"`
	AuthorName  string    `json:"author_name"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}

// PostgresTicketRepository keeps each ticket as one row with its replies
// embedded as jsonb. Live queries re-run on NOTIFY from the table trigger.
type PostgresTicketRepository struct {
	pool     *pgxpool.Pool
	logger   *zap.Logger
	watchers *watcherSet

	// refreshMu orders initial loads against change fan-out.
	refreshMu sync.Mutex

	listenOnce   sync.Once
	listenCtx    context.Context
	listenCancel context.CancelFunc
}

// NewPostgresTicketRepository instantiates repository.
func NewPostgresTicketRepository(pool *pgxpool.Pool, logger *zap.Logger) *PostgresTicketRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PostgresTicketRepository{
		pool:         pool,
		logger:       logger,
		watchers:     newWatcherSet(),
		listenCtx:    ctx,
		listenCancel: cancel,
	}
}

// Close stops the change listener and ends every live query.
func (r *PostgresTicketRepository) Close() {
	r.listenCancel()
	for _, w := range r.watchers.snapshot() {
		w.sub.Close()
	}
}

func (r *PostgresTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	const query = `
        INSERT INTO tickets (user_id, session_id, subject, message, status, priority, tags,
            assigned_to, is_read, user_last_read, admin_last_read, replies, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING id::text`
	replies, err := encodeReplies(ticket.Replies)
	if err != nil {
		return nil, err
	}
	stored := ticket.Clone()
	if err := r.pool.QueryRow(ctx, query,
		nullable(ticket.Owner.UserID),
		nullable(ticket.Owner.SessionID),
		ticket.Subject,
		ticket.Message,
		string(ticket.Status),
		string(ticket.Priority),
		nonNilTags(ticket.Tags),
		ticket.AssignedTo,
		ticket.IsRead,
		ticket.UserLastRead,
		ticket.AdminLastRead,
		replies,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	).Scan(&stored.ID); err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *PostgresTicketRepository) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ticket, err
}

func (r *PostgresTicketRepository) List(ctx context.Context, query TicketQuery) ([]domain.Ticket, error) {
	sql, args := buildListQuery(query)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Ticket, 0)
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	domain.SortByUpdatedDesc(out)
	return out, nil
}

func (r *PostgresTicketRepository) Mutate(ctx context.Context, id string, fn MutateFunc) (*domain.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	selectQuery := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1 FOR UPDATE`, ticketColumns)
	current, err := scanTicket(tx.QueryRow(ctx, selectQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = current.ID
	working.Owner = current.Owner

	replies, err := encodeReplies(working.Replies)
	if err != nil {
		return nil, err
	}
	const updateQuery = `
        UPDATE tickets SET status=$1, priority=$2, tags=$3, assigned_to=$4, is_read=$5,
            user_last_read=$6, admin_last_read=$7, replies=$8, updated_at=$9
        WHERE id=$10`
	if _, err := tx.Exec(ctx, updateQuery,
		string(working.Status),
		string(working.Priority),
		nonNilTags(working.Tags),
		working.AssignedTo,
		working.IsRead,
		working.UserLastRead,
		working.AdminLastRead,
		replies,
		working.UpdatedAt,
		working.ID,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return working, nil
}

func (r *PostgresTicketRepository) Watch(ctx context.Context, query TicketQuery) (*feed.Subscription, error) {
	r.ensureListener()
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	tickets, err := r.List(ctx, query)
	if err != nil {
		return nil, err
	}
	w := r.watchers.add(ctx, query, "")
	w.remember(tickets)
	w.sub.Publish(feed.Snapshot{Tickets: tickets})
	return w.sub, nil
}

func (r *PostgresTicketRepository) WatchTicket(ctx context.Context, id string) (*feed.Subscription, error) {
	r.ensureListener()
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	ticket, err := r.Get(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	w := r.watchers.add(ctx, TicketQuery{}, id)
	w.sub.Publish(singleSnapshot(ticket))
	return w.sub, nil
}

func (r *PostgresTicketRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresTicketRepository) ensureListener() {
	r.listenOnce.Do(func() {
		go r.listen(r.listenCtx)
	})
}

// listen holds one pooled connection on LISTEN and re-runs live queries
// for every notified ticket id. A lost connection fails the current
// watchers and the loop reconnects for later ones.
func (r *PostgresTicketRepository) listen(ctx context.Context) {
	for {
		err := r.consumeNotifications(ctx)
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("ticket change listener lost", zap.Error(err))
		r.watchers.failAll(fmt.Errorf("ticket change listener: %w", err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(listenRetryDelay):
		}
	}
}

func (r *PostgresTicketRepository) consumeNotifications(ctx context.Context) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return err
	}
	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		r.refresh(ctx, notification.Payload)
	}
}

// refresh loads the notified ticket once and re-runs only the live
// queries it was or is now part of.
func (r *PostgresTicketRepository) refresh(ctx context.Context, ticketID string) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	watchers := r.watchers.snapshot()
	if len(watchers) == 0 {
		return
	}
	changed, err := r.Get(ctx, ticketID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		r.logger.Warn("reload changed ticket", zap.String("ticket_id", ticketID), zap.Error(err))
		for _, w := range watchers {
			w.sub.Fail(err)
		}
		return
	}
	for _, w := range watchers {
		if !w.affectedBy(ticketID, changed) {
			continue
		}
		if w.single() {
			w.sub.Publish(singleSnapshot(changed))
			continue
		}
		tickets, err := r.List(ctx, w.query)
		if err != nil {
			w.sub.Fail(err)
			continue
		}
		w.remember(tickets)
		w.sub.Publish(feed.Snapshot{Tickets: tickets})
	}
}

// buildListQuery renders the SELECT for a ticket query with positional
// arguments.
func buildListQuery(query TicketQuery) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if query.Owner != nil {
		if query.Owner.UserID != "" {
			args = append(args, query.Owner.UserID)
			clauses = append(clauses, fmt.Sprintf("user_id=$%d", len(args)))
		} else {
			args = append(args, query.Owner.SessionID)
			clauses = append(clauses, fmt.Sprintf("session_id=$%d", len(args)))
		}
	}
	if query.Filter.Status != nil {
		args = append(args, string(*query.Filter.Status))
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if query.Filter.Priority != nil {
		args = append(args, string(*query.Filter.Priority))
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if query.Filter.AssignedTo != nil {
		args = append(args, *query.Filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}

	sql := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC, id ASC`,
		ticketColumns, strings.Join(clauses, " AND "))
	return sql, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		id, subject, message, status, priority string
		userID, sessionID, assignedTo          *string
		tags                                   []string
		isRead                                 bool
		userLastRead, adminLastRead            *time.Time
		rawReplies                             []byte
		createdAt, updatedAt                   time.Time
	)
	if err := row.Scan(
		&id,
		&userID,
		&sessionID,
		&subject,
		&message,
		&status,
		&priority,
		&tags,
		&assignedTo,
		&isRead,
		&userLastRead,
		&adminLastRead,
		&rawReplies,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	var records []replyRecord
	if len(rawReplies) > 0 {
		if err := json.Unmarshal(rawReplies, &records); err != nil {
			return nil, fmt.Errorf("decode replies for ticket %s: %w", id, err)
		}
	}
	doc := ticketDocument{
		UserID:        deref(userID),
		SessionID:     deref(sessionID),
		Subject:       subject,
		Message:       message,
		Status:        status,
		Priority:      priority,
		Tags:          tags,
		AssignedTo:    assignedTo,
		IsRead:        isRead,
		UserLastRead:  userLastRead,
		AdminLastRead: adminLastRead,
		Replies:       make([]replyDocument, 0, len(records)),
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
	for _, record := range records {
		doc.Replies = append(doc.Replies, replyDocument(record))
	}
	return fromDocument(id, doc)
}

func encodeReplies(replies []domain.Reply) ([]byte, error) {
	records := make([]replyRecord, 0, len(replies))
	for _, reply := range replies {
		records = append(records, replyRecord{
			ID:          reply.ID,
			Message:     reply.Message,
			IsFromAdmin: reply.IsFromAdmin,
			AuthorID:    reply.AuthorID,
			AuthorName:  reply.AuthorName,
			IsRead:      reply.IsRead,
			CreatedAt:   reply.CreatedAt,
		})
	}
	return json.Marshal(records)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
