package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/spec-kit/support-tickets/internal/domain"
	"github.com/spec-kit/support-tickets/internal/feed"
)

// Firestore field paths used in queries.
const (
	fieldUserID     = "userId"
	fieldSessionID  = "sessionId"
	fieldStatus     = "status"
	fieldPriority   = "priority"
	fieldAssignedTo = "assignedTo"
	fieldUpdatedAt  = "updatedAt"
)

type ticketDocument struct {
	UserID        string          `firestore:"userId,omitempty"`
	SessionID     string          `firestore:"sessionId,omitempty"`
	Subject       string          `firestore:"subject"`
	Message       string          `firestore:"message"`
	Status        string          `firestore:"status"`
	Priority      string          `firestore:"priority"`
	Tags          []string        `firestore:"tags"`
	AssignedTo    *string         `firestore:"assignedTo"`
	IsRead        bool            `firestore:"isRead"`
	UserLastRead  *time.Time      `firestore:"userLastRead"`
	AdminLastRead *time.Time      `firestore:"adminLastRead"`
	Replies       []replyDocument `firestore:"replies"`
	CreatedAt     time.Time       `firestore:"createdAt"`
	UpdatedAt     time.Time       `firestore:"updatedAt"`
}

type replyDocument struct {
	ID          string    `firestore:"id"`
	Message     string    `firestore:"message"`
	IsFromAdmin bool      `firestore:"isFromAdmin"`
	AuthorID    *string   `firestore:"authorId"`
	AuthorName  string    `firestore:"authorName"`
	IsRead      bool      `firestore:"isRead"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func toDocument(ticket *domain.Ticket) ticketDocument {
	doc := ticketDocument{
		UserID:        ticket.Owner.UserID,
		SessionID:     ticket.Owner.SessionID,
		Subject:       ticket.Subject,
		Message:       ticket.Message,
		Status:        string(ticket.Status),
		Priority:      string(ticket.Priority),
		Tags:          append([]string{}, ticket.Tags...),
		AssignedTo:    ticket.AssignedTo,
		IsRead:        ticket.IsRead,
		UserLastRead:  ticket.UserLastRead,
		AdminLastRead: ticket.AdminLastRead,
		Replies:       make([]replyDocument, 0, len(ticket.Replies)),
		CreatedAt:     ticket.CreatedAt,
		UpdatedAt:     ticket.UpdatedAt,
	}
	for _, reply := range ticket.Replies {
		doc.Replies = append(doc.Replies, replyDocument{
			ID:          reply.ID,
			Message:     reply.Message,
			IsFromAdmin: reply.IsFromAdmin,
			AuthorID:    reply.AuthorID,
			AuthorName:  reply.AuthorName,
			IsRead:      reply.IsRead,
			CreatedAt:   reply.CreatedAt,
		})
	}
	return doc
}

// fromDocument decodes and validates a stored ticket. Documents written
// outside this service are checked here once so the rest of the code can
// trust the domain type.
func fromDocument(id string, doc ticketDocument) (*domain.Ticket, error) {
	owner := domain.Owner{UserID: doc.UserID, SessionID: doc.SessionID}
	if !owner.Valid() {
		return nil, fmt.Errorf("ticket %s: exactly one of userId and sessionId must be set", id)
	}
	status := domain.TicketStatus(doc.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("ticket %s: unknown status %q", id, doc.Status)
	}
	priority := domain.TicketPriority(doc.Priority)
	if !priority.Valid() {
		return nil, fmt.Errorf("ticket %s: unknown priority %q", id, doc.Priority)
	}

	ticket := &domain.Ticket{
		ID:            id,
		Subject:       doc.Subject,
		Message:       doc.Message,
		Status:        status,
		Priority:      priority,
		Owner:         owner,
		Tags:          domain.NormalizeTags(doc.Tags),
		AssignedTo:    doc.AssignedTo,
		IsRead:        doc.IsRead,
		UserLastRead:  utcPtr(doc.UserLastRead),
		AdminLastRead: utcPtr(doc.AdminLastRead),
		Replies:       make([]domain.Reply, 0, len(doc.Replies)),
		CreatedAt:     doc.CreatedAt.UTC(),
		UpdatedAt:     doc.UpdatedAt.UTC(),
	}
	for _, reply := range doc.Replies {
		ticket.Replies = append(ticket.Replies, domain.Reply{
			ID:          reply.ID,
			TicketID:    id,
			Message:     reply.Message,
			IsFromAdmin: reply.IsFromAdmin,
			AuthorID:    reply.AuthorID,
			AuthorName:  reply.AuthorName,
			IsRead:      reply.IsRead,
			CreatedAt:   reply.CreatedAt.UTC(),
		})
	}
	return ticket, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// FirestoreTicketRepository stores tickets as documents in one collection.
type FirestoreTicketRepository struct {
	client     *firestore.Client
	collection string
	logger     *zap.Logger
}

// NewFirestoreTicketRepository instantiates repository.
func NewFirestoreTicketRepository(client *firestore.Client, collection string, logger *zap.Logger) *FirestoreTicketRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FirestoreTicketRepository{client: client, collection: collection, logger: logger}
}

func (r *FirestoreTicketRepository) tickets() *firestore.CollectionRef {
	return r.client.Collection(r.collection)
}

func (r *FirestoreTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	ref := r.tickets().NewDoc()
	stored := ticket.Clone()
	stored.ID = ref.ID
	if _, err := ref.Create(ctx, toDocument(stored)); err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *FirestoreTicketRepository) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	snap, err := r.tickets().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeSnapshot(snap)
}

func (r *FirestoreTicketRepository) List(ctx context.Context, query TicketQuery) ([]domain.Ticket, error) {
	iter := r.buildQuery(query).Documents(ctx)
	defer iter.Stop()

	out := make([]domain.Ticket, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		if ticket := r.decodeOrSkip(snap); ticket != nil {
			out = append(out, *ticket)
		}
	}
	domain.SortByUpdatedDesc(out)
	return out, nil
}

func (r *FirestoreTicketRepository) Mutate(ctx context.Context, id string, fn MutateFunc) (*domain.Ticket, error) {
	ref := r.tickets().Doc(id)
	var result *domain.Ticket
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return err
		}
		current, err := decodeSnapshot(snap)
		if err != nil {
			return err
		}
		working := current.Clone()
		if err := fn(working); err != nil {
			return err
		}
		working.ID = current.ID
		working.Owner = current.Owner
		if err := tx.Set(ref, toDocument(working)); err != nil {
			return err
		}
		result = working
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *FirestoreTicketRepository) Watch(ctx context.Context, query TicketQuery) (*feed.Subscription, error) {
	listenCtx, cancel := context.WithCancel(ctx)
	snapshots := r.buildQuery(query).Snapshots(listenCtx)
	sub := feed.NewSubscription(cancel)

	go func() {
		defer snapshots.Stop()
		for {
			qs, err := snapshots.Next()
			if err != nil {
				r.endWatch(listenCtx, sub, err)
				return
			}
			docs, err := qs.Documents.GetAll()
			if err != nil {
				r.endWatch(listenCtx, sub, err)
				return
			}
			tickets := make([]domain.Ticket, 0, len(docs))
			for _, snap := range docs {
				if ticket := r.decodeOrSkip(snap); ticket != nil {
					tickets = append(tickets, *ticket)
				}
			}
			domain.SortByUpdatedDesc(tickets)
			if !sub.Publish(feed.Snapshot{Tickets: tickets}) {
				return
			}
		}
	}()
	return sub, nil
}

func (r *FirestoreTicketRepository) WatchTicket(ctx context.Context, id string) (*feed.Subscription, error) {
	listenCtx, cancel := context.WithCancel(ctx)
	snapshots := r.tickets().Doc(id).Snapshots(listenCtx)
	sub := feed.NewSubscription(cancel)

	go func() {
		defer snapshots.Stop()
		for {
			snap, err := snapshots.Next()
			if err != nil {
				r.endWatch(listenCtx, sub, err)
				return
			}
			var ticket *domain.Ticket
			if snap.Exists() {
				if ticket, err = decodeSnapshot(snap); err != nil {
					sub.Fail(err)
					return
				}
			}
			if !sub.Publish(singleSnapshot(ticket)) {
				return
			}
		}
	}()
	return sub, nil
}

func (r *FirestoreTicketRepository) Ping(ctx context.Context) error {
	iter := r.tickets().Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

// buildQuery composes equality filters. Owner-scoped queries are sorted
// client-side since ordering on updatedAt alongside an owner filter would
// need a composite index per owner field.
func (r *FirestoreTicketRepository) buildQuery(query TicketQuery) firestore.Query {
	q := r.tickets().Query
	if query.Owner != nil {
		if query.Owner.UserID != "" {
			q = q.Where(fieldUserID, "==", query.Owner.UserID)
		} else {
			q = q.Where(fieldSessionID, "==", query.Owner.SessionID)
		}
	}
	if query.Filter.Status != nil {
		q = q.Where(fieldStatus, "==", string(*query.Filter.Status))
	}
	if query.Filter.Priority != nil {
		q = q.Where(fieldPriority, "==", string(*query.Filter.Priority))
	}
	if query.Filter.AssignedTo != nil {
		q = q.Where(fieldAssignedTo, "==", *query.Filter.AssignedTo)
	}
	if query.Owner == nil {
		q = q.OrderBy(fieldUpdatedAt, firestore.Desc)
	}
	return q
}

func (r *FirestoreTicketRepository) endWatch(ctx context.Context, sub *feed.Subscription, err error) {
	if ctx.Err() != nil || status.Code(err) == codes.Canceled || errors.Is(err, iterator.Done) {
		sub.Close()
		return
	}
	r.logger.Warn("ticket listener failed", zap.Error(err))
	sub.Fail(err)
}

func (r *FirestoreTicketRepository) decodeOrSkip(snap *firestore.DocumentSnapshot) *domain.Ticket {
	ticket, err := decodeSnapshot(snap)
	if err != nil {
		r.logger.Warn("skipping malformed ticket document", zap.String("ticket_id", snap.Ref.ID), zap.Error(err))
		return nil
	}
	return ticket
}

func decodeSnapshot(snap *firestore.DocumentSnapshot) (*domain.Ticket, error) {
	var doc ticketDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode ticket %s: %w", snap.Ref.ID, err)
	}
	return fromDocument(snap.Ref.ID, doc)
}
