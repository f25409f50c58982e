package service

import (
	"context"
	"strings"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	"github.com/spec-kit/support-tickets/internal/config"
	"github.com/spec-kit/support-tickets/internal/events"
)

// Pusher sends push messages. *messaging.Client satisfies it.
type Pusher interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	pusher     Pusher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service. pusher may be nil when push
// notifications are disabled.
func NewNotificationService(dispatcher events.Dispatcher, pusher Pusher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		pusher:     pusher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketReplyAdded, n.handleTicketReplyAdded)
	n.dispatcher.Subscribe(events.EventTicketUpdated, n.handleTicketUpdated)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTicketReplyAdded(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketReplyAdded", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	payload, ok := event.Payload.(events.TicketReplyAddedPayload)
	if !ok || !payload.IsFromAdmin {
		n.sendWebhookNotificationStub(ctx, event)
		return nil
	}
	n.sendEmailNotificationStub(ctx, event)
	return n.pushReply(ctx, event, payload)
}

func (n *NotificationService) handleTicketUpdated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketUpdated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

// pushReply tells the ticket owner's devices that support answered.
func (n *NotificationService) pushReply(ctx context.Context, event events.Event, payload events.TicketReplyAddedPayload) error {
	if n.pusher == nil || !n.cfg.FCMEnabled {
		return nil
	}
	message := &messaging.Message{
		Topic: n.Topic(event.Owner),
		Notification: &messaging.Notification{
			Title: payload.AuthorName + " replied to your ticket",
			Body:  payload.BodyPreview,
		},
		Data: map[string]string{
			"ticket_id": event.TicketID,
			"reply_id":  payload.ReplyID,
			"status":    string(payload.NewStatus),
		},
	}
	id, err := n.pusher.Send(ctx, message)
	if err != nil {
		return err
	}
	n.logger.Debug("push notification sent", zap.String("ticket_id", event.TicketID), zap.String("message_id", id))
	return nil
}

// Topic returns the FCM topic for an owner key such as "user:42". Topic
// names only allow [a-zA-Z0-9-_.~%].
func (n *NotificationService) Topic(ownerKey string) string {
	var b strings.Builder
	b.WriteString(n.cfg.TopicPrefix)
	for _, r := range ownerKey {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~', r == '%':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
