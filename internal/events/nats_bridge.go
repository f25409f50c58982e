package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/spec-kit/support-tickets/internal/config"
)

// Publisher is the part of a NATS connection the bridge needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// ConnectNATS dials the broker with reconnect handling.
func ConnectNATS(cfg config.NATSConfig, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	logger.Info("nats connected", zap.String("url", cfg.URL))
	return nc, nil
}

// NATSBridge forwards dispatcher events to NATS subjects named
// <prefix>.<event_type>.
type NATSBridge struct {
	conn   Publisher
	prefix string
	logger *zap.Logger
}

// NewNATSBridge constructs the bridge.
func NewNATSBridge(conn Publisher, prefix string, logger *zap.Logger) *NATSBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSBridge{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns the subject an event type is published on.
func (b *NATSBridge) Subject(eventType EventType) string {
	if b.prefix == "" {
		return string(eventType)
	}
	return b.prefix + "." + string(eventType)
}

// Register subscribes the bridge to every ticket event.
func (b *NATSBridge) Register(dispatcher Dispatcher) {
	for _, eventType := range AllEventTypes {
		dispatcher.Subscribe(eventType, b.Handle)
	}
}

// Handle publishes one event as JSON.
func (b *NATSBridge) Handle(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := b.Subject(event.Type)
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	b.logger.Debug("event published",
		zap.String("subject", subject),
		zap.String("event_id", event.ID))
	return nil
}
