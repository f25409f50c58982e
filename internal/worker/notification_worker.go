package worker

import (
	"github.com/spec-kit/support-tickets/internal/events"
	"github.com/spec-kit/support-tickets/internal/service"
)

// StartNotificationWorker registers notification handlers and, when a
// bridge is configured, forwards every ticket event to NATS.
func StartNotificationWorker(dispatcher events.Dispatcher, notificationService *service.NotificationService, bridge *events.NATSBridge) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if bridge != nil && dispatcher != nil {
		bridge.Register(dispatcher)
	}
}
