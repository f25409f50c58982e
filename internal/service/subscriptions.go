package service

import (
	"github.com/spec-kit/support-tickets/internal/feed"
	apperrors "github.com/spec-kit/support-tickets/pkg/util/errorutil"
)

// relay forwards repository snapshots to a fresh subscription, turning a
// listener failure into a STORE_UNAVAILABLE error and tracking the number
// of open subscriptions per kind.
func (s *TicketService) relay(kind string, upstream *feed.Subscription) *feed.Subscription {
	s.metrics.SubscriptionOpened(kind)
	downstream := feed.NewSubscription(func() {
		upstream.Close()
		s.metrics.SubscriptionClosed(kind)
	})

	go func() {
		for snapshot := range upstream.C() {
			if snapshot.Err != nil {
				downstream.Fail(apperrors.NewStoreError(snapshot.Err))
				return
			}
			if !downstream.Publish(snapshot) {
				return
			}
		}
		downstream.Close()
	}()
	return downstream
}
