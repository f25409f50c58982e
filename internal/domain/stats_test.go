package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(nil)

	assert.Equal(t, 0, stats.Total)
	assert.Zero(t, stats.AverageResponseTime)
	assert.Zero(t, stats.AverageResolutionTime)
	assert.Len(t, stats.ByStatus, len(TicketStatuses))
}

func TestComputeStatsCountsAndAverages(t *testing.T) {
	// answered after 2h, resolved after 10h
	answered := NewTicket(UserOwner("u1"), "a", "a", "", nil, t0)
	answered.AppendReply(Reply{Message: "user nudge"}, t0.Add(time.Hour))
	answered.AppendReply(Reply{Message: "on it", IsFromAdmin: true}, t0.Add(2*time.Hour))
	answered.AppendReply(Reply{Message: "second", IsFromAdmin: true}, t0.Add(5*time.Hour))
	resolved := TicketStatusResolved
	answered.Apply(TicketPatch{Status: &resolved}, t0.Add(10*time.Hour))

	// answered after 4h, still waiting
	waiting := NewTicket(SessionOwner("s1"), "b", "b", TicketPriorityHigh, nil, t0)
	waiting.AppendReply(Reply{Message: "hello", IsFromAdmin: true}, t0.Add(4*time.Hour))

	// never answered, closed after 6h
	closedTicket := NewTicket(UserOwner("u2"), "c", "c", "", nil, t0)
	closed := TicketStatusClosed
	closedTicket.Apply(TicketPatch{Status: &closed}, t0.Add(6*time.Hour))

	untouched := NewTicket(UserOwner("u3"), "d", "d", TicketPriorityLow, nil, t0)

	stats := ComputeStats([]Ticket{*answered, *waiting, *closedTicket, *untouched})

	assert.Equal(t, 4, stats.Total)
	sum := 0
	for _, count := range stats.ByStatus {
		sum += count
	}
	assert.Equal(t, stats.Total, sum)
	assert.Equal(t, 1, stats.ByStatus[TicketStatusResolved])
	assert.Equal(t, 1, stats.ByStatus[TicketStatusClosed])
	assert.Equal(t, 1, stats.ByStatus[TicketStatusWaitingForResponse])
	assert.Equal(t, 1, stats.ByStatus[TicketStatusOpen])
	assert.Equal(t, 0, stats.ByStatus[TicketStatusInProgress])
	assert.Equal(t, 2, stats.ByPriority[TicketPriorityNormal])

	// (2h + 4h) / 2 tickets with admin replies
	assert.InDelta(t, 3.0, stats.AverageResponseTime, 1e-9)
	// (10h + 6h) / 2 resolved-or-closed tickets
	assert.InDelta(t, 8.0, stats.AverageResolutionTime, 1e-9)
	assert.Equal(t, 2, stats.UnreadByAdmin)
}
