package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestTicket() *Ticket {
	ticket := NewTicket(UserOwner("u1"), "  Billing issue ", "Charged twice", "", nil, t0)
	ticket.ID = "t1"
	return ticket
}

func TestNewTicketDefaults(t *testing.T) {
	ticket := newTestTicket()

	assert.Equal(t, "Billing issue", ticket.Subject)
	assert.Equal(t, TicketStatusOpen, ticket.Status)
	assert.Equal(t, TicketPriorityNormal, ticket.Priority)
	assert.Empty(t, ticket.Replies)
	assert.NotNil(t, ticket.Replies)
	assert.False(t, ticket.IsRead)
	assert.Equal(t, ticket.CreatedAt, ticket.UpdatedAt)
	assert.Empty(t, ticket.Tags)
}

func TestAppendReplyStatusRule(t *testing.T) {
	for _, prior := range TicketStatuses {
		t.Run(string(prior), func(t *testing.T) {
			ticket := newTestTicket()
			ticket.Status = prior
			ticket.AppendReply(Reply{ID: "r1", Message: "Refund issued", IsFromAdmin: true, AuthorName: "Support Team"}, t0.Add(time.Hour))
			assert.Equal(t, TicketStatusWaitingForResponse, ticket.Status)

			ticket.Status = prior
			ticket.AppendReply(Reply{ID: "r2", Message: "Thanks!"}, t0.Add(2*time.Hour))
			assert.Equal(t, TicketStatusOpen, ticket.Status)
		})
	}
}

func TestAppendReplyStampsAndReadMarks(t *testing.T) {
	ticket := newTestTicket()

	admin := ticket.AppendReply(Reply{ID: "r1", Message: " hi ", IsFromAdmin: true}, t0.Add(time.Hour))
	assert.Equal(t, "t1", admin.TicketID)
	assert.Equal(t, "hi", admin.Message)
	assert.False(t, admin.IsRead)
	require.NotNil(t, ticket.AdminLastRead)
	assert.Equal(t, admin.CreatedAt, *ticket.AdminLastRead)
	assert.Nil(t, ticket.UserLastRead)
	assert.Equal(t, admin.CreatedAt, ticket.UpdatedAt)

	user := ticket.AppendReply(Reply{ID: "r2", Message: "ok"}, t0.Add(2*time.Hour))
	require.NotNil(t, ticket.UserLastRead)
	assert.Equal(t, user.CreatedAt, *ticket.UserLastRead)
	assert.Len(t, ticket.Replies, 2)
}

func TestUpdatedAtStrictlyIncreasesWhenClockStalls(t *testing.T) {
	ticket := newTestTicket()
	previous := ticket.UpdatedAt

	for i := 0; i < 3; i++ {
		ticket.AppendReply(Reply{Message: "again"}, t0)
		assert.True(t, ticket.UpdatedAt.After(previous))
		previous = ticket.UpdatedAt
	}
	ticket.MarkRead(true, t0.Add(-time.Hour))
	assert.True(t, ticket.UpdatedAt.After(previous))

	for i := 1; i < len(ticket.Replies); i++ {
		assert.False(t, ticket.Replies[i].CreatedAt.Before(ticket.Replies[i-1].CreatedAt))
	}
}

func TestMarkReadRoleIsolation(t *testing.T) {
	ticket := newTestTicket()
	ticket.MarkRead(false, t0.Add(time.Minute))
	userStamp := *ticket.UserLastRead

	ticket.MarkRead(true, t0.Add(2*time.Minute))
	assert.True(t, ticket.IsRead)
	require.NotNil(t, ticket.AdminLastRead)
	assert.Equal(t, t0.Add(2*time.Minute), *ticket.AdminLastRead)
	assert.Equal(t, userStamp, *ticket.UserLastRead)

	ticket.MarkRead(false, t0.Add(3*time.Minute))
	assert.Equal(t, t0.Add(2*time.Minute), *ticket.AdminLastRead)
}

func TestApplyPatch(t *testing.T) {
	ticket := newTestTicket()
	resolved := TicketStatusResolved
	urgent := TicketPriorityUrgent
	assignee := " agent-7 "
	tags := []string{"billing", " billing", "", "refund"}

	ticket.Apply(TicketPatch{Status: &resolved, Priority: &urgent, AssignedTo: &assignee, Tags: &tags}, t0.Add(time.Hour))
	assert.Equal(t, TicketStatusResolved, ticket.Status)
	assert.Equal(t, TicketPriorityUrgent, ticket.Priority)
	require.NotNil(t, ticket.AssignedTo)
	assert.Equal(t, "agent-7", *ticket.AssignedTo)
	assert.Equal(t, []string{"billing", "refund"}, ticket.Tags)
	assert.Equal(t, t0.Add(time.Hour), ticket.UpdatedAt)

	cleared := ""
	ticket.Apply(TicketPatch{AssignedTo: &cleared}, t0.Add(2*time.Hour))
	assert.Nil(t, ticket.AssignedTo)
	assert.Equal(t, TicketStatusResolved, ticket.Status)
}

func TestUnreadIndicators(t *testing.T) {
	ticket := newTestTicket()
	assert.True(t, ticket.UnreadForAdmin())
	assert.False(t, ticket.UnreadForUser())

	ticket.AppendReply(Reply{Message: "looking", IsFromAdmin: true}, t0.Add(time.Hour))
	assert.False(t, ticket.UnreadForAdmin())
	assert.True(t, ticket.UnreadForUser())

	ticket.MarkRead(false, t0.Add(2*time.Hour))
	assert.False(t, ticket.UnreadForUser())

	ticket.AppendReply(Reply{Message: "still broken"}, t0.Add(3*time.Hour))
	assert.True(t, ticket.UnreadForAdmin())
}

func TestCloneIsDeep(t *testing.T) {
	ticket := newTestTicket()
	ticket.Tags = []string{"a"}
	ticket.AppendReply(Reply{ID: "r1", Message: "x"}, t0.Add(time.Minute))

	clone := ticket.Clone()
	clone.Tags[0] = "changed"
	clone.Replies[0].Message = "changed"
	*clone.UserLastRead = t0

	assert.Equal(t, "a", ticket.Tags[0])
	assert.Equal(t, "x", ticket.Replies[0].Message)
	assert.NotEqual(t, t0, *ticket.UserLastRead)
}

func TestParseEnums(t *testing.T) {
	status, ok := ParseTicketStatus(" waiting_for_response ")
	assert.True(t, ok)
	assert.Equal(t, TicketStatusWaitingForResponse, status)

	_, ok = ParseTicketStatus("PENDING")
	assert.False(t, ok)

	priority, ok := ParseTicketPriority("urgent")
	assert.True(t, ok)
	assert.Equal(t, TicketPriorityUrgent, priority)
}

func TestCallerOwnerPrefersUser(t *testing.T) {
	owner, ok := Caller{UserID: "u1", SessionID: "s1"}.Owner()
	require.True(t, ok)
	assert.Equal(t, UserOwner("u1"), owner)
	assert.True(t, owner.Valid())

	owner, ok = Caller{SessionID: "s1"}.Owner()
	require.True(t, ok)
	assert.True(t, owner.IsAnonymous())
	assert.Equal(t, "session:s1", owner.Key())

	_, ok = Caller{}.Owner()
	assert.False(t, ok)
	assert.False(t, Owner{UserID: "u", SessionID: "s"}.Valid())
}

func TestFilterMatches(t *testing.T) {
	ticket := newTestTicket()
	agent := "agent-1"
	ticket.AssignedTo = &agent

	open := TicketStatusOpen
	closed := TicketStatusClosed
	high := TicketPriorityHigh
	other := "agent-2"

	assert.True(t, TicketFilter{}.Matches(ticket))
	assert.True(t, TicketFilter{Status: &open, AssignedTo: &agent}.Matches(ticket))
	assert.False(t, TicketFilter{Status: &closed}.Matches(ticket))
	assert.False(t, TicketFilter{Priority: &high}.Matches(ticket))
	assert.False(t, TicketFilter{AssignedTo: &other}.Matches(ticket))
}

func TestSortByUpdatedDesc(t *testing.T) {
	tickets := []Ticket{
		{ID: "a", UpdatedAt: t0},
		{ID: "c", UpdatedAt: t0.Add(time.Hour)},
		{ID: "b", UpdatedAt: t0},
	}
	SortByUpdatedDesc(tickets)
	assert.Equal(t, "c", tickets[0].ID)
	assert.Equal(t, "a", tickets[1].ID)
	assert.Equal(t, "b", tickets[2].ID)
}
