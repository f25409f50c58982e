package repository

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-tickets/internal/domain"
)

func TestBuildListQueryOwnerScope(t *testing.T) {
	sql, args := buildListQuery(OwnerQuery(domain.SessionOwner("s-42")))

	assert.Contains(t, sql, "WHERE 1=1 AND session_id=$1 ORDER BY updated_at DESC")
	assert.NotContains(t, sql, "user_id=$")
	assert.Equal(t, []any{"s-42"}, args)
}

func TestBuildListQueryAdminFilter(t *testing.T) {
	status := domain.TicketStatusOpen
	priority := domain.TicketPriorityUrgent
	assignee := "agent-1"

	sql, args := buildListQuery(FilterQuery(domain.TicketFilter{
		Status:     &status,
		Priority:   &priority,
		AssignedTo: &assignee,
	}))

	assert.Contains(t, sql, "status=$1 AND priority=$2 AND assigned_to=$3")
	assert.Equal(t, []any{"OPEN", "URGENT", "agent-1"}, args)
}

func TestBuildListQueryEverything(t *testing.T) {
	sql, args := buildListQuery(TicketQuery{})

	assert.Contains(t, sql, "WHERE 1=1 ORDER BY")
	assert.Empty(t, args)
}

type fakeRow struct {
	values []any
}

func (f fakeRow) Scan(dest ...any) error {
	for i := range dest {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(f.values[i]))
	}
	return nil
}

func TestScanTicketDecodesReplies(t *testing.T) {
	ticket := domain.NewTicket(domain.UserOwner("u1"), "Steps", "not counted", "", nil, base)
	ticket.AppendReply(domain.Reply{ID: "r1", Message: "fixed", IsFromAdmin: true, AuthorName: "Support Team"}, base.Add(time.Hour))
	replies, err := encodeReplies(ticket.Replies)
	require.NoError(t, err)

	userID := "u1"
	var noString *string
	var noTime *time.Time
	row := fakeRow{values: []any{
		"7d1c0f4e-6f4e-4b55-9d53-2f5a7c1d9a10",
		&userID,
		noString,
		"Steps",
		"not counted",
		"WAITING_FOR_RESPONSE",
		"NORMAL",
		[]string{"steps"},
		noString,
		false,
		noTime,
		ticket.AdminLastRead,
		replies,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	}}

	scanned, err := scanTicket(row)
	require.NoError(t, err)

	assert.Equal(t, domain.UserOwner("u1"), scanned.Owner)
	assert.Equal(t, domain.TicketStatusWaitingForResponse, scanned.Status)
	require.Len(t, scanned.Replies, 1)
	assert.Equal(t, "fixed", scanned.Replies[0].Message)
	assert.True(t, scanned.Replies[0].IsFromAdmin)
	assert.True(t, scanned.Replies[0].CreatedAt.Equal(base.Add(time.Hour)))
	assert.Nil(t, scanned.UserLastRead)
}

func TestEncodeRepliesEmptyIsArray(t *testing.T) {
	raw, err := encodeReplies(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestWatcherAffectedByChange(t *testing.T) {
	sessionOwner := domain.SessionOwner("s1")
	open := domain.TicketStatusOpen

	own := &watcher{query: OwnerQuery(sessionOwner)}
	openOnly := &watcher{query: FilterQuery(domain.TicketFilter{Status: &open})}
	single := &watcher{ticketID: "t1"}

	mine := domain.NewTicket(sessionOwner, "mine", "body", "", nil, base)
	mine.ID = "t1"
	other := domain.NewTicket(domain.UserOwner("u9"), "other", "body", "", nil, base)
	other.ID = "t2"

	assert.True(t, own.affectedBy(mine.ID, mine))
	assert.False(t, own.affectedBy(other.ID, other))
	assert.True(t, single.affectedBy("t1", nil))
	assert.False(t, single.affectedBy("t2", other))

	openOnly.remember([]domain.Ticket{*mine})
	resolved := mine.Clone()
	resolved.Status = domain.TicketStatusResolved
	assert.True(t, openOnly.affectedBy(resolved.ID, resolved), "ticket leaving the query")

	openOnly.remember(nil)
	assert.False(t, openOnly.affectedBy(resolved.ID, resolved))
	assert.False(t, openOnly.affectedBy("gone", nil))
}
