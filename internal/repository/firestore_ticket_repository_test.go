package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-tickets/internal/domain"
)

func TestToDocumentCarriesReadStateAndReplies(t *testing.T) {
	ticket := domain.NewTicket(domain.SessionOwner("s1"), "Login", "cannot sign in", domain.TicketPriorityHigh, []string{"auth"}, base)
	ticket.ID = "doc-1"
	ticket.AppendReply(domain.Reply{ID: "r1", Message: "looking", IsFromAdmin: true, AuthorName: "Support Team"}, base.Add(time.Hour))

	doc := toDocument(ticket)

	assert.Empty(t, doc.UserID)
	assert.Equal(t, "s1", doc.SessionID)
	assert.Equal(t, "WAITING_FOR_RESPONSE", doc.Status)
	assert.Equal(t, "HIGH", doc.Priority)
	require.Len(t, doc.Replies, 1)
	assert.Equal(t, "Support Team", doc.Replies[0].AuthorName)
	require.NotNil(t, doc.AdminLastRead)
	assert.Nil(t, doc.UserLastRead)
}

func TestFromDocumentRestoresTicket(t *testing.T) {
	author := "agent-7"
	doc := ticketDocument{
		UserID:    "u1",
		Subject:   "Export",
		Message:   "csv empty",
		Status:    "IN_PROGRESS",
		Priority:  "LOW",
		Tags:      []string{"export", "export"},
		CreatedAt: base,
		UpdatedAt: base.Add(time.Hour),
		Replies: []replyDocument{
			{ID: "r1", Message: "checking", IsFromAdmin: true, AuthorID: &author, AuthorName: "Ana", CreatedAt: base.Add(time.Hour)},
		},
	}

	ticket, err := fromDocument("doc-9", doc)
	require.NoError(t, err)

	assert.Equal(t, "doc-9", ticket.ID)
	assert.Equal(t, domain.UserOwner("u1"), ticket.Owner)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
	assert.Equal(t, []string{"export"}, ticket.Tags)
	require.Len(t, ticket.Replies, 1)
	assert.Equal(t, "doc-9", ticket.Replies[0].TicketID)
	assert.Equal(t, &author, ticket.Replies[0].AuthorID)
}

func TestFromDocumentRejectsMalformed(t *testing.T) {
	valid := ticketDocument{UserID: "u1", Status: "OPEN", Priority: "NORMAL"}

	both := valid
	both.SessionID = "s1"
	_, err := fromDocument("x", both)
	assert.Error(t, err)

	neither := valid
	neither.UserID = ""
	_, err = fromDocument("x", neither)
	assert.Error(t, err)

	badStatus := valid
	badStatus.Status = "ANSWERED"
	_, err = fromDocument("x", badStatus)
	assert.Error(t, err)

	badPriority := valid
	badPriority.Priority = "critical"
	_, err = fromDocument("x", badPriority)
	assert.Error(t, err)
}
