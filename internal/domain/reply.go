package domain

import "time"

// Reply is a message in a ticket thread. Replies are never edited or
// removed once appended.
type Reply struct {
	ID          string
	TicketID    string
	Message     string
	IsFromAdmin bool
	AuthorID    *string
	AuthorName  string
	IsRead      bool
	CreatedAt   time.Time
}

func (r Reply) clone() Reply {
	r.AuthorID = cloneString(r.AuthorID)
	return r
}
