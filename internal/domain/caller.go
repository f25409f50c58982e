package domain

// Owner scopes ticket visibility: either an authenticated user id or an
// anonymous session id, never both.
type Owner struct {
	UserID    string
	SessionID string
}

// UserOwner returns an owner for an authenticated user.
func UserOwner(userID string) Owner { return Owner{UserID: userID} }

// SessionOwner returns an owner for an anonymous session.
func SessionOwner(sessionID string) Owner { return Owner{SessionID: sessionID} }

// Valid reports whether exactly one identity is set.
func (o Owner) Valid() bool {
	return (o.UserID == "") != (o.SessionID == "")
}

// IsAnonymous reports whether the owner is a session.
func (o Owner) IsAnonymous() bool { return o.UserID == "" && o.SessionID != "" }

// Key is a stable string form, e.g. "user:42" or "session:abc".
func (o Owner) Key() string {
	if o.UserID != "" {
		return "user:" + o.UserID
	}
	return "session:" + o.SessionID
}

// Caller is the identity resolved for a single request.
type Caller struct {
	UserID    string
	Email     string
	SessionID string
}

// Authenticated reports whether the identity provider vouched for the caller.
func (c Caller) Authenticated() bool { return c.UserID != "" }

// Owner returns the identity tickets are scoped to. An authenticated user
// id takes precedence over any session id the client still carries, so
// tickets filed anonymously are not visible after signing in.
func (c Caller) Owner() (Owner, bool) {
	switch {
	case c.UserID != "":
		return UserOwner(c.UserID), true
	case c.SessionID != "":
		return SessionOwner(c.SessionID), true
	default:
		return Owner{}, false
	}
}
