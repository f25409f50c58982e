package dto

// SessionResponse is returned when an anonymous session starts. Clients
// send the id back in Header on every request.
type SessionResponse struct {
	SessionID string `json:"session_id"`
	Header    string `json:"header"`
	ExpiresIn int64  `json:"expires_in_seconds,omitempty"`
}

// CallerResponse describes the resolved identity of a request.
type CallerResponse struct {
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	IsAdmin   bool   `json:"is_admin"`
}
