// Package session issues and verifies anonymous session ids. Anonymous
// callers file tickets under a session id instead of a user id, so the
// registry only needs to answer whether an id was issued here and is still
// live.
package session

import (
	"context"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Store registers anonymous sessions.
type Store interface {
	// Issue creates a new session id.
	Issue(ctx context.Context) (string, error)
	// Touch reports whether id is live and extends its lifetime.
	Touch(ctx context.Context, id string) (bool, error)
}

// hashID keeps raw session ids, which act as bearer credentials, out of
// the backing store.
func hashID(id string) string {
	sum := blake2b.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}
