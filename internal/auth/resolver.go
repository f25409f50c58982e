package auth

import (
	"context"
	"strings"

	"github.com/spec-kit/support-tickets/internal/domain"
	"github.com/spec-kit/support-tickets/internal/session"
	apperrors "github.com/spec-kit/support-tickets/pkg/util/errorutil"
)

// Resolver turns request credentials into a Caller. It is shared by the
// HTTP middleware and the realtime listener.
type Resolver struct {
	tokens   *TokenManager
	sessions session.Store
}

// NewResolver constructs a resolver.
func NewResolver(tokens *TokenManager, sessions session.Store) *Resolver {
	return &Resolver{tokens: tokens, sessions: sessions}
}

// Resolve checks the bearer token first and falls back to the anonymous
// session id. No credentials at all yields the zero Caller; malformed or
// unknown credentials are rejected.
func (r *Resolver) Resolve(ctx context.Context, authorization, sessionID string) (domain.Caller, error) {
	if authorization != "" {
		token, err := bearerToken(authorization)
		if err != nil {
			return domain.Caller{}, err
		}
		return r.ResolveToken(token)
	}

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Caller{}, nil
	}
	live, err := r.sessions.Touch(ctx, sessionID)
	if err != nil {
		return domain.Caller{}, apperrors.NewStoreError(err)
	}
	if !live {
		return domain.Caller{}, apperrors.NewUnauthorized("unknown or expired session")
	}
	return domain.Caller{SessionID: sessionID}, nil
}

// ResolveToken verifies a raw token without the "Bearer" scheme.
func (r *Resolver) ResolveToken(token string) (domain.Caller, error) {
	claims, err := r.tokens.ParseToken(token)
	if err != nil {
		return domain.Caller{}, apperrors.NewUnauthorized("invalid token")
	}
	return domain.Caller{UserID: claims.Subject, Email: claims.Email}, nil
}

func bearerToken(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
