package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-tickets/internal/domain"
	apperrors "github.com/spec-kit/support-tickets/pkg/util/errorutil"
)

const callerKey = "auth_caller"

// AdminPolicy decides who may use the admin surface.
type AdminPolicy interface {
	IsAdmin(caller domain.Caller) bool
}

// Middleware resolves the caller for every request. Anonymous requests
// pass through with a zero Caller; route guards decide what they need.
type Middleware struct {
	resolver      *Resolver
	sessionHeader string
}

// NewMiddleware constructs middleware. sessionHeader names the header
// carrying anonymous session ids.
func NewMiddleware(resolver *Resolver, sessionHeader string) *Middleware {
	if sessionHeader == "" {
		sessionHeader = "X-Session-ID"
	}
	return &Middleware{resolver: resolver, sessionHeader: sessionHeader}
}

// Handle resolves credentials and stores the caller in locals.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	caller, err := m.resolver.Resolve(c.UserContext(), c.Get(fiber.HeaderAuthorization), c.Get(m.sessionHeader))
	if err != nil {
		return err
	}
	c.Locals(callerKey, caller)
	return c.Next()
}

// CallerFromContext retrieves the resolved caller.
func CallerFromContext(c *fiber.Ctx) domain.Caller {
	caller, _ := c.Locals(callerKey).(domain.Caller)
	return caller
}

// RequireCaller ensures the request carries a user or session identity.
func RequireCaller() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := CallerFromContext(c).Owner(); !ok {
			return apperrors.NewUnauthorized("sign in or start a session")
		}
		return c.Next()
	}
}

// RequireAdmin ensures the caller is an authenticated admin.
func RequireAdmin(policy AdminPolicy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller := CallerFromContext(c)
		if !caller.Authenticated() {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !policy.IsAdmin(caller) {
			return apperrors.NewForbidden("admin access required")
		}
		return c.Next()
	}
}
