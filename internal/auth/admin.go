package auth

import (
	"strings"

	"github.com/spec-kit/support-tickets/internal/domain"
)

// AdminAllowlist grants the admin role by verified email address. There
// is no role hierarchy beyond admin and everyone else.
type AdminAllowlist struct {
	emails map[string]struct{}
}

// NewAdminAllowlist builds the list. Matching is case-insensitive.
func NewAdminAllowlist(emails []string) *AdminAllowlist {
	set := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		if email = normalizeEmail(email); email != "" {
			set[email] = struct{}{}
		}
	}
	return &AdminAllowlist{emails: set}
}

// IsAdmin reports whether an authenticated caller is on the list.
func (a *AdminAllowlist) IsAdmin(caller domain.Caller) bool {
	if a == nil || !caller.Authenticated() {
		return false
	}
	_, ok := a.emails[normalizeEmail(caller.Email)]
	return ok
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
