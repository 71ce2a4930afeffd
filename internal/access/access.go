// Package access decides whether a principal may reach a role-scoped surface.
package access

import (
	"slices"

	"campus-care-api/internal/model"
)

type Decision int

const (
	Pending Decision = iota
	Allow
	RedirectLogin
	RedirectHome
)

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	}
	return "unknown"
}

// Subject is what the gate sees of the caller. Profile is nil when signed out.
type Subject struct {
	Loading bool
	Profile *model.Profile
}

// Authorize has no side effects. A profile whose role could not be read
// only passes surfaces open to every role.
func Authorize(s Subject, allowed []model.Role) Decision {
	if s.Loading {
		return Pending
	}
	if s.Profile == nil {
		return RedirectLogin
	}
	if len(allowed) == 0 {
		return Allow
	}
	if !s.Profile.RoleKnown() || !slices.Contains(allowed, s.Profile.Role) {
		return RedirectHome
	}
	return Allow
}
