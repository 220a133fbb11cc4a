package chat

import (
	"fmt"
	"strings"

	"octopus/internal/domain/profile"
)

// Role is a marketplace side. Messages store the absolute sender role; "self"
// and "counterparty" only exist relative to a viewer.
type Role string

const (
	RoleCreator Role = "creator"
	RoleCompany Role = "company"
)

// ParseRole accepts a role name in any case.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleCreator:
		return RoleCreator, nil
	case RoleCompany:
		return RoleCompany, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
}

func (r Role) Valid() bool {
	return r == RoleCreator || r == RoleCompany
}

// Counterpart returns the opposite side of the marketplace.
func (r Role) Counterpart() Role {
	if r == RoleCreator {
		return RoleCompany
	}
	return RoleCreator
}

// Label is the placeholder name shown when a profile has nothing better.
func (r Role) Label() string {
	if r == RoleCompany {
		return "Company"
	}
	return "Creator"
}

// ProfileKind maps the role onto its profile directory.
func (r Role) ProfileKind() profile.Kind {
	if r == RoleCompany {
		return profile.KindCompany
	}
	return profile.KindCreator
}
