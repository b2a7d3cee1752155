package models

import (
	"encoding/json"
	"fmt"
)

// Role is a member's standing inside one server.
//
// Roles are totally ordered: member < moderator < owner. The order comes
// from Rank, an explicit table, never from declaration order or the string
// value. A Role that is not one of the three constants ranks 0 and fails
// every AtLeast check.
type Role string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleOwner     Role = "owner"
)

// Rank is the position of r in the role order; 0 for unknown roles.
func (r Role) Rank() int {
	switch r {
	case RoleMember:
		return 1
	case RoleModerator:
		return 2
	case RoleOwner:
		return 3
	default:
		return 0
	}
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool { return r.Rank() > 0 }

// AtLeast reports whether r is a valid role ranking at or above min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && min.Valid() && r.Rank() >= min.Rank()
}

// Compare returns -1, 0 or +1 as r ranks below, equal to or above other.
func (r Role) Compare(other Role) int {
	switch a, b := r.Rank(), other.Rank(); {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ParseRole accepts the wire/storage form of a role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// UnmarshalJSON rejects unknown roles at the API boundary.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
