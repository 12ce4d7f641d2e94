package domain

import (
	"strings"

	dErrors "circulation/pkg/domain-errors"
)

// Role is the coarse authorization level of a member account.
type Role string

const (
	RoleLibrarian Role = "librarian"
	RoleMember    Role = "member"
)

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool {
	return r == RoleLibrarian || r == RoleMember
}

// ParseRole validates a role supplied by a caller creating an account.
// An empty value selects RoleMember.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RoleMember, nil
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role must be librarian or member")
	}
	return r, nil
}

// RoleFromClaim reads a role out of a verified credential. Absent or
// malformed values fall back to RoleMember, never to the librarian role.
func RoleFromClaim(claim string) Role {
	r := Role(claim)
	if r.IsValid() {
		return r
	}
	return RoleMember
}
