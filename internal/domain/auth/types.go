package auth

// Package auth contains domain-level types for staff identity and roles.
// It is pure and free of framework/adapter concerns.

import (
	"fmt"
	"strings"
	"time"
)

// Role represents a staff member's authorization role.
// Keep string form; it travels inside the JWT as-is.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleStudent    Role = "student"
	RoleViewer     Role = "viewer"
)

// Valid reports whether r is one of the known staff roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSupervisor, RoleStudent, RoleViewer:
		return true
	default:
		return false
	}
}

// ParseRole normalizes a role string, returning an error for unknown roles.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// User is the signed-in staff member as carried by the session token.
type User struct {
	ID        int64  `json:"userID"`
	ComputeID string `json:"computeID"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      Role   `json:"role"`
}

// SignedIn reports whether the user represents a usable session.
func (u User) SignedIn() bool {
	return u.ComputeID != "" && u.Role.Valid()
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// IsSupervisor reports whether the user holds the supervisor role.
func (u User) IsSupervisor() bool { return u.Role == RoleSupervisor }

// DisplayName renders "First Last (computeID)" for headers.
func (u User) DisplayName() string {
	if !u.SignedIn() {
		return ""
	}
	return fmt.Sprintf("%s %s (%s)", u.FirstName, u.LastName, u.ComputeID)
}

// Identity represents the authenticated principal returned by an IdP.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	UserID    int64 // staff member id, when the IdP knows it
	ComputeID string
	FirstName string
	LastName  string
	Email     string
	Groups    []string
	ExpiresAt time.Time // absolute expiry from IdP token
}
