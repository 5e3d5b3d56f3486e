package user

import (
	"strings"

	"fleet-realtime/internal/general/apperr"
)

// Role is the fleet role carried in the identity token.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleDriver     Role = "driver"
	RoleDispatcher Role = "dispatcher"
	RoleMechanic   Role = "mechanic"
)

var ErrInvalidRole = apperr.Validation("invalid role")

// ParseRole normalizes (lowercases+trims) and validates a role string.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if role.Valid() {
		return role, nil
	}
	return "", ErrInvalidRole
}

// Valid reports whether role is one of the allowed role constants.
func (role Role) Valid() bool {
	switch role {
	case RoleAdmin, RoleManager, RoleDriver, RoleDispatcher, RoleMechanic:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Role.
func (role Role) String() string {
	return string(role)
}

// DispatchRoles may join the shared dispatch group and read fleet-wide positions.
var DispatchRoles = []Role{RoleAdmin, RoleManager, RoleDispatcher}

// IsDispatch reports whether role belongs to dispatch staff.
func (role Role) IsDispatch() bool {
	return role == RoleAdmin || role == RoleManager || role == RoleDispatcher
}

// Convenience helpers.
func (role Role) IsAdmin() bool  { return role == RoleAdmin }
func (role Role) IsDriver() bool { return role == RoleDriver }
