package user

import (
	"strings"

	"fleet-realtime/internal/general/apperr"
)

var ErrMissingUserID = apperr.Validation("user id is required")

// Identity is the verified caller attached to a connection or request.
type Identity struct {
	ID   string
	Name string
	Role Role
}

// NewIdentity trims and validates an identity coming out of a verified token.
func NewIdentity(id, name string, role Role) (Identity, error) {
	identity := Identity{
		ID:   strings.TrimSpace(id),
		Name: strings.TrimSpace(name),
		Role: role,
	}
	if err := identity.Validate(); err != nil {
		return Identity{}, err
	}
	return identity, nil
}

// Validate checks invariants of the Identity.
func (identity Identity) Validate() error {
	if identity.ID == "" {
		return ErrMissingUserID
	}
	if !identity.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}

// DisplayName falls back to the id when the token carries no name.
func (identity Identity) DisplayName() string {
	if identity.Name != "" {
		return identity.Name
	}
	return identity.ID
}
