package jwt

import (
	"time"

	"fleet-realtime/internal/domain/user"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims defines our canonical JWT claims payload.
type Claims struct {
	Name string    `json:"name,omitempty"` // display name shown to chat peers
	Role user.Role `json:"role"`           // admin | manager | driver | dispatcher | mechanic
	jwtlib.RegisteredClaims
}

// ensure Claims implements jwtlib.Claims interface
var _ jwtlib.Claims = (*Claims)(nil)

// NewUserClaims constructs end-user claims.
func NewUserClaims(userID, name string, role user.Role, ttl time.Duration) *Claims {
	now := time.Now().UTC()
	return &Claims{
		Name: name,
		Role: role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
}

// Identity converts verified claims into the caller identity.
func (c *Claims) Identity() (user.Identity, error) {
	role, err := user.ParseRole(string(c.Role))
	if err != nil {
		return user.Identity{}, err
	}
	return user.NewIdentity(c.Subject, c.Name, role)
}
