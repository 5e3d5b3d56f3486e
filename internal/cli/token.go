package cli

import (
	"context"
	"fmt"
	"time"

	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/general/contracts"
	"fleet-realtime/internal/general/jwt"

	"github.com/urfave/cli/v3"
)

// TokenCommand prints a signed token for local testing.
func TokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Mint a JWT for a user (dev only)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "User id", Required: true},
			&cli.StringFlag{Name: "name", Usage: "Display name"},
			&cli.StringFlag{Name: "role", Usage: "admin | manager | dispatcher | driver | mechanic", Value: string(user.RoleDriver)},
			&cli.DurationFlag{Name: "ttl", Usage: "Token lifetime (0 keeps the config value)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c.String("config"))
			if err != nil {
				return err
			}
			ttl := c.Duration("ttl")
			if ttl <= 0 {
				ttl = cfg.JWT.AccessTTL.Duration
			}

			token, claims, err := GenerateUserToken(cfg.JWT.SecretKey, ttl, c.String("user"), c.String("name"), c.String("role"))
			if err != nil {
				return err
			}
			fmt.Println(token)
			fmt.Printf("expires %s\n", contracts.FormatTime(claims.ExpiresAt.Time))
			return nil
		},
	}
}

// GenerateUserToken mints a JWT for userID with the given role.
//
// Typical use (dev-only):
//
//	token, _, err := cli.GenerateUserToken(secret, 2*time.Hour, "d-1", "Dana", "driver")
func GenerateUserToken(secret string, ttl time.Duration, userID, name, roleStr string) (string, jwt.Claims, error) {
	// parse and validate the role
	role, err := user.ParseRole(roleStr)
	if err != nil {
		return "", jwt.Claims{}, fmt.Errorf("invalid role %q: %w", roleStr, err)
	}
	if name == "" {
		name = userID
	}

	// set up a new JWT manager
	mgr := jwt.NewManager(secret, ttl)

	// generate the JWT token given the user ID and its role
	token, claims, err := mgr.IssueUserToken(userID, name, role)
	if err != nil {
		return "", jwt.Claims{}, fmt.Errorf("issue token: %w", err)
	}

	return token, *claims, nil
}
