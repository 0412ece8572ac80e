package config

import (
	"fmt"

	"github.com/marmos91/dittomx/internal/logger"
	"github.com/marmos91/dittomx/pkg/auth"
)

// CreateAuthenticator creates the authenticator selected by cfg.Type.
func CreateAuthenticator(cfg *AuthConfig) (auth.Authenticator, error) {
	switch cfg.Type {
	case "static":
		users := make([]auth.User, len(cfg.Users))
		for i, u := range cfg.Users {
			users[i] = auth.User{Username: u.Username, PasswordHash: u.PasswordHash, Roles: u.Roles}
		}
		authenticator, err := auth.NewStaticAuthenticator(users)
		if err != nil {
			return nil, fmt.Errorf("failed to create static authenticator: %w", err)
		}
		logger.Debug("Static authenticator configured with %d user(s)", len(users))
		return authenticator, nil

	case "none":
		logger.Warn("Authentication disabled: every Logon is accepted")
		return auth.AllowAllAuthenticator{}, nil

	default:
		return nil, fmt.Errorf("unknown auth type: %q", cfg.Type)
	}
}
