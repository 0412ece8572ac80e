// Package auth defines how DittoMX connections authenticate.
//
// The connection engine calls Authenticator.Authenticate exactly once per
// Logon request and treats any error as invalid credentials. Credentials are
// opaque to the engine: an authenticator decides how to interpret them.
package auth

import (
	"context"
	"errors"
	"time"
)

// ErrAuthenticationFailed is returned when credentials are rejected.
// Authenticators must not reveal whether the user or the secret was wrong.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Credentials are the values a client presents in a Logon request.
type Credentials struct {
	Username string
	Secret   []byte
}

// Identity is the result of a successful authentication.
type Identity struct {
	// Principal is the authenticated user name.
	Principal string

	// Roles granted to the principal. Not interpreted by the engine.
	Roles []string

	// AuthenticatedAt is when the Logon succeeded.
	AuthenticatedAt time.Time
}

// HasRole reports whether the identity carries role.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Authenticator validates credentials.
//
// Implementations must be safe for concurrent use: every connection calls
// the same instance.
type Authenticator interface {
	// Authenticate returns the identity for creds, or an error (typically
	// wrapping ErrAuthenticationFailed) when they are rejected.
	Authenticate(ctx context.Context, creds Credentials) (*Identity, error)
}

// AuthenticatorFunc adapts an ordinary function to the Authenticator
// interface.
type AuthenticatorFunc func(ctx context.Context, creds Credentials) (*Identity, error)

// Authenticate calls f(ctx, creds).
func (f AuthenticatorFunc) Authenticate(ctx context.Context, creds Credentials) (*Identity, error) {
	return f(ctx, creds)
}

// AllowAllAuthenticator accepts any credentials.
//
// It exists for development setups and tests; the principal is the
// presented username, or "anonymous" when none was given.
type AllowAllAuthenticator struct{}

func (AllowAllAuthenticator) Authenticate(ctx context.Context, creds Credentials) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	principal := creds.Username
	if principal == "" {
		principal = "anonymous"
	}
	return &Identity{Principal: principal, AuthenticatedAt: time.Now()}, nil
}
