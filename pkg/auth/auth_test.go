package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	return hash
}

func TestStaticAuthenticator(t *testing.T) {
	ctx := context.Background()
	a, err := NewStaticAuthenticator([]User{
		{Username: "admin", PasswordHash: mustHash(t, "s3cret"), Roles: []string{"admin", "read"}},
		{Username: "viewer", PasswordHash: mustHash(t, "view")},
	})
	require.NoError(t, err)

	t.Run("ValidCredentials", func(t *testing.T) {
		id, err := a.Authenticate(ctx, Credentials{Username: "admin", Secret: []byte("s3cret")})
		require.NoError(t, err)
		assert.Equal(t, "admin", id.Principal)
		assert.True(t, id.HasRole("admin"))
		assert.False(t, id.HasRole("write"))
		assert.False(t, id.AuthenticatedAt.IsZero())
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := a.Authenticate(ctx, Credentials{Username: "admin", Secret: []byte("nope")})
		assert.True(t, errors.Is(err, ErrAuthenticationFailed))
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := a.Authenticate(ctx, Credentials{Username: "ghost", Secret: []byte("s3cret")})
		assert.True(t, errors.Is(err, ErrAuthenticationFailed))
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := a.Authenticate(cctx, Credentials{Username: "admin", Secret: []byte("s3cret")})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("RolesAreCopied", func(t *testing.T) {
		id, err := a.Authenticate(ctx, Credentials{Username: "admin", Secret: []byte("s3cret")})
		require.NoError(t, err)
		id.Roles[0] = "mutated"

		again, err := a.Authenticate(ctx, Credentials{Username: "admin", Secret: []byte("s3cret")})
		require.NoError(t, err)
		assert.Equal(t, "admin", again.Roles[0])
	})
}

func TestNewStaticAuthenticator_Validation(t *testing.T) {
	tests := []struct {
		name  string
		users []User
	}{
		{"EmptyUsername", []User{{Username: "", PasswordHash: mustHash(t, "x")}}},
		{"Duplicate", []User{
			{Username: "a", PasswordHash: mustHash(t, "x")},
			{Username: "a", PasswordHash: mustHash(t, "y")},
		}},
		{"PlaintextPassword", []User{{Username: "a", PasswordHash: "plaintext"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStaticAuthenticator(tt.users)
			assert.Error(t, err)
		})
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("pw", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("pw")))

	_, err = HashPassword("", 0)
	assert.Error(t, err)
}

func TestAllowAllAuthenticator(t *testing.T) {
	id, err := AllowAllAuthenticator{}.Authenticate(context.Background(), Credentials{})
	require.NoError(t, err)
	assert.Equal(t, "anonymous", id.Principal)

	id, err = AllowAllAuthenticator{}.Authenticate(context.Background(), Credentials{Username: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "bob", id.Principal)
}

func TestAuthenticatorFunc(t *testing.T) {
	var called int
	var a Authenticator = AuthenticatorFunc(func(ctx context.Context, creds Credentials) (*Identity, error) {
		called++
		return nil, ErrAuthenticationFailed
	})

	_, err := a.Authenticate(context.Background(), Credentials{})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Equal(t, 1, called)
}
