package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is a statically configured account.
type User struct {
	Username     string
	PasswordHash string
	Roles        []string
}

// StaticAuthenticator checks credentials against a fixed set of users whose
// passwords are stored as bcrypt hashes.
//
// Unknown users are compared against a dummy hash of the same cost so that
// response timing does not reveal which usernames exist.
type StaticAuthenticator struct {
	users     map[string]User
	dummyHash []byte
}

// NewStaticAuthenticator validates users and builds the authenticator.
//
// Returns an error if a username is empty or duplicated, or if a password
// hash is not a valid bcrypt hash.
func NewStaticAuthenticator(users []User) (*StaticAuthenticator, error) {
	a := &StaticAuthenticator{users: make(map[string]User, len(users))}

	cost := bcrypt.DefaultCost
	for i, u := range users {
		if u.Username == "" {
			return nil, fmt.Errorf("user %d: empty username", i)
		}
		if _, exists := a.users[u.Username]; exists {
			return nil, fmt.Errorf("user %q: duplicate username", u.Username)
		}

		c, err := bcrypt.Cost([]byte(u.PasswordHash))
		if err != nil {
			return nil, fmt.Errorf("user %q: invalid password hash: %w", u.Username, err)
		}
		if i == 0 {
			cost = c
		}
		a.users[u.Username] = u
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("dittomx-dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}
	a.dummyHash = dummy

	return a, nil
}

// Authenticate implements Authenticator.
func (a *StaticAuthenticator) Authenticate(ctx context.Context, creds Credentials) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	user, ok := a.users[creds.Username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(a.dummyHash, creds.Secret)
		return nil, ErrAuthenticationFailed
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), creds.Secret); err != nil {
		return nil, ErrAuthenticationFailed
	}

	roles := make([]string, len(user.Roles))
	copy(roles, user.Roles)

	return &Identity{
		Principal:       user.Username,
		Roles:           roles,
		AuthenticatedAt: time.Now(),
	}, nil
}

// HashPassword returns the bcrypt hash of password, suitable for the
// password_hash field of a static user. A cost of 0 selects
// bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
