// Package authtest provides trivial Authenticator implementations for tests
// and local development. None of them perform cryptographic validation.
package authtest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/feedwire/feedwire-go/auth"
)

// NoAuth accepts every request, including requests without a token.
type NoAuth struct {
	UserID string
}

// NewNoAuth creates a NoAuth authenticator. If userID is empty it defaults
// to "test-user".
func NewNoAuth(userID string) *NoAuth {
	if userID == "" {
		userID = "test-user"
	}
	return &NoAuth{UserID: userID}
}

func (n *NoAuth) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	return &staticUser{id: n.UserID}, nil
}

// StaticTokens authenticates against a fixed token-to-user table.
type StaticTokens struct {
	users map[string]StaticUser
}

// StaticUser describes one principal in a StaticTokens table.
type StaticUser struct {
	ID     string
	Claims map[string]any
}

// NewStaticTokens creates an authenticator from a token-to-user table.
func NewStaticTokens(users map[string]StaticUser) *StaticTokens {
	copied := make(map[string]StaticUser, len(users))
	for k, v := range users {
		copied[k] = v
	}
	return &StaticTokens{users: copied}
}

func (s *StaticTokens) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	u, ok := s.users[tok]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token", auth.ErrUnauthorized)
	}
	return &staticUser{id: u.ID, claims: u.Claims}, nil
}

type staticUser struct {
	id     string
	claims map[string]any
}

func (u *staticUser) UserID() string { return u.id }

func (u *staticUser) Claims(ref any) error {
	if u.claims == nil {
		return nil
	}
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

var (
	_ auth.Authenticator = (*NoAuth)(nil)
	_ auth.Authenticator = (*StaticTokens)(nil)
)
