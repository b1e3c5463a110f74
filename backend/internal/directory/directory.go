// Package directory resolves bearer tokens to principals. The JWT backend
// also owns credentials and sessions; the Firebase backend only verifies
// ID tokens issued by Firebase Auth.
package directory

import (
	"context"
	"strings"

	"classroom/backend/internal/shared"
)

// Directory resolves an authenticated caller
type Directory interface {
	Resolve(ctx context.Context, token string) (shared.Principal, error)
}

// Authenticator is a directory that also issues and revokes tokens
type Authenticator interface {
	Directory
	Login(ctx context.Context, email, password string) (LoginResult, error)
	Logout(ctx context.Context, token string) error
}

// Accounts is a directory that owns user credentials
type Accounts interface {
	CreateUser(ctx context.Context, email, password, name, role string) (shared.User, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
}

// LoginResult is returned by a successful login
type LoginResult struct {
	Token     string           `json:"token"`
	ExpiresAt int64            `json:"expires_at"`
	User      shared.Principal `json:"user"`
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
