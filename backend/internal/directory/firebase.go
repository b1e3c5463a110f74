package directory

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"

	"classroom/backend/internal/shared"
)

// RoleClaim is the custom claim carrying the classroom role
const RoleClaim = "role"

// TokenVerifier is the subset of the Firebase Auth client the directory uses
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseDirectory resolves Firebase ID tokens. Users sign in with the
// Firebase client SDK; roles are assigned as custom claims.
type FirebaseDirectory struct {
	verifier TokenVerifier
}

// NewFirebaseDirectory opens the Auth client of a Firebase app
func NewFirebaseDirectory(ctx context.Context, app *firebase.App) (*FirebaseDirectory, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open firebase auth client: %w", err)
	}
	return &FirebaseDirectory{verifier: client}, nil
}

// NewFirebaseDirectoryWithVerifier builds a directory over any verifier
func NewFirebaseDirectoryWithVerifier(v TokenVerifier) *FirebaseDirectory {
	return &FirebaseDirectory{verifier: v}
}

// Resolve verifies the ID token and reads the role custom claim
func (d *FirebaseDirectory) Resolve(ctx context.Context, token string) (shared.Principal, error) {
	if token == "" {
		return shared.Principal{}, fmt.Errorf("%w: token missing", shared.ErrUnauthenticated)
	}
	tok, err := d.verifier.VerifyIDToken(ctx, token)
	if err != nil {
		return shared.Principal{}, fmt.Errorf("%w: %v", shared.ErrUnauthenticated, err)
	}

	role, _ := tok.Claims[RoleClaim].(string)
	if !shared.IsValidRole(role) {
		return shared.Principal{}, fmt.Errorf("%w: user %s has no classroom role", shared.ErrPermissionDenied, tok.UID)
	}
	p := shared.Principal{ID: tok.UID, Role: role}
	p.Name, _ = tok.Claims["name"].(string)
	p.Email, _ = tok.Claims["email"].(string)
	return p, nil
}
