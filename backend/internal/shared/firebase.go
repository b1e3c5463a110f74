// ============================================================================
// backend/internal/shared/firebase.go
// Firebase app initialisation shared by the Firestore store and directory
// ============================================================================

package shared

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// NewFirebaseApp initialises the Firebase app. Without a credentials file the
// SDK falls back to application default credentials.
func NewFirebaseApp(ctx context.Context, cfg FirebaseConfig) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise firebase app: %w", err)
	}
	log.Printf("INFO: Firebase app initialised (Project: %s)", cfg.ProjectID)
	return app, nil
}
