// ============================================================================
// backend/internal/store/users.go
// Typed access to the users and sessions collections
// ============================================================================

package store

import (
	"context"
	"errors"
	"fmt"

	"classroom/backend/internal/shared"
)

// GetUser loads a user by id
func (r *Records) GetUser(ctx context.Context, id string) (shared.User, error) {
	doc, err := r.ds.Get(ctx, shared.CollectionUsers, id)
	if errors.Is(err, ErrNotFound) {
		return shared.User{}, shared.ErrUserNotFound
	}
	if err != nil {
		return shared.User{}, err
	}
	return userFromDocument(doc)
}

// FindUserByEmail loads the user registered under email
func (r *Records) FindUserByEmail(ctx context.Context, email string) (shared.User, error) {
	docs, err := r.ds.Find(ctx, shared.CollectionUsers, Filter{"email": email})
	if err != nil {
		return shared.User{}, err
	}
	if len(docs) == 0 {
		return shared.User{}, shared.ErrUserNotFound
	}
	return userFromDocument(docs[0])
}

// PutUser upserts a user, password hash included
func (r *Records) PutUser(ctx context.Context, u shared.User) error {
	return r.ds.Put(ctx, shared.CollectionUsers, u.ID, userToDocument(u))
}

// PutSession records an issued token
func (r *Records) PutSession(ctx context.Context, s shared.Session) error {
	doc := Document{
		FieldID:   s.ID,
		"user_id": s.UserID,
		"token":   s.Token,
	}
	timeValue(doc, "expires_at", s.ExpiresAt)
	timeValue(doc, "created_at", s.CreatedAt)
	return r.ds.Put(ctx, shared.CollectionSessions, s.ID, doc)
}

// FindSession loads the session holding token
func (r *Records) FindSession(ctx context.Context, token string) (shared.Session, error) {
	docs, err := r.ds.Find(ctx, shared.CollectionSessions, Filter{"token": token})
	if err != nil {
		return shared.Session{}, err
	}
	if len(docs) == 0 {
		return shared.Session{}, fmt.Errorf("%w: session revoked or expired", shared.ErrUnauthenticated)
	}
	doc := docs[0]
	var s shared.Session
	s.ID, _ = shared.GetString(doc[FieldID])
	s.UserID, _ = shared.GetString(doc["user_id"])
	s.Token, _ = shared.GetString(doc["token"])
	s.ExpiresAt, _ = shared.GetTime(doc["expires_at"])
	s.CreatedAt, _ = shared.GetTime(doc["created_at"])
	return s, nil
}

// DeleteSessionsByToken revokes every session holding token
func (r *Records) DeleteSessionsByToken(ctx context.Context, token string) (int64, error) {
	return r.ds.DeleteMany(ctx, shared.CollectionSessions, Filter{"token": token})
}

// DeleteSessionsByUser revokes every session of a user
func (r *Records) DeleteSessionsByUser(ctx context.Context, userID string) (int64, error) {
	return r.ds.DeleteMany(ctx, shared.CollectionSessions, Filter{"user_id": userID})
}

func userToDocument(u shared.User) Document {
	doc := Document{
		FieldID:         u.ID,
		"email":         u.Email,
		"password_hash": u.PasswordHash,
		"role":          u.Role,
		"name":          u.Name,
		"is_active":     u.IsActive,
	}
	timeValue(doc, "created_at", u.CreatedAt)
	timeValue(doc, "updated_at", u.UpdatedAt)
	return doc
}

func userFromDocument(doc Document) (shared.User, error) {
	var u shared.User
	var err error
	if u.ID, err = shared.GetString(doc[FieldID]); err != nil {
		return u, fmt.Errorf("user id: %w", err)
	}
	u.Email, _ = shared.GetString(doc["email"])
	u.PasswordHash, _ = shared.GetString(doc["password_hash"])
	u.Role, _ = shared.GetString(doc["role"])
	u.Name, _ = shared.GetString(doc["name"])
	u.IsActive, _ = shared.GetBool(doc["is_active"])
	u.CreatedAt, _ = shared.GetTime(doc["created_at"])
	u.UpdatedAt, _ = shared.GetTime(doc["updated_at"])
	return u, nil
}
