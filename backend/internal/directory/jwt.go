package directory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"classroom/backend/internal/shared"
	"classroom/backend/internal/store"
)

// JWTDirectory authenticates against the users collection and issues HS256
// tokens tracked in the sessions collection for revocation
type JWTDirectory struct {
	records *store.Records
	config  shared.SecurityConfig
	now     func() time.Time
}

// CustomClaims for JWT
type CustomClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

const issuer = "classroom-gradebook"

// NewJWTDirectory creates a new JWTDirectory instance
func NewJWTDirectory(records *store.Records, config shared.SecurityConfig) *JWTDirectory {
	return &JWTDirectory{records: records, config: config, now: time.Now}
}

// Login authenticates a user and returns a JWT
func (d *JWTDirectory) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return LoginResult{}, fmt.Errorf("%w: email and password are required", shared.ErrInvalidArgument)
	}

	// 1. Find User
	user, err := d.records.FindUserByEmail(ctx, email)
	if errors.Is(err, shared.ErrUserNotFound) {
		return LoginResult{}, fmt.Errorf("%w: invalid credentials", shared.ErrUnauthenticated)
	}
	if err != nil {
		return LoginResult{}, err
	}

	// 2. Check Password (BCrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, fmt.Errorf("%w: invalid credentials", shared.ErrUnauthenticated)
	}
	if !user.IsActive {
		return LoginResult{}, fmt.Errorf("%w: account is inactive", shared.ErrPermissionDenied)
	}

	// 3. Generate JWT
	token, expiresAt, err := d.generateToken(user.ID, user.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to generate token: %w", err)
	}

	// 4. Create Session (allows for server-side logout/revocation)
	session := shared.Session{
		ID:        shared.GenerateID("sess"),
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: d.now(),
	}
	if err := d.records.PutSession(ctx, session); err != nil {
		return LoginResult{}, fmt.Errorf("failed to create session: %w", err)
	}

	log.Printf("INFO: User %s logged in", user.ID)
	return LoginResult{Token: token, ExpiresAt: expiresAt.Unix(), User: principalOf(user)}, nil
}

// Logout invalidates the session. Unknown tokens succeed.
func (d *JWTDirectory) Logout(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: token is required", shared.ErrInvalidArgument)
	}
	if _, err := d.records.DeleteSessionsByToken(ctx, token); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// Resolve checks the signature, the session and the account behind a token
func (d *JWTDirectory) Resolve(ctx context.Context, token string) (shared.Principal, error) {
	if token == "" {
		return shared.Principal{}, fmt.Errorf("%w: token missing", shared.ErrUnauthenticated)
	}

	// 1. Parse and Verify Signature locally
	claims, err := d.parseToken(token)
	if err != nil {
		return shared.Principal{}, fmt.Errorf("%w: invalid token", shared.ErrUnauthenticated)
	}

	// 2. Check for Active Session (Revocation Check)
	session, err := d.records.FindSession(ctx, token)
	if err != nil {
		return shared.Principal{}, err
	}
	if session.IsExpired(d.now()) {
		return shared.Principal{}, fmt.Errorf("%w: session expired", shared.ErrUnauthenticated)
	}

	// 3. Fetch User Details
	user, err := d.records.GetUser(ctx, claims.UserID)
	if errors.Is(err, shared.ErrUserNotFound) {
		return shared.Principal{}, fmt.Errorf("%w: user not found", shared.ErrUnauthenticated)
	}
	if err != nil {
		return shared.Principal{}, err
	}
	if !user.IsActive {
		return shared.Principal{}, fmt.Errorf("%w: account inactive", shared.ErrUnauthenticated)
	}
	return principalOf(user), nil
}

// CreateUser registers an account with a bcrypt-hashed password
func (d *JWTDirectory) CreateUser(ctx context.Context, email, password, name, role string) (shared.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(password) < 6 {
		return shared.User{}, fmt.Errorf("%w: email and a password of at least 6 characters are required", shared.ErrInvalidArgument)
	}
	if !shared.IsValidRole(role) {
		return shared.User{}, fmt.Errorf("%w: unknown role %q", shared.ErrInvalidArgument, role)
	}
	if _, err := d.records.FindUserByEmail(ctx, email); err == nil {
		return shared.User{}, fmt.Errorf("%w: email %s already registered", shared.ErrInvalidArgument, email)
	} else if !errors.Is(err, shared.ErrUserNotFound) {
		return shared.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.bcryptCost())
	if err != nil {
		return shared.User{}, fmt.Errorf("failed to process password: %w", err)
	}
	now := d.now()
	user := shared.User{
		ID:           shared.GenerateID(strings.ToUpper(role[:3])),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Name:         strings.TrimSpace(name),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.records.PutUser(ctx, user); err != nil {
		return shared.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// ChangePassword verifies the old password, stores the new hash and
// revokes every session of the user
func (d *JWTDirectory) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if userID == "" || oldPassword == "" || len(newPassword) < 6 {
		return fmt.Errorf("%w: all fields required", shared.ErrInvalidArgument)
	}
	user, err := d.records.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return fmt.Errorf("%w: incorrect old password", shared.ErrUnauthenticated)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), d.bcryptCost())
	if err != nil {
		return fmt.Errorf("failed to process password: %w", err)
	}
	user.PasswordHash = string(hash)
	user.UpdatedAt = d.now()
	if err := d.records.PutUser(ctx, user); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	// Force logout everywhere
	if _, err := d.records.DeleteSessionsByUser(ctx, userID); err != nil {
		log.Printf("WARN: failed to revoke sessions of %s: %v", userID, err)
	}
	return nil
}

// ============================================================================
// Internal Helpers
// ============================================================================

func (d *JWTDirectory) bcryptCost() int {
	if d.config.BCryptCost < bcrypt.MinCost {
		return bcrypt.DefaultCost
	}
	return d.config.BCryptCost
}

// generateToken creates a signed JWT
func (d *JWTDirectory) generateToken(userID, role string) (string, time.Time, error) {
	hours := d.config.JWTExpirationHours
	if hours <= 0 {
		hours = 24
	}
	now := d.now()
	expirationTime := now.Add(time.Duration(hours) * time.Hour)

	claims := CustomClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			// unique jti keeps tokens distinct within the same second
			ID:        shared.GenerateID("jti"),
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(d.config.JWTSecret))
	return tokenString, expirationTime, err
}

// parseToken validates the JWT signature and extracts claims
func (d *JWTDirectory) parseToken(tokenString string) (*CustomClaims, error) {
	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(d.config.JWTSecret), nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(d.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	return claims, nil
}

func principalOf(u shared.User) shared.Principal {
	return shared.Principal{ID: u.ID, Role: u.Role, Name: u.Name, Email: u.Email}
}
