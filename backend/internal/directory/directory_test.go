package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"golang.org/x/crypto/bcrypt"

	"classroom/backend/internal/shared"
	"classroom/backend/internal/store"
	"classroom/backend/internal/store/memory"
)

func newTestDirectory(t *testing.T) *JWTDirectory {
	t.Helper()
	records := store.NewRecords(memory.New())
	return NewJWTDirectory(records, shared.SecurityConfig{
		JWTSecret:          "test-secret",
		JWTExpirationHours: 1,
		BCryptCost:         bcrypt.MinCost,
	})
}

func TestJWTDirectoryLifecycle(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)

	user, err := d.CreateUser(ctx, " Teacher@School.test ", "secret123", "Ms Frizzle", shared.RoleTeacher)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Email != "teacher@school.test" {
		t.Errorf("email not normalised: %q", user.Email)
	}

	t.Run("Login Success", func(t *testing.T) {
		res, err := d.Login(ctx, "teacher@school.test", "secret123")
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		p, err := d.Resolve(ctx, res.Token)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if p.ID != user.ID || !p.IsTeacher() {
			t.Errorf("principal = %+v", p)
		}
	})

	t.Run("Login Invalid Password", func(t *testing.T) {
		if _, err := d.Login(ctx, "teacher@school.test", "wrong"); !errors.Is(err, shared.ErrUnauthenticated) {
			t.Errorf("err = %v, want ErrUnauthenticated", err)
		}
		if _, err := d.Login(ctx, "nobody@school.test", "secret123"); !errors.Is(err, shared.ErrUnauthenticated) {
			t.Errorf("unknown user err = %v", err)
		}
	})

	t.Run("Logout", func(t *testing.T) {
		res, _ := d.Login(ctx, "teacher@school.test", "secret123")
		if err := d.Logout(ctx, res.Token); err != nil {
			t.Fatalf("Logout: %v", err)
		}
		if _, err := d.Resolve(ctx, res.Token); !errors.Is(err, shared.ErrUnauthenticated) {
			t.Errorf("Resolve after logout err = %v", err)
		}
		if err := d.Logout(ctx, res.Token); err != nil {
			t.Errorf("repeat Logout: %v", err)
		}
	})

	t.Run("Change Password", func(t *testing.T) {
		res, _ := d.Login(ctx, "teacher@school.test", "secret123")
		if err := d.ChangePassword(ctx, user.ID, "secret123", "newsecret456"); err != nil {
			t.Fatalf("ChangePassword: %v", err)
		}
		if _, err := d.Resolve(ctx, res.Token); err == nil {
			t.Error("old session survived a password change")
		}
		if _, err := d.Login(ctx, "teacher@school.test", "newsecret456"); err != nil {
			t.Errorf("login with new password: %v", err)
		}
	})
}

func TestCreateUserValidation(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)
	d.CreateUser(ctx, "a@school.test", "secret123", "A", shared.RoleStudent)

	tests := []struct {
		name, email, password, role string
	}{
		{"short password", "b@school.test", "123", shared.RoleStudent},
		{"bad role", "b@school.test", "secret123", "principal"},
		{"duplicate email", "A@school.test", "secret123", shared.RoleStudent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.CreateUser(ctx, tt.email, tt.password, "x", tt.role); !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestResolveRejectsForeignAndExpiredTokens(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)
	d.CreateUser(ctx, "s@school.test", "secret123", "S", shared.RoleStudent)
	res, err := d.Login(ctx, "s@school.test", "secret123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	forger := newTestDirectory(t)
	forger.config.JWTSecret = "other-secret"
	forged, _, _ := forger.generateToken("USER_x", shared.RoleAdmin)
	if _, err := d.Resolve(ctx, forged); !errors.Is(err, shared.ErrUnauthenticated) {
		t.Errorf("forged token err = %v", err)
	}

	d.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := d.Resolve(ctx, res.Token); !errors.Is(err, shared.ErrUnauthenticated) {
		t.Errorf("expired token err = %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc.def": "abc.def",
		"bearer  xyz ":   "xyz",
		"Basic dXNlcg==": "",
		"Bearer":         "",
		"":               "",
	}
	for header, want := range tests {
		if got := BearerToken(header); got != want {
			t.Errorf("BearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

type stubVerifier struct {
	token *auth.Token
	err   error
}

func (s stubVerifier) VerifyIDToken(context.Context, string) (*auth.Token, error) {
	return s.token, s.err
}

func TestFirebaseDirectory(t *testing.T) {
	ctx := context.Background()

	d := NewFirebaseDirectoryWithVerifier(stubVerifier{token: &auth.Token{
		UID:    "fb-uid-1",
		Claims: map[string]interface{}{"role": "student", "email": "kid@school.test"},
	}})
	p, err := d.Resolve(ctx, "id-token")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.ID != "fb-uid-1" || !p.IsStudent() || p.Email != "kid@school.test" {
		t.Errorf("principal = %+v", p)
	}

	noRole := NewFirebaseDirectoryWithVerifier(stubVerifier{token: &auth.Token{UID: "u", Claims: map[string]interface{}{}}})
	if _, err := noRole.Resolve(ctx, "id-token"); !errors.Is(err, shared.ErrPermissionDenied) {
		t.Errorf("missing role err = %v", err)
	}

	bad := NewFirebaseDirectoryWithVerifier(stubVerifier{err: errors.New("token expired")})
	if _, err := bad.Resolve(ctx, "id-token"); !errors.Is(err, shared.ErrUnauthenticated) {
		t.Errorf("invalid token err = %v", err)
	}
	if _, err := bad.Resolve(ctx, ""); !errors.Is(err, shared.ErrUnauthenticated) {
		t.Errorf("empty token err = %v", err)
	}
}
