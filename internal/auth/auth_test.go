package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/breakdesk/breakdesk/internal/storage/bolt"
)

func newAuthFixture(t *testing.T, expiration time.Duration) (*Service, storage.UserStore) {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "breakdesk.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	service, err := NewService(store.Users(), "test-secret", expiration, 0)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service, store.Users()
}

func seedCredentialedUser(t *testing.T, users storage.UserStore, email, password string) storage.User {
	t.Helper()

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := storage.User{
		ID:           "user-" + email,
		Email:        email,
		FirstName:    "Mia",
		LastName:     "Ng",
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := users.Upsert(context.Background(), user); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	return user
}

func TestLoginSuccess(t *testing.T) {
	service, users := newAuthFixture(t, 0)
	seeded := seedCredentialedUser(t, users, "mia@example.com", "correct horse")

	user, token, err := service.Login(context.Background(), "mia@example.com", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != seeded.ID {
		t.Fatalf("expected user %s, got %s", seeded.ID, user.ID)
	}
	if token == "" {
		t.Fatal("expected a token")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	service, users := newAuthFixture(t, 0)
	seedCredentialedUser(t, users, "mia@example.com", "correct horse")

	if _, _, err := service.Login(context.Background(), "mia@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, _, err := service.Login(context.Background(), "nobody@example.com", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestVerifyResolvesCurrentRecord(t *testing.T) {
	service, users := newAuthFixture(t, 0)
	seeded := seedCredentialedUser(t, users, "mia@example.com", "correct horse")

	token, err := service.IssueToken(&seeded)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	user, err := service.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if user.TeamID != "" {
		t.Fatalf("expected no team yet, got %q", user.TeamID)
	}

	// A team change after issuance must be visible on the next verify.
	if err := users.SetTeam(context.Background(), seeded.ID, "team-1"); err != nil {
		t.Fatalf("set team: %v", err)
	}
	user, err = service.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify after team change: %v", err)
	}
	if user.TeamID != "team-1" {
		t.Fatalf("expected team-1, got %q", user.TeamID)
	}
}

func TestVerifyRejectsGarbageToken(t *testing.T) {
	service, _ := newAuthFixture(t, 0)

	if _, err := service.Verify(context.Background(), "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	service, users := newAuthFixture(t, -time.Hour)
	seeded := seedCredentialedUser(t, users, "mia@example.com", "correct horse")

	token, err := service.IssueToken(&seeded)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := service.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	service, users := newAuthFixture(t, 0)
	seeded := seedCredentialedUser(t, users, "mia@example.com", "correct horse")

	other, err := NewService(users, "other-secret", 0, 0)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	token, err := other.IssueToken(&seeded)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := service.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestVerifyRejectsDeletedUser(t *testing.T) {
	service, users := newAuthFixture(t, 0)
	seeded := seedCredentialedUser(t, users, "mia@example.com", "correct horse")

	token, err := service.IssueToken(&seeded)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if err := users.Delete(context.Background(), seeded.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	if _, err := service.Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for deleted user, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	service, users := newAuthFixture(t, 0)
	seeded := seedCredentialedUser(t, users, "mia@example.com", "correct horse")

	if err := service.ChangePassword(context.Background(), seeded.ID, "wrong", "battery staple"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if err := service.ChangePassword(context.Background(), seeded.ID, "correct horse", "battery staple"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if _, _, err := service.Login(context.Background(), "mia@example.com", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password to be rejected, got %v", err)
	}
	if _, _, err := service.Login(context.Background(), "mia@example.com", "battery staple"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}
