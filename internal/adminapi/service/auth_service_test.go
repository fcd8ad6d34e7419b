package service

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/secretstore"
	"github.com/toolaccess/broker/internal/store/storetest"
)

func newTestAuthService(t *testing.T) (*AuthService, *storetest.Memory) {
	t.Helper()
	mem := storetest.New()
	secrets, err := secretstore.NewEnvKeyring("a-test-secret-at-least-16-bytes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fixed := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	idgen := clock.NewSequential("user")
	return NewAuthService(mem, secrets, fixed, idgen), mem
}

func TestAuthServiceCreateAdminUserHashesPassword(t *testing.T) {
	svc, _ := newTestAuthService(t)

	u, err := svc.CreateAdminUser(context.Background(), "alice", "correct-password", "operator")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.PasswordHash == "correct-password" {
		t.Fatalf("expected the stored password to be hashed, not stored in plaintext")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("correct-password")) != nil {
		t.Fatalf("expected the stored hash to verify against the original password")
	}
}

func TestAuthServiceLoginSucceedsWithCorrectPassword(t *testing.T) {
	svc, _ := newTestAuthService(t)
	if _, err := svc.CreateAdminUser(context.Background(), "alice", "correct-password", "operator"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := svc.Login(context.Background(), "alice", "correct-password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.AccessToken == "" || resp.TokenType != "Bearer" {
		t.Fatalf("expected a populated bearer token response, got %+v", resp)
	}
}

func TestAuthServiceLoginRejectsWrongPassword(t *testing.T) {
	svc, _ := newTestAuthService(t)
	if _, err := svc.CreateAdminUser(context.Background(), "alice", "correct-password", "operator"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Login(context.Background(), "alice", "wrong-password"); err == nil {
		t.Fatalf("expected an error for an incorrect password")
	}
}

func TestAuthServiceLoginRejectsUnknownUsername(t *testing.T) {
	svc, _ := newTestAuthService(t)
	if _, err := svc.Login(context.Background(), "nobody", "whatever"); err == nil {
		t.Fatalf("expected an error for an unknown username")
	}
}
