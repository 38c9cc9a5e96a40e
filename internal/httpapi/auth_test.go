package httpapi

import (
	"strings"
	"testing"
	"time"

	"gemtrack/backend/internal/domain"
)

func TestAuthManagerHashesPlainPassword(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "books@example.com", "ledger-pass-123")

	if manager.password == "ledger-pass-123" {
		t.Fatalf("expected password to be stored as hash, got plain-text")
	}
	if !strings.HasPrefix(manager.password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", manager.password)
	}

	if _, err := manager.Login(domain.LoginRequest{
		Email:    "books@example.com",
		Password: "ledger-pass-123",
	}); err != nil {
		t.Fatalf("login with hashed password failed: %v", err)
	}
}

func TestLoginNormalizesEmailCase(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "Books@Example.com", "ledger-pass-123")

	resp, err := manager.Login(domain.LoginRequest{
		Email:    "  BOOKS@example.COM ",
		Password: "ledger-pass-123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Email != "books@example.com" {
		t.Fatalf("expected normalized email, got %s", resp.Email)
	}
}

func TestLoginRejectsWrongCredentials(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "books@example.com", "ledger-pass-123")

	if _, err := manager.Login(domain.LoginRequest{
		Email:    "books@example.com",
		Password: "wrong",
	}); err == nil {
		t.Fatalf("expected wrong password to fail")
	}
	if _, err := manager.Login(domain.LoginRequest{
		Email:    "intruder@example.com",
		Password: "ledger-pass-123",
	}); err == nil {
		t.Fatalf("expected unknown email to fail")
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "books@example.com", "ledger-pass-123")

	resp, err := manager.Login(domain.LoginRequest{
		Email:    "books@example.com",
		Password: "ledger-pass-123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Email != "books@example.com" {
		t.Fatalf("expected actor email from token subject, got %s", actor.Email)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("secret-one", time.Hour, "books@example.com", "ledger-pass-123")
	verifier := NewAuthManager("secret-two", time.Hour, "books@example.com", "ledger-pass-123")

	resp, err := issuer.Login(domain.LoginRequest{
		Email:    "books@example.com",
		Password: "ledger-pass-123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Nanosecond, "books@example.com", "ledger-pass-123")

	resp, err := manager.Login(domain.LoginRequest{
		Email:    "books@example.com",
		Password: "ledger-pass-123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if _, err := manager.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}
