package main

import (
	"testing"

	"gemtrack/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:         "short",
		BookkeeperEmail:    "books@example.com",
		BookkeeperPassword: "ledger-pass-123",
	})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}

	err = validateSecurityConfig(config.Config{
		AuthSecret:         "0123456789abcdef0123456789abcdef",
		BookkeeperEmail:    "not-an-email",
		BookkeeperPassword: "ledger-pass-123",
	})
	if err == nil {
		t.Fatalf("expected invalid email to be rejected")
	}

	err = validateSecurityConfig(config.Config{
		AuthSecret:         "0123456789abcdef0123456789abcdef",
		BookkeeperEmail:    "books@example.com",
		BookkeeperPassword: "short",
	})
	if err == nil {
		t.Fatalf("expected short password to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:         "0123456789abcdef0123456789abcdef",
		BookkeeperEmail:    "books@example.com",
		BookkeeperPassword: "ledger-pass-123",
	})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}
