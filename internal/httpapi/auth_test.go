package httpapi

import (
	"context"
	"testing"
	"time"

	"saldopos/backend/internal/domain"
	"saldopos/backend/internal/store/memory"
)

func newTestAuth(t *testing.T) *AuthManager {
	t.Helper()
	repo := memory.New()
	ctx := context.Background()
	// Plaintext on purpose: bootstrap must upgrade it to a bcrypt hash.
	accounts := []domain.StaffAccount{
		{Username: "admin", Password: "admin-secret", Role: "admin", Active: true, CreatedAt: time.Now().UTC()},
		{Username: "kasir", Password: "kasir-secret", Role: "cashier", Active: true, CreatedAt: time.Now().UTC()},
		{Username: "ghost", Password: "ghost-secret", Role: "cashier", Active: false, CreatedAt: time.Now().UTC()},
	}
	for _, acct := range accounts {
		if err := repo.CreateStaff(ctx, acct); err != nil {
			t.Fatalf("create staff failed: %v", err)
		}
	}
	return NewAuthManager("test-secret-test-secret-test-secret!", time.Hour, "480032", repo)
}

func TestLoginAndParseToken(t *testing.T) {
	auth := newTestAuth(t)

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin-secret"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "admin" || resp.AccessToken == "" {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginRejectsBadCredentialsAndInactive(t *testing.T) {
	auth := newTestAuth(t)

	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "wrong"}); err == nil {
		t.Fatalf("expected login to fail with wrong password")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "nobody", Password: "x"}); err == nil {
		t.Fatalf("expected login to fail for unknown user")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "ghost-secret"}); err == nil {
		t.Fatalf("expected login to fail for inactive account")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	auth := newTestAuth(t)
	if _, err := auth.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected parse to fail")
	}
}

func TestValidateAdminCode(t *testing.T) {
	auth := newTestAuth(t)

	if !auth.ValidateAdminCode("480032") {
		t.Fatalf("expected correct admin code to validate")
	}
	if auth.ValidateAdminCode("999999") || auth.ValidateAdminCode("") {
		t.Fatalf("expected wrong or empty admin code to fail")
	}
}

func TestUnsetAdminCodeRejectsEveryInput(t *testing.T) {
	auth := NewAuthManager("test-secret-test-secret-test-secret!", time.Hour, "", nil)

	// With no code configured there must be no input that validates, including
	// internal sentinel-looking strings.
	for _, code := range []string{"", "disabled", "480032", "$2a$10$x"} {
		if auth.ValidateAdminCode(code) {
			t.Fatalf("no configured admin code must reject %q", code)
		}
	}
}

func TestCreateStaffValidation(t *testing.T) {
	auth := newTestAuth(t)

	if _, err := auth.CreateStaff(domain.LoginRequest{Username: "ab", Password: "longenough"}); err == nil {
		t.Fatalf("expected short username to fail")
	}
	if _, err := auth.CreateStaff(domain.LoginRequest{Username: "newstaff", Password: "123"}); err == nil {
		t.Fatalf("expected short password to fail")
	}
	if _, err := auth.CreateStaff(domain.LoginRequest{Username: "admin", Password: "longenough"}); err == nil {
		t.Fatalf("expected duplicate username to fail")
	}

	staff, err := auth.CreateStaff(domain.LoginRequest{Username: "NewStaff", Password: "longenough"})
	if err != nil {
		t.Fatalf("create staff failed: %v", err)
	}
	if staff.Username != "newstaff" || staff.Role != "cashier" {
		t.Fatalf("unexpected staff account: %+v", staff)
	}

	if _, err := auth.Login(domain.LoginRequest{Username: "newstaff", Password: "longenough"}); err != nil {
		t.Fatalf("new staff login failed: %v", err)
	}
}
