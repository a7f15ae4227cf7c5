package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"dokkan/backend/internal/domain"
)

type userStoreStub struct {
	users   map[string]domain.UserAccount
	updates int
}

func newUserStoreStub(users ...domain.UserAccount) *userStoreStub {
	stub := &userStoreStub{users: make(map[string]domain.UserAccount)}
	for _, u := range users {
		stub.users[u.Username] = u
	}
	return stub
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username, password string) error {
	u := s.users[username]
	u.Password = password
	s.users[username] = u
	s.updates++
	return nil
}

func TestLoginUpgradesLegacyPlainPassword(t *testing.T) {
	stub := newUserStoreStub(domain.UserAccount{
		Username: "owner", Password: "plain-secret", Role: "admin", Active: true, CreatedAt: time.Now().UTC(),
	})
	auth := NewAuthManager("unit-test-secret", time.Hour, "", stub)

	resp, err := auth.Login(domain.LoginRequest{Username: "owner", Password: "plain-secret"})
	if err != nil {
		t.Fatalf("login with legacy password: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("expected admin role, got %q", resp.Role)
	}

	if stub.updates == 0 {
		t.Fatal("expected the plain password to be rewritten in the store")
	}
	if !isBcryptHash(stub.users["owner"].Password) {
		t.Fatalf("stored password still plain: %q", stub.users["owner"].Password)
	}

	// The upgraded hash must keep the original password working.
	if _, err := auth.Login(domain.LoginRequest{Username: "owner", Password: "plain-secret"}); err != nil {
		t.Fatalf("login after upgrade: %v", err)
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "owner", Password: "wrong"}); err == nil {
		t.Fatal("expected wrong password to be rejected")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	stub := newUserStoreStub(domain.UserAccount{
		Username: "former", Password: "retired-pass", Role: "cashier", Active: false, CreatedAt: time.Now().UTC(),
	})
	auth := NewAuthManager("unit-test-secret", time.Hour, "", stub)

	if _, err := auth.Login(domain.LoginRequest{Username: "former", Password: "retired-pass"}); err == nil {
		t.Fatal("expected inactive account to be rejected")
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	stub := newUserStoreStub(domain.UserAccount{
		Username: "owner", Password: "plain-secret", Role: "admin", Active: true, CreatedAt: time.Now().UTC(),
	})
	auth := NewAuthManager("unit-test-secret", time.Hour, "", stub)

	resp, err := auth.Login(domain.LoginRequest{Username: "owner", Password: "plain-secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "owner" || actor.Role != "admin" {
		t.Fatalf("unexpected actor: %+v", actor)
	}

	other := NewAuthManager("a-different-secret", time.Hour, "", stub)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
}

func TestCreateCashierStoresHashOnly(t *testing.T) {
	stub := newUserStoreStub()
	auth := NewAuthManager("unit-test-secret", time.Hour, "", stub)

	created, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "Counter1", Password: "till-pass-9"})
	if err != nil {
		t.Fatalf("create cashier: %v", err)
	}
	if created.Username != "counter1" {
		t.Fatalf("expected lowercased username, got %q", created.Username)
	}

	stored := stub.users["counter1"].Password
	if stored == "till-pass-9" || !isBcryptHash(stored) {
		t.Fatalf("expected bcrypt hash in store, got %q", stored)
	}

	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "counter1", Password: "till-pass-9"}); err == nil {
		t.Fatal("expected duplicate username to be rejected")
	}

	listed := auth.ListCashiers()
	if len(listed) != 1 || listed[0].Username != "counter1" {
		t.Fatalf("unexpected cashier list: %+v", listed)
	}
}

func TestCreateCashierValidation(t *testing.T) {
	auth := NewAuthManager("unit-test-secret", time.Hour, "", newUserStoreStub())

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"short username", "ab", "long-enough"},
		{"username with space", "two words", "long-enough"},
		{"short password", "validuser", "tiny"},
		{"blank password", "validuser", strings.Repeat(" ", 8)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := auth.CreateCashier(domain.CashierCreateRequest{Username: tc.username, Password: tc.password})
			if err == nil {
				t.Fatalf("expected %s to be rejected", tc.name)
			}
		})
	}
}

func TestManagerPINNeverStoredPlain(t *testing.T) {
	auth := NewAuthManager("unit-test-secret", time.Hour, "902718", newUserStoreStub())

	if got := string(auth.pinHash); got == "902718" {
		t.Fatal("manager PIN kept in plain text")
	}
	if !auth.ValidateManagerPIN("902718") {
		t.Fatal("expected correct PIN to validate")
	}
	if auth.ValidateManagerPIN("000000") {
		t.Fatal("expected wrong PIN to fail")
	}

	noPIN := NewAuthManager("unit-test-secret", time.Hour, "  ", newUserStoreStub())
	if noPIN.ValidateManagerPIN("902718") {
		t.Fatal("expected blank-configured PIN to reject everything")
	}
}
