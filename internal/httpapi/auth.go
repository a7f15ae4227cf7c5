package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"dokkan/backend/internal/domain"
)

// UserStore is the slice of the repository the auth layer needs.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// AuthManager issues and verifies access tokens and keeps a bcrypt-hashed
// credential cache in front of the user store. Legacy plain-text passwords
// found in the store are upgraded to hashes the first time they are loaded.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	pinHash  []byte
	store    UserStore

	mu       sync.RWMutex
	accounts map[string]account
}

type account struct {
	passwordHash string
	role         string
	active       bool
	createdAt    time.Time
}

type authClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

const tokenIssuer = "dokkan"

var errBadCredentials = errors.New("invalid credentials")

func NewAuthManager(secret string, tokenTTL time.Duration, managerPIN string, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	m := &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		store:    userStore,
		accounts: make(map[string]account),
	}
	if pin := strings.TrimSpace(managerPIN); pin != "" {
		if hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost); err == nil {
			m.pinHash = hash
		}
	}
	m.refreshAccounts(context.Background())
	return m
}

func (m *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	// TODO: refreshAccounts on every login picks up accounts created by
	// other processes, but it should run under a deadline so a slow store
	// cannot stall logins.
	m.refreshAccounts(context.Background())

	acct, ok := m.lookup(req.Username)
	if !ok || !checkSecret(acct.passwordHash, req.Password) {
		return domain.LoginResponse{}, errBadCredentials
	}
	if !acct.active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(m.tokenTTL)
	claims := authClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   strings.ToLower(strings.TrimSpace(req.Username)),
			Issuer:    tokenIssuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Role: acct.role,
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: signed,
		Role:        acct.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (m *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &authClaims{}
	parser := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithExpirationRequired(),
	)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(*jwtlib.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	return domain.Actor{Username: claims.Subject, Role: claims.Role}, nil
}

func (m *AuthManager) ValidateManagerPIN(pin string) bool {
	pin = strings.TrimSpace(pin)
	if pin == "" || m.pinHash == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword(m.pinHash, []byte(pin)) == nil
}

func (m *AuthManager) CreateCashier(req domain.CashierCreateRequest) (domain.CashierUser, error) {
	m.refreshAccounts(context.Background())

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if err := validateNewCashier(username, req.Password); err != nil {
		return domain.CashierUser{}, err
	}
	if _, taken := m.lookup(username); taken {
		return domain.CashierUser{}, fmt.Errorf("username already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.CashierUser{}, fmt.Errorf("failed to hash password")
	}

	now := time.Now().UTC()
	if m.store != nil {
		err := m.store.CreateUser(context.Background(), domain.UserAccount{
			Username:  username,
			Password:  string(hash),
			Role:      "cashier",
			Active:    true,
			CreatedAt: now,
		})
		if err != nil {
			return domain.CashierUser{}, err
		}
	}

	m.mu.Lock()
	m.accounts[username] = account{
		passwordHash: string(hash),
		role:         "cashier",
		active:       true,
		createdAt:    now,
	}
	m.mu.Unlock()

	return domain.CashierUser{Username: username, Role: "cashier", Active: true, CreatedAt: now}, nil
}

func (m *AuthManager) ListCashiers() []domain.CashierUser {
	m.refreshAccounts(context.Background())

	m.mu.RLock()
	cashiers := make([]domain.CashierUser, 0, len(m.accounts))
	for username, acct := range m.accounts {
		if acct.role != "cashier" {
			continue
		}
		cashiers = append(cashiers, domain.CashierUser{
			Username:  username,
			Role:      acct.role,
			Active:    acct.active,
			CreatedAt: acct.createdAt,
		})
	}
	m.mu.RUnlock()

	sort.Slice(cashiers, func(i, j int) bool { return cashiers[i].Username < cashiers[j].Username })
	return cashiers
}

func (m *AuthManager) lookup(username string) (account, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct, ok := m.accounts[strings.ToLower(strings.TrimSpace(username))]
	return acct, ok
}

// refreshAccounts mirrors the user store into the credential cache and
// rewrites any plain-text passwords it finds as bcrypt hashes.
func (m *AuthManager) refreshAccounts(ctx context.Context) {
	if m.store == nil {
		return
	}
	users, err := m.store.ListUsers(ctx)
	if err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range users {
		username := strings.ToLower(strings.TrimSpace(user.Username))
		if username == "" {
			continue
		}
		stored := user.Password
		if !isBcryptHash(stored) {
			if hash, hashErr := bcrypt.GenerateFromPassword([]byte(stored), bcrypt.DefaultCost); hashErr == nil {
				stored = string(hash)
				_ = m.store.UpdateUserPassword(ctx, username, stored)
			}
		}
		m.accounts[username] = account{
			passwordHash: stored,
			role:         user.Role,
			active:       user.Active,
			createdAt:    user.CreatedAt,
		}
	}
}

func validateNewCashier(username, password string) error {
	if len(username) < 4 || strings.ContainsAny(username, " \t\r\n") {
		return fmt.Errorf("username must be at least 4 characters with no spaces")
	}
	if len(strings.TrimSpace(password)) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	return nil
}

func checkSecret(storedHash, input string) bool {
	if !isBcryptHash(storedHash) || strings.TrimSpace(input) == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(input)) == nil
}

func isBcryptHash(value string) bool {
	switch {
	case strings.HasPrefix(value, "$2a$"), strings.HasPrefix(value, "$2b$"), strings.HasPrefix(value, "$2y$"):
		return true
	}
	return false
}
