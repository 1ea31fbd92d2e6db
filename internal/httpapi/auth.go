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

	"saldopos/backend/internal/domain"
)

type AuthManager struct {
	mu           sync.RWMutex
	secret       []byte
	tokenTTL     time.Duration
	adminCode    string
	codeDisabled bool
	staffStore   StaffStore
	users        map[string]credential
}

type StaffStore interface {
	CreateStaff(ctx context.Context, staff domain.StaffAccount) error
	ListStaff(ctx context.Context) ([]domain.StaffAccount, error)
	UpdateStaffPassword(ctx context.Context, username string, password string) error
}

type credential struct {
	password string
	role     string
	active   bool
	created  time.Time
}

type ledgerClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

// NewAuthManager wires credential verification for the HTTP layer. adminCode
// gates destructive operations (restore); it is stored bcrypt-hashed and an
// empty code disables those operations entirely.
func NewAuthManager(secret string, tokenTTL time.Duration, adminCode string, staffStore StaffStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	adminCode = strings.TrimSpace(adminCode)
	codeDisabled := adminCode == ""
	if !codeDisabled {
		hashedCode, err := hashPassword(adminCode)
		if err != nil {
			codeDisabled = true
		} else {
			adminCode = hashedCode
		}
	}

	manager := &AuthManager{
		secret:       []byte(secret),
		tokenTTL:     tokenTTL,
		adminCode:    adminCode,
		codeDisabled: codeDisabled,
		staffStore:   staffStore,
		users:        make(map[string]credential),
	}
	// Startup-time load; no request context exists yet.
	manager.bootstrapUsers(context.Background())
	return manager
}

func (a *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	// Re-read the staff store so accounts added by another process (or a
	// restore) are picked up without a restart.
	a.bootstrapUsers(context.Background())
	username := strings.ToLower(strings.TrimSpace(req.Username))
	a.mu.RLock()
	cred, ok := a.users[username]
	a.mu.RUnlock()
	if !ok {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	if !verifyPassword(cred.password, req.Password) {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if !cred.active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, cred.role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        cred.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &ledgerClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Username: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(username, role string, expiresAt time.Time) (string, error) {
	claims := ledgerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "saldopos",
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) ValidateAdminCode(code string) bool {
	if a.codeDisabled {
		return false
	}
	input := strings.TrimSpace(code)
	if input == "" || !isPasswordHash(a.adminCode) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.adminCode), []byte(input)) == nil
}

func (a *AuthManager) CreateStaff(req domain.LoginRequest) (domain.StaffAccount, error) {
	a.bootstrapUsers(context.Background())
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 4 {
		return domain.StaffAccount{}, fmt.Errorf("username must be at least 4 characters")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.StaffAccount{}, fmt.Errorf("username must not contain spaces")
	}
	if len(strings.TrimSpace(req.Password)) < 6 {
		return domain.StaffAccount{}, fmt.Errorf("password must be at least 6 characters")
	}

	a.mu.RLock()
	_, exists := a.users[username]
	a.mu.RUnlock()
	if exists {
		return domain.StaffAccount{}, fmt.Errorf("username already exists")
	}

	now := time.Now().UTC()
	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.StaffAccount{}, fmt.Errorf("failed to hash password")
	}

	if a.staffStore != nil {
		err := a.staffStore.CreateStaff(context.Background(), domain.StaffAccount{
			Username:  username,
			Password:  passwordHash,
			Role:      "cashier",
			Active:    true,
			CreatedAt: now,
		})
		if err != nil {
			return domain.StaffAccount{}, err
		}
	}

	a.mu.Lock()
	a.users[username] = credential{
		password: passwordHash,
		role:     "cashier",
		active:   true,
		created:  now,
	}
	a.mu.Unlock()

	return domain.StaffAccount{
		Username:  username,
		Role:      "cashier",
		Active:    true,
		CreatedAt: now,
	}, nil
}

func (a *AuthManager) ListStaff() []domain.StaffAccount {
	a.bootstrapUsers(context.Background())
	a.mu.RLock()
	result := make([]domain.StaffAccount, 0, len(a.users))
	for username, user := range a.users {
		result = append(result, domain.StaffAccount{
			Username:  username,
			Role:      user.role,
			Active:    user.active,
			CreatedAt: user.created,
		})
	}
	a.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result
}

// bootstrapUsers loads staff accounts from the store into the in-memory
// credential cache, upgrading any legacy plain-text passwords to bcrypt
// hashes as a side effect.
func (a *AuthManager) bootstrapUsers(ctx context.Context) {
	if a.staffStore == nil {
		return
	}

	accounts, err := a.staffStore.ListStaff(ctx)
	if err != nil || len(accounts) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, acct := range accounts {
		username := strings.ToLower(strings.TrimSpace(acct.Username))
		if username == "" {
			continue
		}
		password := acct.Password
		if !isPasswordHash(password) {
			hashed, err := hashPassword(password)
			if err == nil {
				password = hashed
				_ = a.staffStore.UpdateStaffPassword(ctx, username, hashed)
			}
		}
		a.users[username] = credential{
			password: password,
			role:     acct.Role,
			active:   acct.Active,
			created:  acct.CreatedAt,
		}
	}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
