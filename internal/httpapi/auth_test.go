package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	if _, exists := s.users[user.Username]; exists {
		return store.ErrConflict
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func legacyAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := legacyAdminStore()

	manager := NewAuthManager("test-secret", time.Hour, users)
	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}

	stored, err := users.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 user, got %d", len(stored))
	}
	if !strings.HasPrefix(stored[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", stored[0].Password)
	}
	if users.updates == 0 {
		t.Fatalf("expected the upgraded hash to be written back")
	}
}

func TestCreateUserStoresPasswordHash(t *testing.T) {
	users := legacyAdminStore()
	manager := NewAuthManager("test-secret", time.Hour, users)

	created, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{
		Username: "Counter2",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if created.Username != "counter2" {
		t.Fatalf("expected lowercased username, got %s", created.Username)
	}
	if created.Role != domain.RoleCashier {
		t.Fatalf("expected cashier default role, got %s", created.Role)
	}

	saved, ok := users.users["counter2"]
	if !ok {
		t.Fatalf("expected user to be saved")
	}
	if saved.Password == "pass1234" || !strings.HasPrefix(saved.Password, "$2") {
		t.Fatalf("expected bcrypt hash, got %s", saved.Password)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "counter2", Password: "pass1234"}); err != nil {
		t.Fatalf("login with new user failed: %v", err)
	}
}

func TestCreateUserRejectsDuplicateAndUnknownRole(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, legacyAdminStore())

	_, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{
		Username: "admin",
		Password: "another1",
		Role:     domain.RoleAdmin,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for taken username, got %v", err)
	}

	_, err = manager.CreateUser(context.Background(), domain.UserCreateRequest{
		Username: "pharmacist",
		Password: "another1",
		Role:     "manager",
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected invalid role error, got %v", err)
	}
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	users := legacyAdminStore()
	users.users["former"] = domain.UserAccount{
		Username: "former",
		Password: "former123",
		Role:     domain.RoleCashier,
		Active:   false,
	}
	manager := NewAuthManager("test-secret", time.Hour, users)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "former", Password: "former123"}); err == nil {
		t.Fatalf("expected inactive account to be refused")
	}
}

func TestParseTokenRoundTripAndRoleCheck(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil)

	token, err := manager.sign("cashier", domain.RoleCashier, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	actor, err := manager.ParseToken(token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if actor.Username != "cashier" || actor.Role != domain.RoleCashier {
		t.Fatalf("unexpected actor %+v", actor)
	}

	foreign, err := manager.sign("someone", "manager", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := manager.ParseToken(foreign); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}

	expired, err := manager.sign("cashier", domain.RoleCashier, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := manager.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}
