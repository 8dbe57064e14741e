package authpw

import (
	"context"
	"errors"
	"testing"

	"mango/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users      map[int64]store.User
	emailIndex map[string]int64
	nextID     int64
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[int64]store.User),
		emailIndex: make(map[string]int64),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, bool, error) {
	if id, ok := m.emailIndex[email]; ok {
		return m.users[id], true, nil
	}
	return store.User{}, false, nil
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id int64) (store.User, bool, error) {
	user, ok := m.users[id]
	return user, ok, nil
}

func (m *mockUserStore) CreateUser(ctx context.Context, name, email, passwordHash string) (store.User, error) {
	m.nextID++
	user := store.User{ID: m.nextID, Name: name, Email: email, PasswordHash: passwordHash}
	m.users[user.ID] = user
	m.emailIndex[email] = user.ID
	return user, nil
}

func (m *mockUserStore) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	user, ok := m.users[id]
	if !ok {
		return errors.New("user not found")
	}
	user.PasswordHash = passwordHash
	m.users[id] = user
	return nil
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	t.Run("successful sign up", func(t *testing.T) {
		user, err := svc.SignUp(ctx, SignUpRequest{
			Name:     "Test User",
			Email:    "test@example.com",
			Password: "password123",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.ID == 0 {
			t.Error("expected user ID to be set")
		}
		if user.Moderator {
			t.Error("new accounts must not be moderators")
		}
		if user.PasswordHash == "password123" {
			t.Error("password stored unhashed")
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Name:     "Test User 2",
			Email:    "test@example.com",
			Password: "password123",
		})
		if !errors.Is(err, ErrEmailTaken) {
			t.Errorf("expected ErrEmailTaken, got %v", err)
		}
	})

	t.Run("short password", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Name:     "Test User",
			Email:    "test2@example.com",
			Password: "short",
		})
		if err == nil {
			t.Error("expected error for short password")
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		if _, err := svc.SignUp(ctx, SignUpRequest{}); err == nil {
			t.Error("expected error for missing fields")
		}
	})
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	if _, err := svc.SignUp(ctx, SignUpRequest{
		Name: "Test User", Email: "test@example.com", Password: "password123",
	}); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	t.Run("successful sign in", func(t *testing.T) {
		user, err := svc.SignIn(ctx, "test@example.com", "password123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.Email != "test@example.com" {
			t.Errorf("expected email test@example.com, got %s", user.Email)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, "test@example.com", "wrongpassword"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("non-existent user", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, "nonexistent@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("locked account", func(t *testing.T) {
		user, _ := svc.SignUp(ctx, SignUpRequest{
			Name: "Locked", Email: "locked@example.com", Password: "password123",
		})
		locked := mockStore.users[user.ID]
		locked.Locked = true
		mockStore.users[user.ID] = locked

		if _, err := svc.SignIn(ctx, "locked@example.com", "password123"); !errors.Is(err, ErrAccountLocked) {
			t.Errorf("expected ErrAccountLocked, got %v", err)
		}
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	user, err := svc.SignUp(ctx, SignUpRequest{
		Name: "Test User", Email: "test@example.com", Password: "password123",
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	t.Run("wrong current password", func(t *testing.T) {
		err := svc.ChangePassword(ctx, user.ID, "wrong", "newpassword123")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("short new password", func(t *testing.T) {
		if err := svc.ChangePassword(ctx, user.ID, "password123", "short"); err == nil {
			t.Error("expected error for short password")
		}
	})

	t.Run("successful change", func(t *testing.T) {
		if err := svc.ChangePassword(ctx, user.ID, "password123", "newpassword123"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := svc.SignIn(ctx, "test@example.com", "password123"); err == nil {
			t.Error("expected old password to stop working")
		}
		if _, err := svc.SignIn(ctx, "test@example.com", "newpassword123"); err != nil {
			t.Errorf("expected new password to work: %v", err)
		}
	})
}
