// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package user

import (
	"context"
	"testing"
	"time"

	"github.com/opentrusty/opentrusty-core/coreerr"
	"github.com/opentrusty/opentrusty-core/password"
)

// mockRepository implements Repository over an in-memory map, keyed by id.
type mockRepository struct {
	users map[string]*User
}

func newMockRepository() *mockRepository {
	return &mockRepository{users: make(map[string]*User)}
}

func (m *mockRepository) Create(ctx context.Context, u *User) error {
	m.users[u.ID] = u
	return nil
}

func (m *mockRepository) ReadByID(ctx context.Context, userID string, serviceMask *string) (*User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	if serviceMask != nil && *serviceMask != u.ServiceID {
		return nil, nil
	}
	return u, nil
}

func (m *mockRepository) ReadByEmail(ctx context.Context, serviceID, email string) (*User, error) {
	for _, u := range m.users {
		if u.ServiceID == serviceID && u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockRepository) List(ctx context.Context, serviceID string, q ListQuery) ([]*User, error) {
	var out []*User
	for _, u := range m.users {
		if u.ServiceID == serviceID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockRepository) UpdateByID(ctx context.Context, userID string, serviceMask *string, u Update) (*User, error) {
	existing, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	if u.Name != nil {
		existing.Name = *u.Name
	}
	if u.Email != nil {
		existing.Email = *u.Email
	}
	if u.IsEnabled != nil {
		existing.IsEnabled = *u.IsEnabled
	}
	return existing, nil
}

func (m *mockRepository) DeleteByID(ctx context.Context, userID string, serviceMask *string) (int, error) {
	if _, ok := m.users[userID]; !ok {
		return 0, nil
	}
	delete(m.users, userID)
	return 1, nil
}

func (m *mockRepository) UpdatePasswordHash(ctx context.Context, userID string, passwordHash string) error {
	u, ok := m.users[userID]
	if !ok {
		return coreerr.NotFound("user not found")
	}
	u.PasswordHash = &passwordHash
	return nil
}

func (m *mockRepository) UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	u, ok := m.users[userID]
	if !ok {
		return coreerr.NotFound("user not found")
	}
	u.FailedLoginAttempts = failedAttempts
	u.LockedUntil = lockedUntil
	return nil
}

func testHasher() password.Hasher {
	return &password.Argon2Hasher{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func TestCreateNormalizesEmail(t *testing.T) {
	c := NewCore(newMockRepository(), testHasher())
	u, err := c.Create(context.Background(), "service-1", "Ada", "  Ada@Example.COM ", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if u.Email != "ada@example.com" {
		t.Errorf("Email = %q, want normalized form", u.Email)
	}
}

func TestAuthenticateSucceedsWithCorrectPassword(t *testing.T) {
	repo := newMockRepository()
	c := NewCore(repo, testHasher())
	u, err := c.Create(context.Background(), "service-1", "Ada", "ada@example.com", "correct-password")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := c.Authenticate(context.Background(), "service-1", "ada@example.com", "correct-password")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("authenticated user id = %q, want %q", got.ID, u.ID)
	}
}

func TestAuthenticateDoesNotDiscloseFailureReason(t *testing.T) {
	repo := newMockRepository()
	c := NewCore(repo, testHasher())
	if _, err := c.Create(context.Background(), "service-1", "Ada", "ada@example.com", "correct-password"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, errWrongPassword := c.Authenticate(context.Background(), "service-1", "ada@example.com", "wrong-password")
	_, errNoSuchUser := c.Authenticate(context.Background(), "service-1", "nobody@example.com", "whatever")

	if !coreerr.Is(errWrongPassword, coreerr.KindForbidden) || !coreerr.Is(errNoSuchUser, coreerr.KindForbidden) {
		t.Fatal("expected both failure modes to report Forbidden")
	}
	if errWrongPassword.Error() != errNoSuchUser.Error() {
		t.Errorf("failure messages differ (%q vs %q); they must not disclose which case occurred", errWrongPassword.Error(), errNoSuchUser.Error())
	}
}

func TestAuthenticateLocksAccountAfterMaxFailedAttempts(t *testing.T) {
	repo := newMockRepository()
	c := NewCore(repo, testHasher())
	if _, err := c.Create(context.Background(), "service-1", "Ada", "ada@example.com", "correct-password"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for i := 0; i < maxFailedLoginAttempts; i++ {
		if _, err := c.Authenticate(context.Background(), "service-1", "ada@example.com", "wrong-password"); err == nil {
			t.Fatalf("expected failure on attempt %d", i+1)
		}
	}

	// Even the correct password must now fail: the account is locked.
	if _, err := c.Authenticate(context.Background(), "service-1", "ada@example.com", "correct-password"); err == nil {
		t.Fatal("expected authentication to fail while the account is locked")
	}
}

func TestAuthenticateResetsFailedAttemptsOnSuccess(t *testing.T) {
	repo := newMockRepository()
	c := NewCore(repo, testHasher())
	u, err := c.Create(context.Background(), "service-1", "Ada", "ada@example.com", "correct-password")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, _ = c.Authenticate(context.Background(), "service-1", "ada@example.com", "wrong-password")
	if _, err := c.Authenticate(context.Background(), "service-1", "ada@example.com", "correct-password"); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	stored := repo.users[u.ID]
	if stored.FailedLoginAttempts != 0 {
		t.Errorf("FailedLoginAttempts = %d, want 0 after a successful login", stored.FailedLoginAttempts)
	}
}

func TestSetPasswordReplacesStoredPassword(t *testing.T) {
	repo := newMockRepository()
	c := NewCore(repo, testHasher())
	u, err := c.Create(context.Background(), "service-1", "Ada", "ada@example.com", "old-password")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err = c.SetPassword(context.Background(), u.ID, "new-password", nil, nil)
	if err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}

	if _, err := c.Authenticate(context.Background(), "service-1", "ada@example.com", "new-password"); err != nil {
		t.Fatalf("Authenticate() with new password error = %v", err)
	}
}
