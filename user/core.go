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
	"strings"
	"time"

	"github.com/opentrusty/opentrusty-core/audit"
	"github.com/opentrusty/opentrusty-core/coreerr"
	"github.com/opentrusty/opentrusty-core/id"
	"github.com/opentrusty/opentrusty-core/password"
)

// maxFailedLoginAttempts is the lockout threshold; past this many
// consecutive failures the account is locked for lockoutDuration.
const maxFailedLoginAttempts = 5

const lockoutDuration = 15 * time.Minute

// normalizeEmail lowercases and trims an email before insert or lookup, per
// the entity model's constructor invariant.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Core implements Service-scoped user CRUD and password authentication.
//
// Purpose: CRUD under service mask; credential verification.
// Domain: Identity
type Core struct {
	repo   Repository
	hasher password.Hasher
}

// NewCore constructs a user core over its driver repository and the
// password hashing adapter.
func NewCore(repo Repository, hasher password.Hasher) *Core {
	return &Core{repo: repo, hasher: hasher}
}

// Create provisions a user within a service. If plainPassword is non-empty
// it is hashed before persistence; the plaintext is never retained beyond
// this call.
func (c *Core) Create(ctx context.Context, serviceID, name, email string, plainPassword string) (*User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return nil, coreerr.BadRequest("name is required", "name")
	}
	if email == "" {
		return nil, coreerr.BadRequest("email is required", "email")
	}

	u := &User{
		ID:        id.New(),
		ServiceID: serviceID,
		IsEnabled: true,
		Name:      name,
		Email:     email,
	}

	if plainPassword != "" {
		hash, err := c.hasher.Hash(plainPassword)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.KindDriver, "failed to hash password", err)
		}
		u.PasswordHash = &hash
	}

	if err := c.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ReadByID fetches a user under the service mask.
func (c *Core) ReadByID(ctx context.Context, userID string, serviceMask *string) (*User, error) {
	u, err := c.repo.ReadByID(ctx, userID, serviceMask)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, coreerr.NotFound("user not found")
	}
	return u, nil
}

// List returns a page of users within serviceID.
func (c *Core) List(ctx context.Context, serviceID string, q ListQuery) ([]*User, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	return c.repo.List(ctx, serviceID, q)
}

// UpdateByID applies a partial update under the service mask.
func (c *Core) UpdateByID(ctx context.Context, userID string, serviceMask *string, u Update) (*User, error) {
	if u.Email != nil {
		normalized := normalizeEmail(*u.Email)
		u.Email = &normalized
	}
	updated, err := c.repo.UpdateByID(ctx, userID, serviceMask, u)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, coreerr.NotFound("user not found")
	}
	return updated, nil
}

// DeleteByID removes a user under the service mask.
func (c *Core) DeleteByID(ctx context.Context, userID string, serviceMask *string) (int, error) {
	return c.repo.DeleteByID(ctx, userID, serviceMask)
}

// Authenticate verifies a plaintext password against the stored hash for
// (serviceID, email). It never discloses which of {no such user, wrong
// password, account disabled, account locked} occurred; all map to the
// same Forbidden error, mirroring the key core's non-disclosure policy.
func (c *Core) Authenticate(ctx context.Context, serviceID, email, plainPassword string) (*User, error) {
	email = normalizeEmail(email)
	u, err := c.repo.ReadByEmail(ctx, serviceID, email)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.IsEnabled || u.PasswordHash == nil {
		return nil, coreerr.Forbidden("authentication failed")
	}
	if u.LockedUntil != nil && time.Now().Before(*u.LockedUntil) {
		return nil, coreerr.Forbidden("authentication failed")
	}

	ok, err := c.hasher.Verify(plainPassword, *u.PasswordHash)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindDriver, "failed to verify password", err)
	}
	if !ok {
		attempts := u.FailedLoginAttempts + 1
		var lockedUntil *time.Time
		if attempts >= maxFailedLoginAttempts {
			until := time.Now().Add(lockoutDuration)
			lockedUntil = &until
		}
		if lockErr := c.repo.UpdateLockout(ctx, u.ID, attempts, lockedUntil); lockErr != nil {
			return nil, lockErr
		}
		return nil, coreerr.Forbidden("authentication failed")
	}

	if u.FailedLoginAttempts != 0 {
		if err := c.repo.UpdateLockout(ctx, u.ID, 0, nil); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// SetPassword hashes and stores a new password, then writes the
// user.password.update audit record with subject=user.id and
// data.changed=true.
func (c *Core) SetPassword(ctx context.Context, userID, plainPassword string, builder *audit.Builder, auditRepo audit.Repository) error {
	hash, err := c.hasher.Hash(plainPassword)
	if err != nil {
		return coreerr.Wrap(coreerr.KindDriver, "failed to hash password", err)
	}
	if err := c.repo.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return err
	}
	if builder != nil && auditRepo != nil {
		subject := userID
		_, _ = builder.Create(ctx, auditRepo, audit.TypeUserPasswordUpdate, 200, &subject, map[string]any{"changed": true})
	}
	return nil
}
