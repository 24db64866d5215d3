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

// Package user is a service-scoped identity: CRUD under a service mask plus
// password-based authentication.
package user

import (
	"context"
	"time"
)

// User is a service-scoped identity.
//
// Purpose: A registered principal within exactly one service (tenant).
// Domain: Identity
// Invariants: Email is unique within ServiceID and normalized to lowercase.
type User struct {
	ID                  string    `json:"id"`
	ServiceID           string    `json:"service_id"`
	IsEnabled           bool      `json:"is_enabled"`
	Name                string    `json:"name"`
	Email               string    `json:"email"`
	PasswordHash        *string   `json:"-"`
	FailedLoginAttempts int       `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ListQuery selects a page of users within a service, ordered by id.
type ListQuery struct {
	GT    string
	LT    string
	Limit int
}

// Update carries partial-update semantics for UpdateByID.
type Update struct {
	IsEnabled *bool
	Name      *string
	Email     *string
}

// Repository is the driver capability this core depends on.
//
// Purpose: Abstraction for managing user identity storage.
// Domain: Identity
type Repository interface {
	Create(ctx context.Context, u *User) error
	ReadByID(ctx context.Context, id string, serviceMask *string) (*User, error)
	ReadByEmail(ctx context.Context, serviceID, email string) (*User, error)
	List(ctx context.Context, serviceID string, q ListQuery) ([]*User, error)
	UpdateByID(ctx context.Context, id string, serviceMask *string, u Update) (*User, error)
	DeleteByID(ctx context.Context, id string, serviceMask *string) (int, error)
	UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error
	UpdateLockout(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error
}
