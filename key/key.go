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

// Package key is the authentication state machine: three-tier keys (root,
// service, user), the rules by which an opaque bearer value resolves to an
// authenticated principal, and the audit trail that records every attempt.
package key

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/opentrusty/opentrusty-core/audit"
	"github.com/opentrusty/opentrusty-core/coreerr"
	"github.com/opentrusty/opentrusty-core/id"
	"github.com/opentrusty/opentrusty-core/service"
)

// valueBytes is the entropy budget of a key value: at least 21 random
// bytes, rendered as hex (42 characters).
const valueBytes = 21

// Key is a bearer credential. Three variants by the nullability pattern:
// root (ServiceID, UserID both nil), service (ServiceID set, UserID nil),
// user (both set).
//
// Purpose: Opaque credential resolved to a principal during authentication.
// Domain: Identity
// Invariants: UserID set implies ServiceID set. A revoked key never
// authenticates, regardless of IsEnabled.
type Key struct {
	ID        string    `json:"id"`
	IsEnabled bool      `json:"is_enabled"`
	IsRevoked bool      `json:"is_revoked"`
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	ServiceID *string   `json:"service_id,omitempty"`
	UserID    *string   `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Variant classifies a key by its nullability pattern.
type Variant int

const (
	VariantRoot Variant = iota
	VariantService
	VariantUser
)

// VariantOf reports which variant k belongs to.
func VariantOf(k *Key) Variant {
	switch {
	case k.ServiceID == nil:
		return VariantRoot
	case k.UserID == nil:
		return VariantService
	default:
		return VariantUser
	}
}

// ListQuery selects a page of keys ordered by id, ascending or descending.
type ListQuery struct {
	GT    *string
	LT    *string
	Limit int
}

// Update carries partial-update semantics for UpdateByID.
type Update struct {
	IsEnabled *bool
	IsRevoked *bool
	Name      *string
}

// Repository is the driver capability this core depends on.
//
// Purpose: Persistence for the three key variants.
// Domain: Identity
type Repository interface {
	Create(ctx context.Context, isEnabled, isRevoked bool, name, value string, serviceID, userID *string) (*Key, error)
	ReadByID(ctx context.Context, id string) (*Key, error)
	ReadByRootValue(ctx context.Context, value string) (*Key, error)
	ReadByServiceValue(ctx context.Context, value string) (*Key, error)
	ReadByUserValue(ctx context.Context, serviceID, value string) (*Key, error)
	ReadByUserID(ctx context.Context, serviceID, userID string) (*Key, error)
	ListWhereIDGt(ctx context.Context, cursor string, limit int, serviceMask *string) ([]*Key, error)
	ListWhereIDLt(ctx context.Context, cursor string, limit int, serviceMask *string) ([]*Key, error)
	UpdateByID(ctx context.Context, id string, serviceMask *string, u Update) (*Key, error)
	UpdateManyByUserID(ctx context.Context, serviceID, userID string, u Update) (int, error)
	DeleteByID(ctx context.Context, id string, serviceMask *string) (int, error)
	DeleteRoot(ctx context.Context) (int, error)
}

// GenerateValue draws valueBytes from a cryptographically secure source and
// renders them as lowercase hex, giving at least 21 bytes of entropy.
func GenerateValue() (string, error) {
	buf := make([]byte, valueBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", coreerr.Wrap(coreerr.KindDriver, "failed to generate key value", err)
	}
	return hex.EncodeToString(buf), nil
}

// Core implements the authentication state machine and key CRUD.
//
// Purpose: Resolve bearer credentials to principals; mint and manage keys.
// Domain: Identity
type Core struct {
	repo      Repository
	services  service.Repository
	auditRepo audit.Repository
}

// NewCore constructs a key core over its driver repositories.
func NewCore(repo Repository, services service.Repository, auditRepo audit.Repository) *Core {
	return &Core{repo: repo, services: services, auditRepo: auditRepo}
}

// CreateRoot mints a fresh root key.
func (c *Core) CreateRoot(ctx context.Context, isEnabled bool, name string) (*Key, error) {
	value, err := GenerateValue()
	if err != nil {
		return nil, err
	}
	return c.repo.Create(ctx, isEnabled, false, name, value, nil, nil)
}

// CreateService mints a fresh service key bound to serviceID.
func (c *Core) CreateService(ctx context.Context, isEnabled bool, name, serviceID string) (*Key, error) {
	value, err := GenerateValue()
	if err != nil {
		return nil, err
	}
	return c.repo.Create(ctx, isEnabled, false, name, value, &serviceID, nil)
}

// CreateUser mints a fresh user key bound to (serviceID, userID).
func (c *Core) CreateUser(ctx context.Context, isEnabled bool, name, serviceID, userID string) (*Key, error) {
	value, err := GenerateValue()
	if err != nil {
		return nil, err
	}
	return c.repo.Create(ctx, isEnabled, false, name, value, &serviceID, &userID)
}

// List returns a page of keys ordered by id, honoring the service mask. A
// service-masked caller never receives a root key.
func (c *Core) List(ctx context.Context, q ListQuery, serviceMask *string) ([]*Key, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.LT != nil {
		return c.repo.ListWhereIDLt(ctx, *q.LT, q.Limit, serviceMask)
	}
	cursor := id.Nil
	if q.GT != nil {
		cursor = *q.GT
	}
	return c.repo.ListWhereIDGt(ctx, cursor, q.Limit, serviceMask)
}

// ReadByID fetches a key by id under the service mask.
func (c *Core) ReadByID(ctx context.Context, id string, serviceMask *string) (*Key, error) {
	k, err := c.repo.ReadByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if k == nil {
		return nil, coreerr.NotFound("key not found")
	}
	if serviceMask != nil && (k.ServiceID == nil || *k.ServiceID != *serviceMask) {
		return nil, coreerr.NotFound("key not found")
	}
	return k, nil
}

// UpdateByID applies a partial update under the service mask.
func (c *Core) UpdateByID(ctx context.Context, id string, serviceMask *string, u Update) (*Key, error) {
	k, err := c.repo.UpdateByID(ctx, id, serviceMask, u)
	if err != nil {
		return nil, err
	}
	if k == nil {
		return nil, coreerr.NotFound("key not found")
	}
	return k, nil
}

// UpdateManyByUserID disables/revokes/renames every key belonging to a
// user in one call, used when a user account itself is disabled.
func (c *Core) UpdateManyByUserID(ctx context.Context, serviceID, userID string, u Update) (int, error) {
	return c.repo.UpdateManyByUserID(ctx, serviceID, userID, u)
}

// DeleteByID removes a key under the service mask, returning the row count
// affected (0 or 1).
func (c *Core) DeleteByID(ctx context.Context, id string, serviceMask *string) (int, error) {
	return c.repo.DeleteByID(ctx, id, serviceMask)
}

// DeleteRoot removes every root key; used by the bootstrap scenario before
// provisioning a fresh one.
func (c *Core) DeleteRoot(ctx context.Context) (int, error) {
	return c.repo.DeleteRoot(ctx)
}
