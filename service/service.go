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

// Package service is the tenant boundary: every key, user and audit record
// other than a root key belongs to exactly one Service.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/opentrusty/opentrusty-core/coreerr"
	"github.com/opentrusty/opentrusty-core/id"
)

// Service is the tenant boundary.
//
// Purpose: Root container for data isolation in multi-tenant deployments.
// Domain: Tenant
// Invariants: Name is unique across the system.
type Service struct {
	ID        string    `json:"id"`
	IsEnabled bool      `json:"is_enabled"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListQuery selects a page of services ordered by id.
type ListQuery struct {
	GT    string
	LT    string
	Limit int
}

// Update carries partial-update semantics: a nil field means "leave
// unchanged", a non-nil field means "replace".
type Update struct {
	IsEnabled *bool
	Name      *string
	URL       *string
}

// Repository is the driver capability this core depends on.
//
// Purpose: Abstraction for managing service lifecycle storage.
// Domain: Tenant
type Repository interface {
	Create(ctx context.Context, svc *Service) error
	ReadByID(ctx context.Context, id string, serviceMask *string) (*Service, error)
	List(ctx context.Context, q ListQuery) ([]*Service, error)
	UpdateByID(ctx context.Context, id string, serviceMask *string, u Update) (*Service, error)
	DeleteByID(ctx context.Context, id string, serviceMask *string) (int, error)
}

// Core implements the Service CRUD surface, identical in shape to the User
// core, scoped by an optional service mask.
type Core struct {
	repo Repository
}

// NewCore constructs a Service core over its driver repository.
func NewCore(repo Repository) *Core {
	return &Core{repo: repo}
}

// Create provisions a new service. Only a root-authenticated caller may do
// this; enforcing that belongs to the caller, since the core has no notion
// of "who is calling" beyond the service mask it is handed.
func (c *Core) Create(ctx context.Context, name, url string) (*Service, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, coreerr.BadRequest("name is required", "name")
	}

	svc := &Service{
		ID:        id.New(),
		IsEnabled: true,
		Name:      name,
		URL:       url,
	}
	if err := c.repo.Create(ctx, svc); err != nil {
		return nil, err
	}
	return svc, nil
}

// ReadByID fetches a service, honoring the service mask: a masked caller may
// only ever see its own service.
func (c *Core) ReadByID(ctx context.Context, svcID string, serviceMask *string) (*Service, error) {
	if serviceMask != nil && *serviceMask != svcID {
		return nil, coreerr.NotFound("service not found")
	}
	svc, err := c.repo.ReadByID(ctx, svcID, serviceMask)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, coreerr.NotFound("service not found")
	}
	return svc, nil
}

// List returns a page of services ordered by id; root only in practice,
// since a service-masked caller only ever has one service to see.
func (c *Core) List(ctx context.Context, q ListQuery) ([]*Service, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	return c.repo.List(ctx, q)
}

// UpdateByID applies a partial update under the service mask.
func (c *Core) UpdateByID(ctx context.Context, svcID string, serviceMask *string, u Update) (*Service, error) {
	if serviceMask != nil && *serviceMask != svcID {
		return nil, coreerr.NotFound("service not found")
	}
	if u.Name != nil {
		trimmed := strings.TrimSpace(*u.Name)
		if trimmed == "" {
			return nil, coreerr.BadRequest("name must not be empty", "name")
		}
		u.Name = &trimmed
	}
	svc, err := c.repo.UpdateByID(ctx, svcID, serviceMask, u)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, coreerr.NotFound("service not found")
	}
	return svc, nil
}

// DeleteByID removes a service under the service mask, returning the count
// of rows affected (0 or 1).
func (c *Core) DeleteByID(ctx context.Context, svcID string, serviceMask *string) (int, error) {
	if serviceMask != nil && *serviceMask != svcID {
		return 0, coreerr.NotFound("service not found")
	}
	return c.repo.DeleteByID(ctx, svcID, serviceMask)
}
