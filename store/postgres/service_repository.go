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

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/opentrusty-core/service"
)

// ServiceRepository implements service.Repository.
//
// Purpose: PostgreSQL implementation of tenant persistence.
// Domain: Tenant (Infrastructure)
type ServiceRepository struct {
	db *DB
}

// NewServiceRepository creates a new service repository.
func NewServiceRepository(db *DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

// Create persists a new service.
func (r *ServiceRepository) Create(ctx context.Context, svc *service.Service) error {
	now := time.Now()
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO sso_service (id, is_enabled, name, url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, svc.ID, svc.IsEnabled, svc.Name, svc.URL, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert service: %w", err)
	}
	svc.CreatedAt = now
	svc.UpdatedAt = now
	return nil
}

// ReadByID retrieves a service by id, honoring the service mask.
func (r *ServiceRepository) ReadByID(ctx context.Context, id string, serviceMask *string) (*service.Service, error) {
	if serviceMask != nil && *serviceMask != id {
		return nil, nil
	}

	var svc service.Service
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, is_enabled, name, url, created_at, updated_at
		FROM sso_service
		WHERE id = $1 AND deleted_at IS NULL
	`, id).Scan(&svc.ID, &svc.IsEnabled, &svc.Name, &svc.URL, &svc.CreatedAt, &svc.UpdatedAt)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return &svc, nil
}

// List returns a page of services ordered by id.
func (r *ServiceRepository) List(ctx context.Context, q service.ListQuery) ([]*service.Service, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, is_enabled, name, url, created_at, updated_at
		FROM sso_service
		WHERE deleted_at IS NULL
	`
	args := []interface{}{}
	argIdx := 1
	if q.GT != "" {
		query += fmt.Sprintf(" AND id > $%d", argIdx)
		args = append(args, q.GT)
		argIdx++
	}
	if q.LT != "" {
		query += fmt.Sprintf(" AND id < $%d", argIdx)
		args = append(args, q.LT)
		argIdx++
	}
	if q.LT != "" {
		query += " ORDER BY id DESC"
	} else {
		query += " ORDER BY id ASC"
	}
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var services []*service.Service
	for rows.Next() {
		var svc service.Service
		if err := rows.Scan(&svc.ID, &svc.IsEnabled, &svc.Name, &svc.URL, &svc.CreatedAt, &svc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, &svc)
	}
	return services, nil
}

// UpdateByID applies a partial update under the service mask.
func (r *ServiceRepository) UpdateByID(ctx context.Context, id string, serviceMask *string, u service.Update) (*service.Service, error) {
	if serviceMask != nil && *serviceMask != id {
		return nil, nil
	}

	result, err := r.db.pool.Exec(ctx, `
		UPDATE sso_service SET
			is_enabled = COALESCE($2, is_enabled),
			name = COALESCE($3, name),
			url = COALESCE($4, url),
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, u.IsEnabled, u.Name, u.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to update service: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, nil
	}
	return r.ReadByID(ctx, id, nil)
}

// DeleteByID soft-deletes a service under the service mask.
func (r *ServiceRepository) DeleteByID(ctx context.Context, id string, serviceMask *string) (int, error) {
	if serviceMask != nil && *serviceMask != id {
		return 0, nil
	}
	result, err := r.db.pool.Exec(ctx, `
		UPDATE sso_service SET deleted_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete service: %w", err)
	}
	return int(result.RowsAffected()), nil
}
