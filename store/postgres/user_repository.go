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
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/opentrusty-core/coreerr"
	"github.com/opentrusty/opentrusty-core/user"
)

// UserRepository implements user.Repository.
//
// Purpose: PostgreSQL implementation of service-scoped user persistence.
// Domain: Identity (Infrastructure)
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create persists a new user.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	now := time.Now()
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO sso_user (
			id, service_id, is_enabled, name, email, password_hash, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.ServiceID, u.IsEnabled, u.Name, u.Email, u.PasswordHash, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

func scanUser(row scanner) (*user.User, error) {
	var u user.User
	var passwordHash sql.NullString
	var lockedUntil sql.NullTime

	err := row.Scan(
		&u.ID, &u.ServiceID, &u.IsEnabled, &u.Name, &u.Email, &passwordHash,
		&u.FailedLoginAttempts, &lockedUntil, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if passwordHash.Valid {
		u.PasswordHash = &passwordHash.String
	}
	if lockedUntil.Valid {
		u.LockedUntil = &lockedUntil.Time
	}
	return &u, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectUserColumns = `
	id, service_id, is_enabled, name, email, password_hash,
	failed_login_attempts, locked_until, created_at, updated_at
`

// ReadByID retrieves a user by id under the service mask.
func (r *UserRepository) ReadByID(ctx context.Context, id string, serviceMask *string) (*user.User, error) {
	query := `SELECT ` + selectUserColumns + ` FROM sso_user WHERE id = $1 AND deleted_at IS NULL`
	args := []interface{}{id}
	if serviceMask != nil {
		query += " AND service_id = $2"
		args = append(args, *serviceMask)
	}

	u, err := scanUser(r.db.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ReadByEmail retrieves a user by (service_id, email).
func (r *UserRepository) ReadByEmail(ctx context.Context, serviceID, email string) (*user.User, error) {
	query := `SELECT ` + selectUserColumns + ` FROM sso_user WHERE service_id = $1 AND email = $2 AND deleted_at IS NULL`
	u, err := scanUser(r.db.pool.QueryRow(ctx, query, serviceID, email))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

// List returns a page of users within serviceID, ordered by id.
func (r *UserRepository) List(ctx context.Context, serviceID string, q user.ListQuery) ([]*user.User, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + selectUserColumns + ` FROM sso_user WHERE service_id = $1 AND deleted_at IS NULL`
	args := []interface{}{serviceID}
	argIdx := 2
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
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, nil
}

// UpdateByID applies a partial update under the service mask.
func (r *UserRepository) UpdateByID(ctx context.Context, id string, serviceMask *string, u user.Update) (*user.User, error) {
	query := `
		UPDATE sso_user SET
			is_enabled = COALESCE($2, is_enabled),
			name = COALESCE($3, name),
			email = COALESCE($4, email),
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	args := []interface{}{id, u.IsEnabled, u.Name, u.Email}
	if serviceMask != nil {
		query += " AND service_id = $5"
		args = append(args, *serviceMask)
	}

	result, err := r.db.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, nil
	}
	return r.ReadByID(ctx, id, nil)
}

// DeleteByID soft-deletes a user under the service mask.
func (r *UserRepository) DeleteByID(ctx context.Context, id string, serviceMask *string) (int, error) {
	query := `UPDATE sso_user SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	args := []interface{}{id, time.Now()}
	if serviceMask != nil {
		query += " AND service_id = $3"
		args = append(args, *serviceMask)
	}
	result, err := r.db.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// UpdatePasswordHash stores a freshly hashed password.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE sso_user SET password_hash = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return coreerr.NotFound("user not found")
	}
	return nil
}

// UpdateLockout updates the failed-attempt counter and lockout expiry.
func (r *UserRepository) UpdateLockout(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE sso_user SET failed_login_attempts = $2, locked_until = $3, updated_at = NOW()
		WHERE id = $1
	`, id, failedAttempts, lockedUntil)
	if err != nil {
		return fmt.Errorf("failed to update user lockout status: %w", err)
	}
	return nil
}
