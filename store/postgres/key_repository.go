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
	"github.com/opentrusty/opentrusty-core/key"
)

// KeyRepository implements key.Repository.
//
// Purpose: PostgreSQL implementation of the three key variants.
// Domain: Identity (Infrastructure)
type KeyRepository struct {
	db *DB
}

// NewKeyRepository creates a new key repository.
func NewKeyRepository(db *DB) *KeyRepository {
	return &KeyRepository{db: db}
}

const selectKeyColumns = `
	id, is_enabled, is_revoked, name, value, service_id, user_id, created_at, updated_at
`

func scanKey(row scanner) (*key.Key, error) {
	var k key.Key
	var serviceID, userID sql.NullString

	err := row.Scan(&k.ID, &k.IsEnabled, &k.IsRevoked, &k.Name, &k.Value, &serviceID, &userID, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if serviceID.Valid {
		k.ServiceID = &serviceID.String
	}
	if userID.Valid {
		k.UserID = &userID.String
	}
	return &k, nil
}

// Create persists a new key of whichever variant (serviceID, userID) imply.
func (r *KeyRepository) Create(ctx context.Context, isEnabled, isRevoked bool, name, value string, serviceID, userID *string) (*key.Key, error) {
	now := time.Now()
	k := &key.Key{
		IsEnabled: isEnabled,
		IsRevoked: isRevoked,
		Name:      name,
		Value:     value,
		ServiceID: serviceID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO sso_key (id, is_enabled, is_revoked, name, value, service_id, user_id, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, isEnabled, isRevoked, name, value, serviceID, userID, now, now).Scan(&k.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert key: %w", err)
	}
	return k, nil
}

// ReadByID retrieves a key by id, with no shape or mask filtering; callers
// apply the service mask themselves (see key.Core.ReadByID).
func (r *KeyRepository) ReadByID(ctx context.Context, id string) (*key.Key, error) {
	query := `SELECT ` + selectKeyColumns + ` FROM sso_key WHERE id = $1`
	k, err := scanKey(r.db.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return k, nil
}

// ReadByRootValue matches an enabled, non-revoked, root-typed key (no
// service_id, no user_id). A revoked or disabled key is treated as "not
// found" here — existence is never disclosed.
func (r *KeyRepository) ReadByRootValue(ctx context.Context, value string) (*key.Key, error) {
	query := `SELECT ` + selectKeyColumns + ` FROM sso_key
		WHERE value = $1 AND is_enabled = TRUE AND is_revoked = FALSE
		AND service_id IS NULL AND user_id IS NULL`
	return r.readByValue(ctx, query, value)
}

// ReadByServiceValue matches an enabled, non-revoked, service-typed key.
func (r *KeyRepository) ReadByServiceValue(ctx context.Context, value string) (*key.Key, error) {
	query := `SELECT ` + selectKeyColumns + ` FROM sso_key
		WHERE value = $1 AND is_enabled = TRUE AND is_revoked = FALSE
		AND service_id IS NOT NULL AND user_id IS NULL`
	return r.readByValue(ctx, query, value)
}

// ReadByUserValue matches an enabled, non-revoked, user-typed key scoped to
// serviceID.
func (r *KeyRepository) ReadByUserValue(ctx context.Context, serviceID, value string) (*key.Key, error) {
	query := `SELECT ` + selectKeyColumns + ` FROM sso_key
		WHERE value = $1 AND service_id = $2 AND is_enabled = TRUE AND is_revoked = FALSE
		AND user_id IS NOT NULL`
	k, err := scanKey(r.db.pool.QueryRow(ctx, query, value, serviceID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get key by user value: %w", err)
	}
	return k, nil
}

func (r *KeyRepository) readByValue(ctx context.Context, query, value string) (*key.Key, error) {
	k, err := scanKey(r.db.pool.QueryRow(ctx, query, value))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get key by value: %w", err)
	}
	return k, nil
}

// ReadByUserID retrieves the user-typed key for (serviceID, userID), if any.
func (r *KeyRepository) ReadByUserID(ctx context.Context, serviceID, userID string) (*key.Key, error) {
	query := `SELECT ` + selectKeyColumns + ` FROM sso_key
		WHERE service_id = $1 AND user_id = $2`
	k, err := scanKey(r.db.pool.QueryRow(ctx, query, serviceID, userID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get key by user id: %w", err)
	}
	return k, nil
}

// ListWhereIDGt returns a page of keys with id > cursor, ascending, under
// the service mask.
func (r *KeyRepository) ListWhereIDGt(ctx context.Context, cursor string, limit int, serviceMask *string) ([]*key.Key, error) {
	query := `SELECT ` + selectKeyColumns + ` FROM sso_key WHERE id > $1`
	args := []interface{}{cursor}
	argIdx := 2
	if serviceMask != nil {
		query += fmt.Sprintf(" AND service_id = $%d", argIdx)
		args = append(args, *serviceMask)
		argIdx++
	}
	query += " ORDER BY id ASC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)
	return r.listWhere(ctx, query, args)
}

// ListWhereIDLt returns a page of keys with id < cursor, descending, under
// the service mask.
func (r *KeyRepository) ListWhereIDLt(ctx context.Context, cursor string, limit int, serviceMask *string) ([]*key.Key, error) {
	query := `SELECT ` + selectKeyColumns + ` FROM sso_key WHERE id < $1`
	args := []interface{}{cursor}
	argIdx := 2
	if serviceMask != nil {
		query += fmt.Sprintf(" AND service_id = $%d", argIdx)
		args = append(args, *serviceMask)
		argIdx++
	}
	query += " ORDER BY id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)
	return r.listWhere(ctx, query, args)
}

func (r *KeyRepository) listWhere(ctx context.Context, query string, args []interface{}) ([]*key.Key, error) {
	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []*key.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// UpdateByID applies a partial update under the service mask.
func (r *KeyRepository) UpdateByID(ctx context.Context, id string, serviceMask *string, u key.Update) (*key.Key, error) {
	query := `
		UPDATE sso_key SET
			is_enabled = COALESCE($2, is_enabled),
			is_revoked = COALESCE($3, is_revoked),
			name = COALESCE($4, name),
			updated_at = NOW()
		WHERE id = $1
	`
	args := []interface{}{id, u.IsEnabled, u.IsRevoked, u.Name}
	if serviceMask != nil {
		query += " AND service_id = $5"
		args = append(args, *serviceMask)
	}

	result, err := r.db.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, nil
	}
	return r.ReadByID(ctx, id)
}

// UpdateManyByUserID applies a partial update to every key belonging to a
// user, returning the count affected.
func (r *KeyRepository) UpdateManyByUserID(ctx context.Context, serviceID, userID string, u key.Update) (int, error) {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE sso_key SET
			is_enabled = COALESCE($3, is_enabled),
			is_revoked = COALESCE($4, is_revoked),
			name = COALESCE($5, name),
			updated_at = NOW()
		WHERE service_id = $1 AND user_id = $2
	`, serviceID, userID, u.IsEnabled, u.IsRevoked, u.Name)
	if err != nil {
		return 0, fmt.Errorf("failed to update keys by user id: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// DeleteByID removes a key under the service mask.
func (r *KeyRepository) DeleteByID(ctx context.Context, id string, serviceMask *string) (int, error) {
	query := `DELETE FROM sso_key WHERE id = $1`
	args := []interface{}{id}
	if serviceMask != nil {
		query += " AND service_id = $2"
		args = append(args, *serviceMask)
	}
	result, err := r.db.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete key: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// DeleteRoot removes every root key; used by the bootstrap scenario before
// provisioning a fresh one.
func (r *KeyRepository) DeleteRoot(ctx context.Context) (int, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM sso_key WHERE service_id IS NULL AND user_id IS NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete root keys: %w", err)
	}
	return int(result.RowsAffected()), nil
}
