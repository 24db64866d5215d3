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
	"github.com/opentrusty/opentrusty-core/driver"
)

// CSRFRepository implements driver.CSRFRepository.
//
// Purpose: PostgreSQL implementation of single-use OAuth2 state storage.
// Domain: OAuth2 (Infrastructure)
type CSRFRepository struct {
	db *DB
}

// NewCSRFRepository creates a new CSRF repository.
func NewCSRFRepository(db *DB) *CSRFRepository {
	return &CSRFRepository{db: db}
}

// Create persists a new state record.
func (r *CSRFRepository) Create(ctx context.Context, rec driver.CSRFRecord) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO sso_csrf (key, service_id, provider, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.State, rec.ServiceID, rec.Provider, time.Now(), rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert csrf record: %w", err)
	}
	return nil
}

// Pop atomically reads and deletes the record for state so a callback can
// never be replayed against the same state twice.
func (r *CSRFRepository) Pop(ctx context.Context, state string) (*driver.CSRFRecord, error) {
	var rec driver.CSRFRecord
	err := r.db.pool.QueryRow(ctx, `
		DELETE FROM sso_csrf WHERE key = $1
		RETURNING key, service_id, provider, expires_at
	`, state).Scan(&rec.State, &rec.ServiceID, &rec.Provider, &rec.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop csrf record: %w", err)
	}
	return &rec, nil
}

// DeleteExpired removes state records that were never consumed before
// expiry, a periodic maintenance sweep rather than request-path code.
func (r *CSRFRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM sso_csrf WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired csrf records: %w", err)
	}
	return int(result.RowsAffected()), nil
}
