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
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/opentrusty-core/audit"
)

// AuditRepository implements audit.Repository.
//
// Purpose: PostgreSQL implementation of the append-mostly audit log,
// including its cursor-paginated, filter-composed listing.
// Domain: Audit (Infrastructure)
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const selectAuditColumns = `
	id, created_at, updated_at, user_agent, remote, forwarded, status_code,
	type_, subject, data, key_id, service_id, user_id, user_key_id
`

func scanAuditRecord(row scanner) (*audit.Record, error) {
	var rec audit.Record
	var forwarded, subject, keyID, serviceID, userID, userKeyID sql.NullString
	var statusCode sql.NullInt64
	var data []byte

	err := row.Scan(
		&rec.ID, &rec.CreatedAt, &rec.UpdatedAt, &rec.UserAgent, &rec.Remote, &forwarded, &statusCode,
		&rec.Type, &subject, &data, &keyID, &serviceID, &userID, &userKeyID,
	)
	if err != nil {
		return nil, err
	}
	if forwarded.Valid {
		rec.Forwarded = &forwarded.String
	}
	if statusCode.Valid {
		v := int(statusCode.Int64)
		rec.StatusCode = &v
	}
	if subject.Valid {
		rec.Subject = &subject.String
	}
	if keyID.Valid {
		rec.KeyID = &keyID.String
	}
	if serviceID.Valid {
		rec.ServiceID = &serviceID.String
	}
	if userID.Valid {
		rec.UserID = &userID.String
	}
	if userKeyID.Valid {
		rec.UserKeyID = &userKeyID.String
	}
	rec.Data = map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			return nil, fmt.Errorf("failed to decode audit data: %w", err)
		}
	}
	return &rec, nil
}

// Create inserts a new audit record. Timestamps are stamped server-side.
func (r *AuditRepository) Create(ctx context.Context, meta audit.Meta, typ string, statusCode *int, subject *string, data map[string]any, keyID, serviceID, userID, userKeyID *string) (*audit.Record, error) {
	if data == nil {
		data = map[string]any{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit data: %w", err)
	}

	now := time.Now()
	rec := &audit.Record{
		CreatedAt:  now,
		UpdatedAt:  now,
		UserAgent:  meta.UserAgent,
		Remote:     meta.Remote,
		Forwarded:  meta.Forwarded,
		StatusCode: statusCode,
		Type:       typ,
		Subject:    subject,
		Data:       data,
		KeyID:      keyID,
		ServiceID:  serviceID,
		UserID:     userID,
		UserKeyID:  userKeyID,
	}

	err = r.db.pool.QueryRow(ctx, `
		INSERT INTO sso_audit (
			id, created_at, updated_at, user_agent, remote, forwarded, status_code,
			type_, subject, data, key_id, service_id, user_id, user_key_id
		) VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`, now, now, meta.UserAgent, meta.Remote, meta.Forwarded, statusCode, typ, subject, payload, keyID, serviceID, userID, userKeyID).Scan(&rec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert audit record: %w", err)
	}
	return rec, nil
}

// Read retrieves a single record under the service mask.
func (r *AuditRepository) Read(ctx context.Context, id string, serviceMask *string) (*audit.Record, error) {
	query := `SELECT ` + selectAuditColumns + ` FROM sso_audit WHERE id = $1`
	args := []interface{}{id}
	if serviceMask != nil {
		query += " AND service_id = $2"
		args = append(args, *serviceMask)
	}

	rec, err := scanAuditRecord(r.db.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get audit record: %w", err)
	}
	return rec, nil
}

// List executes the cursor bounds and filter composition of a RawListQuery.
// CreatedLe orders DESC (most recent first) so LIMIT/OFFSET page backwards
// from the bound; Core.List reverses the page back to ascending order.
// CreatedGe and CreatedLeAndGe order ASC.
func (r *AuditRepository) List(ctx context.Context, q audit.RawListQuery, serviceMask *string) ([]*audit.Record, error) {
	query := `SELECT ` + selectAuditColumns + ` FROM sso_audit WHERE 1=1`
	var args []interface{}
	argIdx := 1

	addArg := func(v interface{}) int {
		args = append(args, v)
		idx := argIdx
		argIdx++
		return idx
	}

	switch q.Mode {
	case audit.ModeCreatedLe:
		if q.Le != nil {
			query += fmt.Sprintf(" AND created_at <= $%d", addArg(*q.Le))
		}
	case audit.ModeCreatedGe:
		if q.Ge != nil {
			query += fmt.Sprintf(" AND created_at >= $%d", addArg(*q.Ge))
		}
	case audit.ModeCreatedLeAndGe:
		if q.Ge != nil {
			query += fmt.Sprintf(" AND created_at >= $%d", addArg(*q.Ge))
		}
		if q.Le != nil {
			query += fmt.Sprintf(" AND created_at <= $%d", addArg(*q.Le))
		}
	}

	if serviceMask != nil {
		query += fmt.Sprintf(" AND service_id = $%d", addArg(*serviceMask))
	}
	if len(q.Filter.IDs) > 0 {
		query += fmt.Sprintf(" AND id = ANY($%d)", addArg(q.Filter.IDs))
	}
	if len(q.Filter.Types) > 0 {
		query += fmt.Sprintf(" AND type_ = ANY($%d)", addArg(q.Filter.Types))
	}
	if len(q.Filter.Subjects) > 0 {
		query += fmt.Sprintf(" AND subject = ANY($%d)", addArg(q.Filter.Subjects))
	}
	if len(q.Filter.ServiceIDs) > 0 {
		query += fmt.Sprintf(" AND service_id = ANY($%d)", addArg(q.Filter.ServiceIDs))
	}
	if len(q.Filter.UserIDs) > 0 {
		query += fmt.Sprintf(" AND user_id = ANY($%d)", addArg(q.Filter.UserIDs))
	}

	if q.Mode == audit.ModeCreatedLe {
		query += " ORDER BY created_at DESC, id DESC"
	} else {
		query += " ORDER BY created_at ASC, id ASC"
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d", addArg(limit))
	if q.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", addArg(q.Offset))
	}

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var records []*audit.Record
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Update applies the only mutable fields a terminal audit write may touch.
func (r *AuditRepository) Update(ctx context.Context, id string, statusCode *int, subject *string, data map[string]any, serviceMask *string) (*audit.Record, error) {
	query := `UPDATE sso_audit SET updated_at = NOW()`
	args := []interface{}{}
	argIdx := 1

	if statusCode != nil {
		query += fmt.Sprintf(", status_code = $%d", argIdx)
		args = append(args, *statusCode)
		argIdx++
	}
	if subject != nil {
		query += fmt.Sprintf(", subject = $%d", argIdx)
		args = append(args, *subject)
		argIdx++
	}
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode audit data: %w", err)
		}
		query += fmt.Sprintf(", data = $%d", argIdx)
		args = append(args, payload)
		argIdx++
	}

	query += fmt.Sprintf(" WHERE id = $%d", argIdx)
	args = append(args, id)
	argIdx++
	if serviceMask != nil {
		query += fmt.Sprintf(" AND service_id = $%d", argIdx)
		args = append(args, *serviceMask)
	}

	result, err := r.db.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update audit record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, nil
	}
	return r.Read(ctx, id, nil)
}

// ReadMetrics aggregates (type_, status_code) counts since from, the
// source the metrics collector scrapes at request time.
func (r *AuditRepository) ReadMetrics(ctx context.Context, from time.Time, serviceMask *string) ([]audit.MetricRow, error) {
	query := `
		SELECT type_, status_code, COUNT(*)
		FROM sso_audit
		WHERE created_at >= $1
	`
	args := []interface{}{from}
	if serviceMask != nil {
		query += " AND service_id = $2"
		args = append(args, *serviceMask)
	}
	query += " GROUP BY type_, status_code"

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit metrics: %w", err)
	}
	defer rows.Close()

	var out []audit.MetricRow
	for rows.Next() {
		var row audit.MetricRow
		var statusCode sql.NullInt64
		if err := rows.Scan(&row.Type, &statusCode, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan audit metric row: %w", err)
		}
		if statusCode.Valid {
			v := int(statusCode.Int64)
			row.StatusCode = &v
		}
		out = append(out, row)
	}
	return out, nil
}

// Delete removes audit records older than the retention cutoff.
func (r *AuditRepository) Delete(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM sso_audit WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit records: %w", err)
	}
	return int(result.RowsAffected()), nil
}
