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

package audit

import (
	"context"
	"log/slog"
	"time"
)

// Repository is the driver capability the builder and core depend on.
//
// Purpose: Persistence and retrieval of audit records.
// Domain: Audit
type Repository interface {
	Create(ctx context.Context, meta Meta, typ string, statusCode *int, subject *string, data map[string]any, keyID, serviceID, userID, userKeyID *string) (*Record, error)
	Read(ctx context.Context, id string, serviceMask *string) (*Record, error)
	List(ctx context.Context, q RawListQuery, serviceMask *string) ([]*Record, error)
	Update(ctx context.Context, id string, statusCode *int, subject *string, data map[string]any, serviceMask *string) (*Record, error)
	ReadMetrics(ctx context.Context, from time.Time, serviceMask *string) ([]MetricRow, error)
	Delete(ctx context.Context, olderThan time.Time) (int, error)
}

// Builder carries per-request audit metadata, accumulates the identifiers
// discovered during authentication, and emits records.
//
// Purpose: Per-request mutable buffer consumed when an audit record is
// emitted.
// Domain: Audit
type Builder struct {
	meta      Meta
	keyID     *string
	serviceID *string
	userID    *string
	userKeyID *string
}

// NewBuilder constructs a Builder from the metadata derived once per
// inbound request.
func NewBuilder(meta Meta) *Builder {
	return &Builder{meta: meta}
}

// SetKey records the id of the key resolved during authentication.
func (b *Builder) SetKey(keyID *string) *Builder {
	b.keyID = keyID
	return b
}

// SetService records the id of the service resolved during authentication.
func (b *Builder) SetService(serviceID *string) *Builder {
	b.serviceID = serviceID
	return b
}

// SetUser records the id of the user resolved during authentication.
func (b *Builder) SetUser(userID *string) *Builder {
	b.userID = userID
	return b
}

// SetUserKey records the id of the user-typed key used for the request,
// distinct from SetKey when a service-authenticated caller acts on behalf
// of a specific user key.
func (b *Builder) SetUserKey(userKeyID *string) *Builder {
	b.userKeyID = userKeyID
	return b
}

// CreateInternal is the immediate, small, synchronous insert used for
// authentication failures. Failures of the insert are logged but never
// surfaced to the caller of the operation that triggered the event — the
// audit event itself is the record of record.
func (b *Builder) CreateInternal(ctx context.Context, repo Repository, typ, message string) {
	data := map[string]any{"message": message}
	statusCode := 403
	rec, err := repo.Create(context.WithoutCancel(ctx), b.meta, typ, &statusCode, nil, data, b.keyID, b.serviceID, b.userID, b.userKeyID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to persist audit event", "error", err, "type", typ)
		return
	}
	LogRecord(ctx, *rec)
}

// Create emits a record at request exit, used for successful operations and
// for mutations that need a subject and structured data payload.
func (b *Builder) Create(ctx context.Context, repo Repository, typ string, statusCode int, subject *string, data map[string]any) (*Record, error) {
	rec, err := repo.Create(ctx, b.meta, typ, &statusCode, subject, data, b.keyID, b.serviceID, b.userID, b.userKeyID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to persist audit event", "error", err, "type", typ)
		return nil, err
	}
	LogRecord(ctx, *rec)
	return rec, nil
}
