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

// Package audit is the append-mostly event log produced as a side effect of
// authentication and every mutating operation.
package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Dotted event type names. Authentication failures and successes share an
// "authenticate.*" namespace; mutating operations are "<entity>.<verb>".
const (
	TypeAuthenticateError   = "authenticate.error"
	TypeAuthenticateSuccess = "authenticate.success"
	TypeUserPasswordUpdate  = "user.password.update"
	TypeUserCreate          = "user.create"
	TypeUserUpdate          = "user.update"
	TypeUserDelete          = "user.delete"
	TypeServiceCreate       = "service.create"
	TypeServiceUpdate       = "service.update"
	TypeServiceDelete       = "service.delete"
	TypeKeyCreate           = "key.create"
	TypeKeyDelete           = "key.delete"
	TypeOAuth2Login         = "oauth2.login"
)

// Messages written as the "message" data field on authentication failures;
// these are what discriminate the non-disclosed Forbidden outcome in audit,
// per the authentication state machine.
const (
	MessageKeyUndefined    = "KeyUndefined"
	MessageKeyNotFound     = "KeyNotFound"
	MessageKeyInvalid      = "KeyInvalid"
	MessageServiceNotFound = "ServiceNotFound"
)

// Record is an append-mostly auditable event.
//
// Purpose: Canonical representation of a security or system event.
// Domain: Audit
// Invariants: Once created, only StatusCode, Subject and Data may change.
type Record struct {
	ID         string         `json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	UserAgent  string         `json:"user_agent"`
	Remote     string         `json:"remote"`
	Forwarded  *string        `json:"forwarded,omitempty"`
	StatusCode *int           `json:"status_code,omitempty"`
	Type       string         `json:"type_"`
	Subject    *string        `json:"subject,omitempty"`
	Data       map[string]any `json:"data"`
	KeyID      *string        `json:"key_id,omitempty"`
	ServiceID  *string        `json:"service_id,omitempty"`
	UserID     *string        `json:"user_id,omitempty"`
	UserKeyID  *string        `json:"user_key_id,omitempty"`
}

// Meta is the per-request audit metadata derived once from the inbound
// request, before authentication is attempted.
type Meta struct {
	UserAgent string
	Remote    string
	Forwarded *string
}

// isSecret checks if a key likely contains a secret, using case-insensitive
// substring matching against common sensitive keywords.
func isSecret(key string) bool {
	k := strings.ToLower(key)
	secrets := []string{
		"password", "secret", "token", "key", "authorization",
		"hash", "credential", "private", "api_key",
	}
	for _, s := range secrets {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// logAttrs renders a Record as slog attributes, redacting any Data key that
// looks secret-bearing. Shared by every sink so redaction can never be
// skipped by a caller that forgot to pre-redact.
func logAttrs(r Record) []any {
	attrs := []any{
		slog.String("type", r.Type),
		slog.Time("created_at", r.CreatedAt),
		slog.String("remote", r.Remote),
	}
	if r.ServiceID != nil {
		attrs = append(attrs, slog.String("service_id", *r.ServiceID))
	}
	if r.UserID != nil {
		attrs = append(attrs, slog.String("user_id", *r.UserID))
	}
	if r.KeyID != nil {
		attrs = append(attrs, slog.String("key_id", *r.KeyID))
	}
	if r.Subject != nil {
		attrs = append(attrs, slog.String("subject", *r.Subject))
	}
	if r.StatusCode != nil {
		attrs = append(attrs, slog.Int("status_code", *r.StatusCode))
	}
	if len(r.Data) > 0 {
		group := make([]any, 0, len(r.Data)*2)
		for k, v := range r.Data {
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("data", group...))
	}
	return attrs
}

// logLevel picks WARN for the outcomes that represent a rejected request,
// INFO otherwise.
func logLevel(r Record) slog.Level {
	if r.StatusCode != nil && *r.StatusCode >= 400 {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// LogRecord mirrors a Record to the structured logger. The builder calls it
// after each successful repository write; it is exported so other callers
// can emit the same log line shape.
func LogRecord(ctx context.Context, r Record) {
	slog.Log(ctx, logLevel(r), "audit_event", append(logAttrs(r), slog.String("component", "audit"))...)
}
