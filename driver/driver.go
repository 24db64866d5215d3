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

// Package driver names the full capability set a storage backend must
// satisfy: the union of the Key, Service, User, Audit and CSRF
// repositories. Nothing else in this module depends on a concrete storage
// technology; everything programs against Driver.
package driver

import (
	"context"
	"time"

	"github.com/opentrusty/opentrusty-core/audit"
	"github.com/opentrusty/opentrusty-core/key"
	"github.com/opentrusty/opentrusty-core/service"
	"github.com/opentrusty/opentrusty-core/user"
)

// CSRFRecord is a single-use OAuth2 authorize/callback binding.
type CSRFRecord struct {
	State     string
	ServiceID string
	Provider  string
	ExpiresAt time.Time
}

// CSRFRepository is the driver capability the OAuth2 broker depends on.
//
// Purpose: Single-use state storage binding an authorize request to its
// callback.
// Domain: OAuth2
type CSRFRepository interface {
	Create(ctx context.Context, rec CSRFRecord) error
	// Pop atomically reads and deletes the record for state, returning nil
	// if absent or already consumed.
	Pop(ctx context.Context, state string) (*CSRFRecord, error)
	// DeleteExpired removes records whose ExpiresAt has passed; a
	// maintenance operation, not on the authorize/callback hot path.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Driver is the full capability set described in the driver interface
// component: every core operation flows through one of these sub-
// repositories. Accessor methods, not embedding, because the underlying
// repositories share method names (Create, ReadByID, ...) with incompatible
// signatures.
type Driver interface {
	Keys() key.Repository
	Services() service.Repository
	Users() user.Repository
	Audits() audit.Repository
	CSRF() CSRFRepository
}
