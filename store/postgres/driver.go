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
	"github.com/opentrusty/opentrusty-core/audit"
	"github.com/opentrusty/opentrusty-core/driver"
	"github.com/opentrusty/opentrusty-core/key"
	"github.com/opentrusty/opentrusty-core/service"
	"github.com/opentrusty/opentrusty-core/user"
)

// Driver wires the five PostgreSQL repositories into driver.Driver.
//
// Purpose: Concrete storage backend for every core package.
// Domain: Platform (Infrastructure)
type Driver struct {
	db       *DB
	keys     *KeyRepository
	services *ServiceRepository
	users    *UserRepository
	audits   *AuditRepository
	csrf     *CSRFRepository
}

// NewDriver constructs the PostgreSQL driver over an established connection.
func NewDriver(db *DB) *Driver {
	return &Driver{
		db:       db,
		keys:     NewKeyRepository(db),
		services: NewServiceRepository(db),
		users:    NewUserRepository(db),
		audits:   NewAuditRepository(db),
		csrf:     NewCSRFRepository(db),
	}
}

// Keys returns the key repository.
func (d *Driver) Keys() key.Repository { return d.keys }

// Services returns the service repository.
func (d *Driver) Services() service.Repository { return d.services }

// Users returns the user repository.
func (d *Driver) Users() user.Repository { return d.users }

// Audits returns the audit repository.
func (d *Driver) Audits() audit.Repository { return d.audits }

// CSRF returns the CSRF state repository.
func (d *Driver) CSRF() driver.CSRFRepository { return d.csrf }

// DB exposes the underlying connection handle for migrations and shutdown.
func (d *Driver) DB() *DB { return d.db }

var _ driver.Driver = (*Driver)(nil)
