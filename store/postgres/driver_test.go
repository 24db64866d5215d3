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
	"testing"

	"github.com/opentrusty/opentrusty-core/service"
)

func TestDriverWiresAllRepositories(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	d := NewDriver(db)

	if d.Keys() == nil || d.Services() == nil || d.Users() == nil || d.Audits() == nil || d.CSRF() == nil {
		t.Fatal("NewDriver() left at least one sub-repository nil")
	}
	if d.DB() != db {
		t.Error("DB() should return the exact connection handle passed to NewDriver")
	}

	svcs, err := d.Services().List(context.Background(), service.ListQuery{Limit: 10})
	if err != nil {
		t.Fatalf("Services().List() error = %v", err)
	}
	if len(svcs) != 0 {
		t.Errorf("expected an empty database, got %d services", len(svcs))
	}
}
