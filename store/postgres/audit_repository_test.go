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
	"time"

	"github.com/opentrusty/opentrusty-core/audit"
	"github.com/opentrusty/opentrusty-core/id"
)

func TestAuditRepository(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewAuditRepository(db)

	serviceID := id.New()
	status200 := 200

	t.Run("Create and Read", func(t *testing.T) {
		rec, err := repo.Create(ctx, audit.Meta{UserAgent: "test-agent", Remote: "127.0.0.1"},
			audit.TypeAuthenticateSuccess, &status200, nil, map[string]any{"ok": true}, nil, &serviceID, nil, nil)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := repo.Read(ctx, rec.ID, &serviceID)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if got == nil || got.Data["ok"] != true {
			t.Fatalf("Read() = %+v, want data.ok = true", got)
		}
	})

	t.Run("List filters by type and service id", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			if _, err := repo.Create(ctx, audit.Meta{}, audit.TypeAuthenticateError, nil, nil, nil, nil, &serviceID, nil, nil); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
		}

		now := time.Now().Add(time.Minute)
		records, err := repo.List(ctx, audit.RawListQuery{
			Mode:   audit.ModeCreatedLe,
			Le:     &now,
			Limit:  10,
			Filter: audit.Filter{Types: []string{audit.TypeAuthenticateError}},
		}, &serviceID)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("List() returned %d records, want 3", len(records))
		}
	})

	t.Run("ReadMetrics aggregates by type and status", func(t *testing.T) {
		from := time.Now().Add(-time.Hour)
		rows, err := repo.ReadMetrics(ctx, from, &serviceID)
		if err != nil {
			t.Fatalf("ReadMetrics() error = %v", err)
		}
		if len(rows) == 0 {
			t.Fatal("expected at least one metric row")
		}
	})

	t.Run("Delete removes records older than the cutoff", func(t *testing.T) {
		n, err := repo.Delete(ctx, time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if n == 0 {
			t.Error("expected at least one record to be deleted")
		}
	})
}
