// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: MIT

package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
)

// SetupTestDB creates a connection to the test database and runs migrations.
func SetupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("TEST_DB_PORT")
	if port == "" {
		port = "5434" // Default port in docker-compose.test.yml
	}

	cfg := Config{
		Host:         host,
		Port:         port,
		User:         "opentrusty",
		Password:     "opentrusty_test_password",
		Database:     "opentrusty_test",
		SSLMode:      "disable",
		MaxOpenConns: 10,
		MaxIdleConns: 10,
	}

	ctx := context.Background()
	db, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	tables := []string{"sso_csrf", "sso_audit", "sso_key", "sso_user", "sso_service"}
	for _, table := range tables {
		// Errors are ignored so a schema that hasn't been created yet does
		// not fail setup.
		_, _ = db.pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
	}

	if err := db.Migrate(ctx, InitialSchema); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	cleanup := func() {
		for _, table := range tables {
			_, _ = db.pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		}
		db.Close()
	}

	return db, cleanup
}
