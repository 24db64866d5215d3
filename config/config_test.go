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

package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"DATABASE_URL", "SERVER_BIND", "AUDIT_RETENTION", "METRICS_PREFIX", "LOG_LEVEL",
		"OAUTH2_GITHUB_CLIENT_ID", "OAUTH2_GITHUB_CLIENT_SECRET", "OAUTH2_GITHUB_REDIRECT_URI",
		"OAUTH2_MICROSOFT_CLIENT_ID", "OAUTH2_MICROSOFT_CLIENT_SECRET", "OAUTH2_MICROSOFT_REDIRECT_URI",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestFromEnvRequiresDatabaseURL(t *testing.T) {
	clearEnv(t)
	if _, err := FromEnv(); err == nil {
		t.Fatal("FromEnv() with no DATABASE_URL should error")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/test")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.ServerBind != defaultServerBind {
		t.Errorf("ServerBind = %q, want %q", cfg.ServerBind, defaultServerBind)
	}
	if cfg.AuditRetention != defaultAuditRetention {
		t.Errorf("AuditRetention = %v, want %v", cfg.AuditRetention, defaultAuditRetention)
	}
	if cfg.MetricsPrefix != defaultMetricsPrefix {
		t.Errorf("MetricsPrefix = %q, want %q", cfg.MetricsPrefix, defaultMetricsPrefix)
	}
	if len(cfg.OAuth2Providers) != 0 {
		t.Errorf("OAuth2Providers = %v, want empty", cfg.OAuth2Providers)
	}
}

func TestFromEnvParsesAuditRetention(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("AUDIT_RETENTION", "48h")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.AuditRetention != 48*time.Hour {
		t.Errorf("AuditRetention = %v, want 48h", cfg.AuditRetention)
	}
}

func TestFromEnvRejectsInvalidLogLevel(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("LOG_LEVEL", "verbose")

	if _, err := FromEnv(); err == nil {
		t.Fatal("FromEnv() with an invalid LOG_LEVEL should error")
	}
}

func TestFromEnvWiresCompleteOAuth2Provider(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("OAUTH2_GITHUB_CLIENT_ID", "abc")
	t.Setenv("OAUTH2_GITHUB_CLIENT_SECRET", "xyz")
	t.Setenv("OAUTH2_GITHUB_REDIRECT_URI", "https://example.com/callback")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	gh, ok := cfg.OAuth2Providers["github"]
	if !ok {
		t.Fatal("expected github provider to be wired")
	}
	if gh.ClientID != "abc" || gh.ClientSecret != "xyz" || gh.RedirectURI != "https://example.com/callback" {
		t.Errorf("unexpected provider config: %+v", gh)
	}
}

func TestFromEnvRejectsIncompleteOAuth2Provider(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("OAUTH2_GITHUB_CLIENT_ID", "abc")

	if _, err := FromEnv(); err == nil {
		t.Fatal("FromEnv() with a partially configured provider should error")
	}
}
