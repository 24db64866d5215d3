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

// Package config assembles the service's runtime configuration from
// environment variables, mirroring the structured shape of
// store/postgres.Config but spanning every ambient concern the service
// needs before it can accept a request.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// OAuth2Provider carries the three environment-supplied values an OAuth2
// provider needs to be wired into the broker.
type OAuth2Provider struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Config is the fully resolved runtime configuration.
//
// Purpose: Single typed source of truth for every environment-supplied
// setting, validated once at startup.
// Domain: Platform
type Config struct {
	DatabaseURL     string
	ServerBind      string
	AuditRetention  time.Duration
	MetricsPrefix   string
	LogLevel        string
	OAuth2Providers map[string]OAuth2Provider
}

const (
	defaultServerBind     = ":8080"
	defaultAuditRetention = 90 * 24 * time.Hour
	defaultMetricsPrefix  = "opentrusty"
	defaultLogLevel       = "info"
)

// knownProviders lists the provider names FromEnv looks for
// OAUTH2_<PROVIDER>_* triples under. A provider absent from the
// environment is simply omitted from OAuth2Providers.
var knownProviders = []string{"github", "microsoft"}

// FromEnv loads and validates configuration from the process environment.
//
// Errors: returns a descriptive error for any required value that is
// missing or malformed; never panics.
func FromEnv() (Config, error) {
	cfg := Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		ServerBind:      getEnvDefault("SERVER_BIND", defaultServerBind),
		AuditRetention:  defaultAuditRetention,
		MetricsPrefix:   getEnvDefault("METRICS_PREFIX", defaultMetricsPrefix),
		LogLevel:        getEnvDefault("LOG_LEVEL", defaultLogLevel),
		OAuth2Providers: map[string]OAuth2Provider{},
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	if raw := os.Getenv("AUDIT_RETENTION"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid AUDIT_RETENTION %q: %w", raw, err)
		}
		cfg.AuditRetention = d
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("invalid LOG_LEVEL %q: must be one of debug, info, warn, error", cfg.LogLevel)
	}

	for _, name := range knownProviders {
		prefix := "OAUTH2_" + strings.ToUpper(name) + "_"
		clientID := os.Getenv(prefix + "CLIENT_ID")
		clientSecret := os.Getenv(prefix + "CLIENT_SECRET")
		redirectURI := os.Getenv(prefix + "REDIRECT_URI")
		if clientID == "" && clientSecret == "" && redirectURI == "" {
			continue
		}
		if clientID == "" || clientSecret == "" || redirectURI == "" {
			return Config{}, fmt.Errorf("incomplete OAuth2 config for provider %q: CLIENT_ID, CLIENT_SECRET and REDIRECT_URI must all be set", name)
		}
		cfg.OAuth2Providers[name] = OAuth2Provider{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURI:  redirectURI,
		}
	}

	return cfg, nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ParseLogLevel turns the validated LogLevel string into a slog.Level.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
