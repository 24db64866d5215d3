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

// Package oauth2 brokers third-party OAuth2 logins: a provider-agnostic
// redirect/callback flow that binds a resolved email to a local user.
package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	xoauth2 "golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/microsoft"
)

// Provider mediates the code-for-token exchange and the userinfo lookup
// with one third-party identity provider. Modeled as a value, not a global
// registry; the server supplies its provider set in configuration.
type Provider interface {
	Name() string
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (accessToken string, err error)
	FetchEmail(ctx context.Context, accessToken string) (string, error)
}

// oauthProvider adapts an x/oauth2 Config plus a userinfo endpoint into a
// Provider.
type oauthProvider struct {
	name        string
	cfg         *xoauth2.Config
	userInfoURL string
	emailField  string
	httpClient  *http.Client
}

func (p *oauthProvider) Name() string { return p.name }

func (p *oauthProvider) AuthorizeURL(state string) string {
	return p.cfg.AuthCodeURL(state, xoauth2.AccessTypeOnline)
}

func (p *oauthProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	tok, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange oauth2 code: %w", err)
	}
	return tok.AccessToken, nil
}

func (p *oauthProvider) FetchEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	client := p.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call userinfo endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read userinfo response: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("failed to decode userinfo response: %w", err)
	}

	email, _ := payload[p.emailField].(string)
	if email == "" {
		return "", fmt.Errorf("userinfo response missing %q field", p.emailField)
	}
	return email, nil
}

// ProviderConfig is the per-provider configuration loaded from environment
// variables (OAUTH2_<PROVIDER>_CLIENT_ID / _SECRET / _REDIRECT_URI).
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// NewGitHubProvider builds the GitHub identity provider using the
// well-known GitHub OAuth2 endpoints from golang.org/x/oauth2/github.
func NewGitHubProvider(cfg ProviderConfig) Provider {
	return &oauthProvider{
		name: "github",
		cfg: &xoauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"user:email"},
		},
		userInfoURL: "https://api.github.com/user",
		emailField:  "email",
	}
}

// NewMicrosoftProvider builds the Microsoft (Azure AD common tenant)
// identity provider using golang.org/x/oauth2/microsoft.
func NewMicrosoftProvider(cfg ProviderConfig) Provider {
	return &oauthProvider{
		name: "microsoft",
		cfg: &xoauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     microsoft.AzureADEndpoint("common"),
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: "https://graph.microsoft.com/v1.0/me",
		emailField:  "mail",
	}
}
