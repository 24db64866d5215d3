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

package oauth2

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opentrusty/opentrusty-core/audit"
	"github.com/opentrusty/opentrusty-core/coreerr"
	"github.com/opentrusty/opentrusty-core/driver"
	"github.com/opentrusty/opentrusty-core/key"
	"github.com/opentrusty/opentrusty-core/service"
	"github.com/opentrusty/opentrusty-core/user"
)

// stateTTL is how long an authorize-phase state may sit unconsumed before
// DeleteExpired is allowed to reap it.
const stateTTL = 10 * time.Minute

// Broker mediates the three-legged code flow with a third-party identity
// provider, then binds the resolved email to a local user and mints a
// local token.
//
// Purpose: Redirect/callback flow; provider-agnostic login join.
// Domain: OAuth2
type Broker struct {
	csrf      driver.CSRFRepository
	providers map[string]Provider
	services  *service.Core
	users     *user.Core
	userRepo  user.Repository
	keys      *key.Core
	keyRepo   key.Repository
	auditRepo audit.Repository
}

// NewBroker constructs a broker over its driver repository, a fixed
// provider set, and the Service/User/Key cores it joins a login against.
func NewBroker(csrf driver.CSRFRepository, providers map[string]Provider, services *service.Core, users *user.Core, userRepo user.Repository, keys *key.Core, keyRepo key.Repository, auditRepo audit.Repository) *Broker {
	return &Broker{
		csrf:      csrf,
		providers: providers,
		services:  services,
		users:     users,
		userRepo:  userRepo,
		keys:      keys,
		keyRepo:   keyRepo,
		auditRepo: auditRepo,
	}
}

// Authorize is the authorize phase: a service-authenticated caller requests
// a provider URL. Generates a CSRF-resistant state, persists it bound to
// (serviceID, providerName), and returns the provider's authorize URL.
func (b *Broker) Authorize(ctx context.Context, serviceID, providerName string) (string, error) {
	provider, ok := b.providers[providerName]
	if !ok {
		return "", coreerr.BadRequest("unknown oauth2 provider", "provider")
	}

	state, err := key.GenerateValue()
	if err != nil {
		return "", err
	}

	rec := driver.CSRFRecord{
		State:     state,
		ServiceID: serviceID,
		Provider:  providerName,
		ExpiresAt: time.Now().Add(stateTTL),
	}
	if err := b.csrf.Create(ctx, rec); err != nil {
		return "", coreerr.Driver("failed to persist csrf state", err)
	}

	return provider.AuthorizeURL(state), nil
}

// Callback is the callback phase: pops the CSRF record by state, exchanges
// code for an access token, fetches a verified email, resolves it to a
// local user (creating one if absent along with a fresh user-typed key),
// and returns the redirect target carrying the opaque token.
//
// state records are single-use: popped on first callback regardless of
// outcome.
func (b *Broker) Callback(ctx context.Context, providerName, code, state string, meta audit.Meta) (string, error) {
	rec, err := b.csrf.Pop(ctx, state)
	if err != nil {
		return "", coreerr.Driver("failed to pop csrf state", err)
	}
	if rec == nil {
		return "", coreerr.BadRequest("unknown or expired oauth2 state", "state")
	}
	if rec.Provider != providerName {
		return "", coreerr.BadRequest("oauth2 provider mismatch", "provider")
	}
	if time.Now().After(rec.ExpiresAt) {
		return "", coreerr.BadRequest("expired oauth2 state", "state")
	}

	provider, ok := b.providers[providerName]
	if !ok {
		return "", coreerr.BadRequest("unknown oauth2 provider", "provider")
	}

	accessToken, err := provider.ExchangeCode(ctx, code)
	if err != nil {
		return "", coreerr.Wrap(coreerr.KindDriver, "oauth2 code exchange failed", err)
	}
	email, err := provider.FetchEmail(ctx, accessToken)
	if err != nil {
		return "", coreerr.Wrap(coreerr.KindDriver, "oauth2 userinfo lookup failed", err)
	}

	svc, err := b.services.ReadByID(ctx, rec.ServiceID, nil)
	if err != nil {
		return "", err
	}

	u, k, err := b.login(ctx, rec.ServiceID, email)
	if err != nil {
		return "", err
	}

	builder := audit.NewBuilder(meta)
	builder.SetService(&svc.ID)
	builder.SetUser(&u.ID)
	builder.SetUserKey(&k.ID)
	subject := u.ID
	_, _ = builder.Create(ctx, b.auditRepo, audit.TypeOAuth2Login, 302, &subject, map[string]any{"provider": providerName})

	return fmt.Sprintf("%s?token=%s", svc.URL, k.Value), nil
}

// login resolves (email, serviceID) to a local user and a user-typed key,
// creating both if a matching user does not already exist. This is
// oauth2_login: there is no password on an OAuth2-provisioned user.
func (b *Broker) login(ctx context.Context, serviceID, email string) (*user.User, *key.Key, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := b.userRepo.ReadByEmail(ctx, serviceID, email)
	if err != nil {
		return nil, nil, err
	}
	if u == nil {
		u, err = b.users.Create(ctx, serviceID, email, email, "")
		if err != nil {
			return nil, nil, err
		}
	}

	k, err := b.keyRepo.ReadByUserID(ctx, serviceID, u.ID)
	if err != nil {
		return nil, nil, err
	}
	if k == nil {
		k, err = b.keys.CreateUser(ctx, true, "oauth2-login", serviceID, u.ID)
		if err != nil {
			return nil, nil, err
		}
	}

	return u, k, nil
}
