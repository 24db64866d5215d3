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

package key

import (
	"context"

	"github.com/opentrusty/opentrusty-core/audit"
	"github.com/opentrusty/opentrusty-core/coreerr"
	"github.com/opentrusty/opentrusty-core/service"
)

// errForbidden is the one error value every authentication failure path
// returns: the core never discloses which of {key missing, key revoked,
// wrong shape, service deleted} occurred. Discrimination lives only in the
// audit record written alongside it.
func errForbidden() error {
	return coreerr.Forbidden("authentication failed")
}

// AuthenticateRoot resolves value to a valid root key or fails. Every
// failure writes exactly one audit record before returning.
func (c *Core) AuthenticateRoot(ctx context.Context, meta audit.Meta, value *string) (*audit.Builder, error) {
	b := audit.NewBuilder(meta)
	if value == nil {
		b.CreateInternal(ctx, c.auditRepo, audit.TypeAuthenticateError, audit.MessageKeyUndefined)
		return nil, errForbidden()
	}

	k, err := c.repo.ReadByRootValue(ctx, *value)
	if err != nil {
		return nil, err
	}
	if k == nil {
		b.CreateInternal(ctx, c.auditRepo, audit.TypeAuthenticateError, audit.MessageKeyNotFound)
		return nil, errForbidden()
	}
	if VariantOf(k) != VariantRoot {
		b.CreateInternal(ctx, c.auditRepo, audit.TypeAuthenticateError, audit.MessageKeyInvalid)
		return nil, errForbidden()
	}

	b.SetKey(&k.ID)
	return b, nil
}

// AuthenticateService resolves value to a valid service key and fetches its
// service. Every failure writes exactly one audit record.
func (c *Core) AuthenticateService(ctx context.Context, meta audit.Meta, value *string) (*service.Service, *audit.Builder, error) {
	svc, b, err := c.tryAuthenticateService(ctx, meta, value, true)
	if err != nil {
		return nil, b, err
	}
	return svc, b, nil
}

// Authenticate resolves value to either a service or root key, preferring
// service interpretation. A nil returned *service.Service denotes a root
// caller.
//
// Implements the dual path: attempt service interpretation silently (no
// audit on failure), and only on Forbidden fall back to root interpretation
// with full audit. A genuinely bad credential produces exactly one audit
// record even though two lookups were tried — the record reflects the last
// failing interpretation (the root attempt), per the reproduced source
// behavior.
func (c *Core) Authenticate(ctx context.Context, meta audit.Meta, value *string) (*service.Service, *audit.Builder, error) {
	svc, b, err := c.tryAuthenticateService(ctx, meta, value, false)
	if err == nil {
		return svc, b, nil
	}

	b, rerr := c.AuthenticateRoot(ctx, meta, value)
	if rerr != nil {
		return nil, b, rerr
	}
	return nil, b, nil
}

// tryAuthenticateService is the shared lookup used by both
// AuthenticateService (audited) and Authenticate's silent first attempt
// (audited=false).
func (c *Core) tryAuthenticateService(ctx context.Context, meta audit.Meta, value *string, audited bool) (*service.Service, *audit.Builder, error) {
	b := audit.NewBuilder(meta)
	fail := func(message string) (*service.Service, *audit.Builder, error) {
		if audited {
			b.CreateInternal(ctx, c.auditRepo, audit.TypeAuthenticateError, message)
		}
		return nil, b, errForbidden()
	}

	if value == nil {
		return fail(audit.MessageKeyUndefined)
	}

	k, err := c.repo.ReadByServiceValue(ctx, *value)
	if err != nil {
		return nil, b, err
	}
	if k == nil {
		return fail(audit.MessageKeyNotFound)
	}
	if VariantOf(k) != VariantService {
		return fail(audit.MessageKeyInvalid)
	}
	b.SetKey(&k.ID)

	svc, err := c.services.ReadByID(ctx, *k.ServiceID, nil)
	if err != nil {
		if coreerr.Is(err, coreerr.KindNotFound) {
			return fail(audit.MessageServiceNotFound)
		}
		return nil, b, err
	}
	if svc == nil {
		return fail(audit.MessageServiceNotFound)
	}
	b.SetService(&svc.ID)
	return svc, b, nil
}
