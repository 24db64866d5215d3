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
	"testing"
	"time"

	"github.com/opentrusty/opentrusty-core/audit"
	"github.com/opentrusty/opentrusty-core/coreerr"
	"github.com/opentrusty/opentrusty-core/id"
	"github.com/opentrusty/opentrusty-core/service"
)

// mockKeyRepository implements Repository over an in-memory slice.
type mockKeyRepository struct {
	keys []*Key
}

func (m *mockKeyRepository) Create(ctx context.Context, isEnabled, isRevoked bool, name, value string, serviceID, userID *string) (*Key, error) {
	k := &Key{ID: id.New(), IsEnabled: isEnabled, IsRevoked: isRevoked, Name: name, Value: value, ServiceID: serviceID, UserID: userID}
	m.keys = append(m.keys, k)
	return k, nil
}

func (m *mockKeyRepository) ReadByID(ctx context.Context, keyID string) (*Key, error) {
	for _, k := range m.keys {
		if k.ID == keyID {
			return k, nil
		}
	}
	return nil, nil
}

func (m *mockKeyRepository) ReadByRootValue(ctx context.Context, value string) (*Key, error) {
	for _, k := range m.keys {
		if k.Value == value && k.IsEnabled && !k.IsRevoked && k.ServiceID == nil && k.UserID == nil {
			return k, nil
		}
	}
	return nil, nil
}

func (m *mockKeyRepository) ReadByServiceValue(ctx context.Context, value string) (*Key, error) {
	for _, k := range m.keys {
		if k.Value == value && k.IsEnabled && !k.IsRevoked && k.ServiceID != nil && k.UserID == nil {
			return k, nil
		}
	}
	return nil, nil
}

func (m *mockKeyRepository) ReadByUserValue(ctx context.Context, serviceID, value string) (*Key, error) {
	for _, k := range m.keys {
		if k.Value == value && k.IsEnabled && !k.IsRevoked && k.ServiceID != nil && *k.ServiceID == serviceID && k.UserID != nil {
			return k, nil
		}
	}
	return nil, nil
}

func (m *mockKeyRepository) ReadByUserID(ctx context.Context, serviceID, userID string) (*Key, error) {
	for _, k := range m.keys {
		if k.ServiceID != nil && *k.ServiceID == serviceID && k.UserID != nil && *k.UserID == userID {
			return k, nil
		}
	}
	return nil, nil
}

func (m *mockKeyRepository) ListWhereIDGt(ctx context.Context, cursor string, limit int, serviceMask *string) ([]*Key, error) {
	return nil, nil
}

func (m *mockKeyRepository) ListWhereIDLt(ctx context.Context, cursor string, limit int, serviceMask *string) ([]*Key, error) {
	return nil, nil
}

func (m *mockKeyRepository) UpdateByID(ctx context.Context, keyID string, serviceMask *string, u Update) (*Key, error) {
	return nil, nil
}

func (m *mockKeyRepository) UpdateManyByUserID(ctx context.Context, serviceID, userID string, u Update) (int, error) {
	return 0, nil
}

func (m *mockKeyRepository) DeleteByID(ctx context.Context, keyID string, serviceMask *string) (int, error) {
	return 0, nil
}

func (m *mockKeyRepository) DeleteRoot(ctx context.Context) (int, error) {
	var n int
	var kept []*Key
	for _, k := range m.keys {
		if k.ServiceID == nil && k.UserID == nil {
			n++
			continue
		}
		kept = append(kept, k)
	}
	m.keys = kept
	return n, nil
}

// mockServiceRepository implements service.Repository over an in-memory map.
type mockServiceRepository struct {
	services map[string]*service.Service
}

func (m *mockServiceRepository) Create(ctx context.Context, svc *service.Service) error {
	m.services[svc.ID] = svc
	return nil
}

func (m *mockServiceRepository) ReadByID(ctx context.Context, svcID string, serviceMask *string) (*service.Service, error) {
	return m.services[svcID], nil
}

func (m *mockServiceRepository) List(ctx context.Context, q service.ListQuery) ([]*service.Service, error) {
	return nil, nil
}

func (m *mockServiceRepository) UpdateByID(ctx context.Context, svcID string, serviceMask *string, u service.Update) (*service.Service, error) {
	return nil, nil
}

func (m *mockServiceRepository) DeleteByID(ctx context.Context, svcID string, serviceMask *string) (int, error) {
	return 0, nil
}

// mockAuditRepository implements audit.Repository, recording every Create.
type mockAuditRepository struct {
	records []*audit.Record
}

func (m *mockAuditRepository) Create(ctx context.Context, meta audit.Meta, typ string, statusCode *int, subject *string, data map[string]any, keyID, serviceID, userID, userKeyID *string) (*audit.Record, error) {
	rec := &audit.Record{ID: id.New(), Type: typ, StatusCode: statusCode, Data: data, KeyID: keyID, ServiceID: serviceID}
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *mockAuditRepository) Read(ctx context.Context, id string, serviceMask *string) (*audit.Record, error) {
	return nil, nil
}

func (m *mockAuditRepository) List(ctx context.Context, q audit.RawListQuery, serviceMask *string) ([]*audit.Record, error) {
	return nil, nil
}

func (m *mockAuditRepository) Update(ctx context.Context, id string, statusCode *int, subject *string, data map[string]any, serviceMask *string) (*audit.Record, error) {
	return nil, nil
}

func (m *mockAuditRepository) ReadMetrics(ctx context.Context, from time.Time, serviceMask *string) ([]audit.MetricRow, error) {
	return nil, nil
}

func (m *mockAuditRepository) Delete(ctx context.Context, olderThan time.Time) (int, error) {
	return 0, nil
}

func newTestCore() (*Core, *mockKeyRepository, *mockServiceRepository, *mockAuditRepository) {
	keys := &mockKeyRepository{}
	services := &mockServiceRepository{services: map[string]*service.Service{}}
	audits := &mockAuditRepository{}
	return NewCore(keys, services, audits), keys, services, audits
}

func TestAuthenticateRootSucceeds(t *testing.T) {
	c, keys, _, audits := newTestCore()
	rootKey, _ := keys.Create(context.Background(), true, false, "root", "root-value", nil, nil)

	b, err := c.AuthenticateRoot(context.Background(), audit.Meta{}, &rootKey.Value)
	if err != nil {
		t.Fatalf("AuthenticateRoot() error = %v", err)
	}
	if b == nil {
		t.Fatal("expected a non-nil builder on success")
	}
	if len(audits.records) != 0 {
		t.Errorf("expected no audit record on success, got %d", len(audits.records))
	}
}

func TestAuthenticateRootFailsOnUndefinedValue(t *testing.T) {
	c, _, _, audits := newTestCore()
	_, err := c.AuthenticateRoot(context.Background(), audit.Meta{}, nil)
	if !coreerr.Is(err, coreerr.KindForbidden) {
		t.Errorf("expected Forbidden, got %v", err)
	}
	if len(audits.records) != 1 {
		t.Fatalf("expected exactly 1 audit record, got %d", len(audits.records))
	}
	if audits.records[0].Data["message"] != audit.MessageKeyUndefined {
		t.Errorf("expected message %q, got %v", audit.MessageKeyUndefined, audits.records[0].Data["message"])
	}
}

func TestAuthenticateRootFailsOnUnknownValue(t *testing.T) {
	c, _, _, audits := newTestCore()
	bogus := "does-not-exist"
	_, err := c.AuthenticateRoot(context.Background(), audit.Meta{}, &bogus)
	if !coreerr.Is(err, coreerr.KindForbidden) {
		t.Errorf("expected Forbidden, got %v", err)
	}
	if audits.records[0].Data["message"] != audit.MessageKeyNotFound {
		t.Errorf("expected message %q, got %v", audit.MessageKeyNotFound, audits.records[0].Data["message"])
	}
}

func TestAuthenticateRootRejectsRevokedKey(t *testing.T) {
	c, keys, _, _ := newTestCore()
	revoked, _ := keys.Create(context.Background(), true, true, "root", "revoked-value", nil, nil)
	_, err := c.AuthenticateRoot(context.Background(), audit.Meta{}, &revoked.Value)
	if !coreerr.Is(err, coreerr.KindForbidden) {
		t.Errorf("a revoked key must never authenticate, got %v", err)
	}
}

func TestAuthenticateServiceSucceedsAndResolvesService(t *testing.T) {
	c, keys, services, _ := newTestCore()
	svc := &service.Service{ID: id.New(), Name: "acme"}
	services.services[svc.ID] = svc
	svcKey, _ := keys.Create(context.Background(), true, false, "svc", "svc-value", &svc.ID, nil)

	gotSvc, b, err := c.AuthenticateService(context.Background(), audit.Meta{}, &svcKey.Value)
	if err != nil {
		t.Fatalf("AuthenticateService() error = %v", err)
	}
	if gotSvc.ID != svc.ID {
		t.Errorf("resolved service id = %q, want %q", gotSvc.ID, svc.ID)
	}
	if b == nil {
		t.Fatal("expected a non-nil builder")
	}
}

func TestAuthenticateDualPathServiceSuccessCarriesKeyID(t *testing.T) {
	c, keys, services, audits := newTestCore()
	svc := &service.Service{ID: id.New(), Name: "acme"}
	services.services[svc.ID] = svc
	svcKey, _ := keys.Create(context.Background(), true, false, "svc", "svc-value", &svc.ID, nil)

	gotSvc, b, err := c.Authenticate(context.Background(), audit.Meta{}, &svcKey.Value)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if gotSvc == nil || gotSvc.ID != svc.ID {
		t.Fatalf("resolved service = %+v, want %q", gotSvc, svc.ID)
	}

	rec, err := b.Create(context.Background(), audits, "test.event", 200, nil, nil)
	if err != nil {
		t.Fatalf("b.Create() error = %v", err)
	}
	if rec.KeyID == nil || *rec.KeyID != svcKey.ID {
		t.Errorf("audit record key_id = %v, want %q", rec.KeyID, svcKey.ID)
	}
	if rec.ServiceID == nil || *rec.ServiceID != svc.ID {
		t.Errorf("audit record service_id = %v, want %q", rec.ServiceID, svc.ID)
	}
}

func TestAuthenticateDualPathFallsBackToRootSilently(t *testing.T) {
	c, keys, _, audits := newTestCore()
	rootKey, _ := keys.Create(context.Background(), true, false, "root", "shared-value", nil, nil)

	svc, b, err := c.Authenticate(context.Background(), audit.Meta{}, &rootKey.Value)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if svc != nil {
		t.Error("expected nil service for a root-typed credential")
	}
	if b == nil {
		t.Fatal("expected a non-nil builder")
	}
	// The silent first attempt (service interpretation) must not audit its
	// failure since the root fallback succeeds.
	if len(audits.records) != 0 {
		t.Errorf("expected no audit record when the fallback succeeds, got %d", len(audits.records))
	}
}

func TestAuthenticateFailsForCompletelyUnknownValue(t *testing.T) {
	c, _, _, audits := newTestCore()
	bogus := "nothing-matches"
	_, _, err := c.Authenticate(context.Background(), audit.Meta{}, &bogus)
	if !coreerr.Is(err, coreerr.KindForbidden) {
		t.Errorf("expected Forbidden, got %v", err)
	}
	if len(audits.records) != 1 {
		t.Errorf("expected exactly 1 audit record, got %d", len(audits.records))
	}
}

func TestVariantOfClassifiesByNullability(t *testing.T) {
	svcID, userID := "svc", "user"
	cases := []struct {
		k    *Key
		want Variant
	}{
		{&Key{}, VariantRoot},
		{&Key{ServiceID: &svcID}, VariantService},
		{&Key{ServiceID: &svcID, UserID: &userID}, VariantUser},
	}
	for _, tc := range cases {
		if got := VariantOf(tc.k); got != tc.want {
			t.Errorf("VariantOf(%+v) = %v, want %v", tc.k, got, tc.want)
		}
	}
}

func TestGenerateValueHasSufficientEntropy(t *testing.T) {
	v, err := GenerateValue()
	if err != nil {
		t.Fatalf("GenerateValue() error = %v", err)
	}
	// 21 bytes hex-encoded is 42 characters.
	if len(v) != 42 {
		t.Errorf("len(value) = %d, want 42", len(v))
	}
}
