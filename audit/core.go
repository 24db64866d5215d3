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

package audit

import (
	"context"
	"time"

	"github.com/opentrusty/opentrusty-core/coreerr"
)

// Mode selects which of the three variants of AuditListQuery a ListQuery
// represents.
type Mode int

const (
	ModeCreatedLe Mode = iota
	ModeCreatedGe
	ModeCreatedLeAndGe
)

// Filter optionally restricts a listing by sets of identifiers.
type Filter struct {
	IDs        []string
	Types      []string
	Subjects   []string
	ServiceIDs []string
	UserIDs    []string
}

// ListQuery is the caller-facing cursor query: CreatedLe, CreatedGe or
// CreatedLeAndGe, each carrying an optional offset_id to resume a previous
// page.
type ListQuery struct {
	Mode     Mode
	Le       *time.Time
	Ge       *time.Time
	Limit    int
	OffsetID *string
	Filter   Filter
}

// RawListQuery is what the Repository actually executes: the same cursor
// bounds plus an explicit numeric offset, with the offset_id resolution
// already done by Core.List.
type RawListQuery struct {
	Mode   Mode
	Le     *time.Time
	Ge     *time.Time
	Limit  int
	Offset int
	Filter Filter
}

// MetricRow is one row of the audit_read_metrics aggregation.
type MetricRow struct {
	Type       string
	StatusCode *int
	Count      int64
}

// Core implements create/read/list/update/delete over the audit log.
type Core struct {
	repo Repository
}

// NewCore constructs an audit core over its driver repository.
func NewCore(repo Repository) *Core {
	return &Core{repo: repo}
}

// Read fetches a single record under the service mask.
func (c *Core) Read(ctx context.Context, id string, serviceMask *string) (*Record, error) {
	rec, err := c.repo.Read(ctx, id, serviceMask)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, coreerr.NotFound("audit record not found")
	}
	return rec, nil
}

// Update applies the only mutable fields a terminal audit write may touch:
// status_code, subject and data.
func (c *Core) Update(ctx context.Context, id string, statusCode *int, subject *string, data map[string]any, serviceMask *string) (*Record, error) {
	rec, err := c.repo.Update(ctx, id, statusCode, subject, data, serviceMask)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, coreerr.NotFound("audit record not found")
	}
	return rec, nil
}

// ReadMetrics returns the (type_, status_code) aggregation the metrics
// aggregator turns into labeled counters.
func (c *Core) ReadMetrics(ctx context.Context, from time.Time, serviceMask *string) ([]MetricRow, error) {
	return c.repo.ReadMetrics(ctx, from, serviceMask)
}

// Delete removes audit records older than the retention cutoff. Intended
// for an operator-scheduled sweep, not request-path code.
func (c *Core) Delete(ctx context.Context, olderThan time.Time) (int, error) {
	return c.repo.Delete(ctx, olderThan)
}

// List resolves the cursor-paginated, filter-composed listing described by
// q, honoring offset_id resumption.
//
// Algorithm: run the page with offset=1 if an offset_id was given (skip the
// boundary row). If the returned page contains offset_id, re-run with
// offset = position_of(offset_id) + 1 to skip exactly past it. Timestamps
// may tie; id is the tiebreaker but isn't part of the primary index, so a
// linear scan within the page is acceptable and bounded by limit.
//
// CreatedLe orders DESC internally and is reversed in memory so the caller
// always sees chronological ascending output. CreatedGe and CreatedLeAndGe
// are naturally ascending.
func (c *Core) List(ctx context.Context, q ListQuery, serviceMask *string) ([]*Record, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Mode == ModeCreatedLeAndGe {
		if q.Ge == nil || q.Le == nil || q.Ge.After(*q.Le) {
			return nil, coreerr.BadRequest("ge must be less than or equal to le", "ge", "le")
		}
	}

	raw := RawListQuery{Mode: q.Mode, Le: q.Le, Ge: q.Ge, Limit: q.Limit, Filter: q.Filter}
	if q.OffsetID != nil {
		raw.Offset = 1
	}

	page, err := c.repo.List(ctx, raw, serviceMask)
	if err != nil {
		return nil, err
	}

	if q.OffsetID != nil {
		if pos := indexOfID(page, *q.OffsetID); pos >= 0 {
			raw.Offset += pos + 1
			page, err = c.repo.List(ctx, raw, serviceMask)
			if err != nil {
				return nil, err
			}
		}
	}

	if q.Mode == ModeCreatedLe {
		reverseRecords(page)
	}
	return page, nil
}

func indexOfID(records []*Record, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func reverseRecords(records []*Record) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
