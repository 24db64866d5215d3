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

// Package metrics combines process stats, in-memory service counters and
// audit-derived counters into a single Prometheus-scrapeable payload.
package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/opentrusty/opentrusty-core/audit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessSampler is the one legitimate global: the process-stats reader,
// encapsulated behind a struct initialised at startup and injected rather
// than accessed through package-level state.
//
// Purpose: Resident memory and CPU percentage, refreshed and read under a
// single mutex so concurrent scrapes never race the cached snapshot.
// Domain: Platform
type ProcessSampler struct {
	mu      sync.Mutex
	proc    *process.Process
	lastCPU float64
	lastMem uint64
}

// NewProcessSampler builds a sampler bound to the current process.
func NewProcessSampler() (*ProcessSampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open process handle: %w", err)
	}
	return &ProcessSampler{proc: proc}, nil
}

// Refresh re-samples CPU percent and resident memory. Serialised with Read
// via the internal mutex.
func (s *ProcessSampler) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cpuPercent, err := s.proc.PercentWithContext(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to sample cpu percent: %w", err)
	}
	memInfo, err := s.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to sample memory info: %w", err)
	}

	s.lastCPU = cpuPercent
	if memInfo != nil {
		s.lastMem = memInfo.RSS
	}
	return nil
}

// Read returns the most recently refreshed (cpuPercent, residentBytes).
func (s *ProcessSampler) Read() (cpuPercent float64, residentBytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCPU, s.lastMem
}

// SystemCPUPercent samples whole-machine CPU usage, used to corroborate the
// per-process figure; kept as a free function since it needs no shared
// state across samples.
func SystemCPUPercent(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, fmt.Errorf("failed to sample system cpu percent: %w", err)
	}
	if len(percents) == 0 {
		return 0, nil
	}
	return percents[0], nil
}

// Counters are the service-resident in-memory counters (request counts,
// error counts) maintained outside the audit log.
//
// Purpose: Cheap, always-available counters that don't require a database
// round trip to read.
// Domain: Platform
type Counters struct {
	requests prometheus.Counter
	errors   prometheus.Counter
}

// NewCounters registers the service-resident counters on reg.
func NewCounters(reg prometheus.Registerer, prefix string) (*Counters, error) {
	c := &Counters{
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_requests_total",
			Help: "Total requests handled.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_errors_total",
			Help: "Total requests that ended in an error response.",
		}),
	}
	if err := reg.Register(c.requests); err != nil {
		return nil, coreerrWrap("requests counter", err)
	}
	if err := reg.Register(c.errors); err != nil {
		return nil, coreerrWrap("errors counter", err)
	}
	return c, nil
}

func coreerrWrap(what string, err error) error {
	return fmt.Errorf("failed to register %s: %w", what, err)
}

// IncRequests records one handled request.
func (c *Counters) IncRequests() { c.requests.Inc() }

// IncErrors records one error response.
func (c *Counters) IncErrors() { c.errors.Inc() }

// auditCollector is a prometheus.Collector whose Collect calls
// audit.Core.ReadMetrics at scrape time, matching Prometheus's pull model:
// the gauge values are never stale between scrapes.
type auditCollector struct {
	audits      *audit.Core
	serviceMask *string
	since       time.Duration
	desc        *prometheus.Desc
}

// NewAuditCollector builds the audit-derived counters source.
//
// Purpose: `<prefix>_audit{path="...",status="..."} = count` from
// audit_read_metrics. A service-masked caller sees only their tenant's
// audit counters.
// Domain: Audit
func NewAuditCollector(prefix string, audits *audit.Core, serviceMask *string, since time.Duration) prometheus.Collector {
	return &auditCollector{
		audits:      audits,
		serviceMask: serviceMask,
		since:       since,
		desc: prometheus.NewDesc(
			prefix+"_audit",
			"Audit event count by type and status code over the collector window.",
			[]string{"path", "status"},
			nil,
		),
	}
}

func (c *auditCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *auditCollector) Collect(ch chan<- prometheus.Metric) {
	from := time.Now().Add(-c.since)
	rows, err := c.audits.ReadMetrics(context.Background(), from, c.serviceMask)
	if err != nil {
		return
	}
	for _, row := range rows {
		status := "none"
		if row.StatusCode != nil {
			status = fmt.Sprintf("%d", *row.StatusCode)
		}
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(row.Count), row.Type, status)
	}
}

// processCollector publishes process_* gauges from a ProcessSampler.
type processCollector struct {
	sampler  *ProcessSampler
	cpuDesc  *prometheus.Desc
	memDesc  *prometheus.Desc
}

// NewProcessCollector wraps sampler as a prometheus.Collector, tagged
// process_*.
func NewProcessCollector(prefix string, sampler *ProcessSampler) prometheus.Collector {
	return &processCollector{
		sampler: sampler,
		cpuDesc: prometheus.NewDesc(prefix+"_process_cpu_percent", "Process CPU percent since last sample.", nil, nil),
		memDesc: prometheus.NewDesc(prefix+"_process_resident_memory_bytes", "Process resident memory in bytes.", nil, nil),
	}
}

func (c *processCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpuDesc
	ch <- c.memDesc
}

func (c *processCollector) Collect(ch chan<- prometheus.Metric) {
	cpuPercent, residentBytes := c.sampler.Read()
	ch <- prometheus.MustNewConstMetric(c.cpuDesc, prometheus.GaugeValue, cpuPercent)
	ch <- prometheus.MustNewConstMetric(c.memDesc, prometheus.GaugeValue, float64(residentBytes))
}

// Aggregator combines the three sources into one registry a caller scrapes
// through the external collaborator (the HTTP /v1/metrics handler uses
// promhttp against this registry).
type Aggregator struct {
	Registry *prometheus.Registry
	Counters *Counters
	Sampler  *ProcessSampler
}

// NewAggregator wires process stats, service-resident counters and
// audit-derived counters into one registry.
func NewAggregator(prefix string, audits *audit.Core, serviceMask *string, auditWindow time.Duration) (*Aggregator, error) {
	reg := prometheus.NewRegistry()

	counters, err := NewCounters(reg, prefix)
	if err != nil {
		return nil, err
	}

	sampler, err := NewProcessSampler()
	if err != nil {
		return nil, err
	}
	if err := reg.Register(NewProcessCollector(prefix, sampler)); err != nil {
		return nil, coreerrWrap("process collector", err)
	}
	if err := reg.Register(NewAuditCollector(prefix, audits, serviceMask, auditWindow)); err != nil {
		return nil, coreerrWrap("audit collector", err)
	}

	return &Aggregator{Registry: reg, Counters: counters, Sampler: sampler}, nil
}
