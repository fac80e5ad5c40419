/*
Package store provides an in-memory implementation of pricing.Store.

PURPOSE:
  Backs tests and ad-hoc computations without a database. Index points are
  kept sorted per series so exact and latest-on-or-before lookups are both
  binary searches, matching the semantics of the SQL implementations.

CONCURRENCY:
  Safe for concurrent use. Reads take an RLock; writes take the write lock.
  The engines only read, so concurrent scenario computations contend only
  with imports.

SEE ALSO:
  - pricing/store.go: the contract this implements
  - store/sqlite, store/postgres: the persistent implementations
*/
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/bizcase-engine/pricing"
)

// Memory is an in-memory pricing.Store.
type Memory struct {
	mu           sync.RWMutex
	series       map[pricing.SeriesID]pricing.IndexSeries
	points       map[pricing.SeriesID][]pricing.IndexPoint // sorted by month
	formulations map[pricing.FormulationID]pricing.Formulation
	policies     map[pricing.PolicyID]pricing.EscalationPolicy
	scenarios    map[pricing.ScenarioID]pricing.Scenario
}

// Compile-time check that Memory implements the full store contract.
var _ pricing.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		series:       make(map[pricing.SeriesID]pricing.IndexSeries),
		points:       make(map[pricing.SeriesID][]pricing.IndexPoint),
		formulations: make(map[pricing.FormulationID]pricing.Formulation),
		policies:     make(map[pricing.PolicyID]pricing.EscalationPolicy),
		scenarios:    make(map[pricing.ScenarioID]pricing.Scenario),
	}
}

// =============================================================================
// READS
// =============================================================================

func (m *Memory) GetSeries(ctx context.Context, id pricing.SeriesID) (*pricing.IndexSeries, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.series[id]
	if !ok {
		return nil, &pricing.NotFoundError{Kind: "index_series", ID: string(id)}
	}
	return &s, nil
}

func (m *Memory) GetPoint(ctx context.Context, id pricing.SeriesID, month pricing.Month) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pts := m.points[id]
	i := searchMonth(pts, month)
	if i < len(pts) && pts[i].Month.Equal(month) {
		return pts[i].Value, nil
	}
	return decimal.Zero, &pricing.MissingDataError{SeriesID: id, Month: month, Exact: true}
}

func (m *Memory) LatestPoint(ctx context.Context, id pricing.SeriesID, month pricing.Month) (pricing.IndexPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pts := m.points[id]
	// searchMonth returns the first point >= month; the latest point at or
	// before it is either that exact match or the one just before.
	i := searchMonth(pts, month)
	if i < len(pts) && pts[i].Month.Equal(month) {
		return pts[i], nil
	}
	if i > 0 {
		return pts[i-1], nil
	}
	return pricing.IndexPoint{}, &pricing.MissingDataError{SeriesID: id, Month: month, Exact: false}
}

func (m *Memory) GetFormulation(ctx context.Context, id pricing.FormulationID) (*pricing.Formulation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.formulations[id]
	if !ok {
		return nil, &pricing.NotFoundError{Kind: "formulation", ID: string(id)}
	}
	return &f, nil
}

func (m *Memory) GetPolicy(ctx context.Context, id pricing.PolicyID) (*pricing.EscalationPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.policies[id]
	if !ok {
		return nil, &pricing.NotFoundError{Kind: "escalation_policy", ID: string(id)}
	}
	return &p, nil
}

func (m *Memory) GetScenario(ctx context.Context, id pricing.ScenarioID) (*pricing.Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.scenarios[id]
	if !ok {
		return nil, &pricing.NotFoundError{Kind: "scenario", ID: string(id)}
	}
	return &s, nil
}

// =============================================================================
// WRITES
// =============================================================================

func (m *Memory) PutSeries(ctx context.Context, s pricing.IndexSeries) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.series[s.ID] = s
	return nil
}

func (m *Memory) PutPoints(ctx context.Context, points []pricing.IndexPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range points {
		pts := m.points[p.SeriesID]
		i := searchMonth(pts, p.Month)
		if i < len(pts) && pts[i].Month.Equal(p.Month) {
			pts[i] = p // upsert overwrites
		} else {
			pts = append(pts, pricing.IndexPoint{})
			copy(pts[i+1:], pts[i:])
			pts[i] = p
		}
		m.points[p.SeriesID] = pts
	}
	return nil
}

func (m *Memory) PutFormulation(ctx context.Context, f pricing.Formulation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.formulations[f.ID] = f
	return nil
}

func (m *Memory) ArchiveFormulation(ctx context.Context, id pricing.FormulationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.formulations[id]
	if !ok {
		return &pricing.NotFoundError{Kind: "formulation", ID: string(id)}
	}
	f.Archived = true
	m.formulations[id] = f
	return nil
}

func (m *Memory) CloneFormulation(ctx context.Context, id, newID pricing.FormulationID) (*pricing.Formulation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.formulations[id]
	if !ok {
		return nil, &pricing.NotFoundError{Kind: "formulation", ID: string(id)}
	}
	if _, exists := m.formulations[newID]; exists {
		return nil, &pricing.ConfigError{Kind: "formulation", ID: string(newID), Reason: "clone target id already exists"}
	}

	from := src.ID
	clone := src
	clone.ID = newID
	clone.Archived = false
	clone.Version = src.Version + 1
	clone.ClonedFrom = &from
	clone.Components = append([]pricing.FormulationComponent(nil), src.Components...)

	m.formulations[newID] = clone
	return &clone, nil
}

func (m *Memory) PutPolicy(ctx context.Context, p pricing.EscalationPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.policies[p.ID] = p
	return nil
}

func (m *Memory) PutScenario(ctx context.Context, s pricing.Scenario) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scenarios[s.ID] = s
	return nil
}

// searchMonth returns the index of the first point with month >= target.
func searchMonth(pts []pricing.IndexPoint, target pricing.Month) int {
	return sort.Search(len(pts), func(i int) bool {
		return pts[i].Month.AfterOrEqual(target)
	})
}
