/*
store.go - Read interfaces the engines consume, and the store contract

PURPOSE:
  Defines the seam between the computation engines and persisted
  configuration. Engines depend only on the narrow Reader interfaces; the
  wider Store adds the upsert-style writes used by configuration import and
  tests. Different implementations back these with SQLite, Postgres, or
  in-memory maps.

READ CONTRACT:
  - GetPoint is the exact (series, year, month) lookup. Missing data is a
    *MissingDataError with Exact=true.
  - LatestPoint is the "latest known value at or before" variant used by
    escalation lookups. Missing data is a *MissingDataError with Exact=false.
  - Get* lookups of unknown ids return *NotFoundError.

WRITE CONTRACT:
  Index points upsert: writing an existing (series, year, month) key
  overwrites the value. There is no delete path. Formulations archive and
  clone rather than mutate in place.

IMPLEMENTATIONS:
  - pricing/store/memory.go: in-memory, for tests and ad-hoc computation
  - store/sqlite:            embedded single-file store
  - store/postgres:          pgx-backed store for the surrounding CRM

SEE ALSO:
  - index.go: wraps IndexReader with the accessor semantics of the engines
  - aggregate.go: consumes Reader
*/
package pricing

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// READ INTERFACES
// =============================================================================

// IndexReader resolves index series and their monthly points.
type IndexReader interface {
	// GetSeries returns the series row for id.
	GetSeries(ctx context.Context, id SeriesID) (*IndexSeries, error)

	// GetPoint returns the value at exactly (id, m).
	GetPoint(ctx context.Context, id SeriesID, m Month) (decimal.Decimal, error)

	// LatestPoint returns the most recent point with month <= m, ordered by
	// year desc, month desc.
	LatestPoint(ctx context.Context, id SeriesID, m Month) (IndexPoint, error)
}

// FormulationReader resolves formulation recipes.
type FormulationReader interface {
	GetFormulation(ctx context.Context, id FormulationID) (*Formulation, error)
}

// PolicyReader resolves escalation policies.
type PolicyReader interface {
	GetPolicy(ctx context.Context, id PolicyID) (*EscalationPolicy, error)
}

// ScenarioReader resolves a scenario as a fully loaded aggregate: the
// scenario row plus its lines and rebates (tiers and lumps included).
type ScenarioReader interface {
	GetScenario(ctx context.Context, id ScenarioID) (*Scenario, error)
}

// Reader is the full read surface the aggregator needs.
type Reader interface {
	IndexReader
	FormulationReader
	PolicyReader
	ScenarioReader
}

// =============================================================================
// STORE - Reader plus the writes owned by configuration import
// =============================================================================

type Store interface {
	Reader

	// PutSeries inserts or replaces a series row.
	PutSeries(ctx context.Context, s IndexSeries) error

	// PutPoints upserts points; existing (series, year, month) keys are
	// overwritten.
	PutPoints(ctx context.Context, points []IndexPoint) error

	// PutFormulation inserts or replaces a formulation with its components.
	PutFormulation(ctx context.Context, f Formulation) error

	// ArchiveFormulation soft-disables a formulation. Archived formulations
	// keep pricing lines that already reference them.
	ArchiveFormulation(ctx context.Context, id FormulationID) error

	// CloneFormulation copies a formulation into a new active version and
	// returns the copy.
	CloneFormulation(ctx context.Context, id FormulationID, newID FormulationID) (*Formulation, error)

	// PutPolicy inserts or replaces an escalation policy.
	PutPolicy(ctx context.Context, p EscalationPolicy) error

	// PutScenario inserts or replaces a scenario with its lines and rebates.
	PutScenario(ctx context.Context, s Scenario) error
}
