/*
errors.go - Centralized error types for the pricing engine

PURPOSE:
  All engine error kinds in one place. Callers branch on three categories:
  missing reference data, invalid configuration, and not-found lookups.
  Store and CLI layers wrap these with additional context.

ERROR CATEGORIES:
  1. MissingReferenceData - an index point required for an exact lookup is absent
  2. InvalidConfiguration - a config row violates a documented invariant
  3. NotFound             - a referenced id does not exist

USAGE:
  Callers should test with the helpers:

    if pricing.IsMissingData(err) {
        // collect into the issues list in non-strict mode
    }

SEE ALSO:
  - index.go: raises MissingDataError
  - formulation.go / escalation.go / rebate.go: raise ConfigError
  - aggregate.go: downgrades these into issues when strict=false
*/
package pricing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingReferenceData is returned when an index point required for
	// an exact-match lookup is absent and no fallback is allowed.
	ErrMissingReferenceData = errors.New("missing reference data")

	// ErrInvalidConfiguration is returned when a configuration row violates
	// a documented invariant (zero components, ambiguous escalation mode,
	// malformed tier, weights that cannot normalize).
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrNotFound is returned when a referenced formulation, policy, rebate,
	// series or scenario id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRange is returned when a month range ends before it starts.
	ErrInvalidRange = errors.New("invalid range: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MissingDataError reports which series/month lookup had no data.
type MissingDataError struct {
	SeriesID SeriesID
	Month    Month
	Exact    bool // true when the caller required an exact point
}

func (e *MissingDataError) Error() string {
	kind := "no point at or before"
	if e.Exact {
		kind = "no point at"
	}
	return fmt.Sprintf("index series %s: %s %s", e.SeriesID, kind, e.Month)
}

func (e *MissingDataError) Unwrap() error { return ErrMissingReferenceData }

// ConfigError reports which configuration object is invalid and why.
type ConfigError struct {
	Kind   string // "formulation", "escalation_policy", "rebate", ...
	ID     string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Kind, e.ID, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfiguration }

// NotFoundError reports which id failed to resolve.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsMissingData returns true for absent index point errors.
func IsMissingData(err error) bool { return errors.Is(err, ErrMissingReferenceData) }

// IsInvalidConfig returns true for invariant violations in configuration.
func IsInvalidConfig(err error) bool { return errors.Is(err, ErrInvalidConfiguration) }

// IsNotFound returns true when a referenced id does not exist.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
