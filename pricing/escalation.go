/*
escalation.go - Escalation policy engine

PURPOSE:
  Computes the time-based multiplier a policy yields for a target month.
  A policy is exactly one of:

  - Rate-based: a fixed per-period rate stepped at a frequency since the
    policy start month. Compound policies yield (1+r)^n, simple policies
    1 + r*n, where n is the number of WHOLE elapsed periods (months map to
    periods by integer division: quarterly /3, annual /12). Zero or negative
    elapsed time yields 1.
  - Index-based: a weighted blend of index ratios, like a formulation but
    with latest-on-or-before lookups and an extra base-month option. A
    component with no declared base contributes a neutral ratio of 1.

  A policy with no mode configured is "no escalation": multiplier 1, not an
  error. Cap and floor (expressed as +/- percent on the multiplier) clamp the
  result to [1+floor/100, 1+cap/100]; each bound applies independently.

EXAMPLE:
  3% annual compound starting 2024-01, target 2026-06:
  elapsed = 29 months -> n = 29/12 = 2 whole periods -> 1.03^2 = 1.0609

SEE ALSO:
  - formulation.go: the weighted ratio math this mirrors
  - aggregate.go: resolves which policy applies to a line
*/
package pricing

import (
	"context"

	"github.com/shopspring/decimal"
)

// EscalationEngine computes policy multipliers against an index accessor.
type EscalationEngine struct {
	Policies PolicyReader
	Index    *IndexAccessor
}

func NewEscalationEngine(policies PolicyReader, index *IndexAccessor) *EscalationEngine {
	return &EscalationEngine{Policies: policies, Index: index}
}

// Multiplier loads the policy and computes its multiplier for m.
func (e *EscalationEngine) Multiplier(ctx context.Context, id PolicyID, m Month) (decimal.Decimal, error) {
	p, err := e.Policies.GetPolicy(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return e.MultiplierOf(ctx, p, m)
}

// MultiplierOf computes the multiplier of an already loaded policy for m.
// A nil policy or a policy with no configured mode yields 1.
func (e *EscalationEngine) MultiplierOf(ctx context.Context, p *EscalationPolicy, m Month) (decimal.Decimal, error) {
	if p == nil || p.Mode == nil {
		return decimalOne, nil
	}

	var mult decimal.Decimal
	switch mode := p.Mode.(type) {
	case RateMode:
		mult = rateMultiplier(mode, p.Start, m)
	case IndexMode:
		var err error
		mult, err = e.indexMultiplier(ctx, p, mode, m)
		if err != nil {
			return decimal.Zero, err
		}
	default:
		return decimal.Zero, &ConfigError{Kind: "escalation_policy", ID: string(p.ID), Reason: "unknown mode"}
	}

	return clamp(mult, p.FloorPct, p.CapPct), nil
}

func rateMultiplier(mode RateMode, start, target Month) decimal.Decimal {
	elapsed := MonthsBetween(start, target)
	n := elapsed / mode.Frequency.MonthsPerPeriod()
	if n <= 0 {
		return decimalOne
	}

	if mode.Compounding == CompoundingSimple {
		return decimalOne.Add(mode.Rate.Mul(decimal.NewFromInt(int64(n))))
	}
	return decimalOne.Add(mode.Rate).Pow(decimal.NewFromInt(int64(n)))
}

func (e *EscalationEngine) indexMultiplier(ctx context.Context, p *EscalationPolicy, mode IndexMode, m Month) (decimal.Decimal, error) {
	if len(mode.Components) == 0 {
		return decimal.Zero, &ConfigError{Kind: "escalation_policy", ID: string(p.ID), Reason: "index mode with no components"}
	}

	mult := decimal.Zero
	for _, c := range mode.Components {
		cur, err := e.Index.ValueAtOrBefore(ctx, c.SeriesID, m)
		if err != nil {
			return decimal.Zero, err
		}

		base, err := e.componentBase(ctx, c, cur)
		if err != nil {
			return decimal.Zero, err
		}
		if base.IsZero() {
			return decimal.Zero, &ConfigError{
				Kind: "escalation_policy", ID: string(p.ID),
				Reason: "component " + string(c.SeriesID) + " has zero base value",
			}
		}

		weight := Ratio(c.WeightPct, decimalHundred)
		mult = mult.Add(Ratio(cur, base).Mul(weight))
	}
	return mult, nil
}

// componentBase resolves the base in declared order: explicit value, value
// at the base month, else the current value (neutral ratio).
func (e *EscalationEngine) componentBase(ctx context.Context, c EscalationComponent, cur decimal.Decimal) (decimal.Decimal, error) {
	if c.BaseValue != nil {
		return *c.BaseValue, nil
	}
	if c.BaseMonth != nil {
		return e.Index.ValueAtOrBefore(ctx, c.SeriesID, *c.BaseMonth)
	}
	return cur, nil
}

// clamp bounds a multiplier to [1+floor/100, 1+cap/100].
func clamp(mult decimal.Decimal, floorPct, capPct *decimal.Decimal) decimal.Decimal {
	if floorPct != nil {
		lo := decimalOne.Add(Ratio(*floorPct, decimalHundred))
		if mult.LessThan(lo) {
			mult = lo
		}
	}
	if capPct != nil {
		hi := decimalOne.Add(Ratio(*capPct, decimalHundred))
		if mult.GreaterThan(hi) {
			mult = hi
		}
	}
	return mult
}
