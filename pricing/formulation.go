/*
formulation.go - Formulation pricing engine

PURPOSE:
  Computes a price multiplier (the "factor") from a weighted basket of index
  ratios for a product recipe, and from it the point-in-time product price.

THE MATH:
  factor = sum over components of (current / base) * weight/100

  - current is the exact index value at the target month. Formulation pricing
    never falls back to older points: a missing point is an error, because a
    silently stale ratio would misprice the product.
  - base is the component's explicit base reference value; when absent the
    current value itself is used, so the component contributes a neutral
    ratio of 1 at its configured weight.
  - weights were normalized to sum to 100 when the formulation was written.

  price = basePrice * factor, rounded half-up to 2dp at the final step only.
  Intermediate ratios keep full working precision.

EXAMPLE:
  Components: steel 60% (base 100), energy 40% (base 50)
  At 2025-03: steel=110, energy=55
  factor = 110/100*0.6 + 55/50*0.4 = 0.66 + 0.44 = 1.10
  price  = basePrice * 1.10

SEE ALSO:
  - index.go: the exact-match accessor variant
  - escalation.go: the sibling engine with fallback lookups
*/
package pricing

import (
	"context"

	"github.com/shopspring/decimal"
)

// FormulationEngine prices formulations against an index accessor.
type FormulationEngine struct {
	Formulations FormulationReader
	Index        *IndexAccessor
}

func NewFormulationEngine(formulations FormulationReader, index *IndexAccessor) *FormulationEngine {
	return &FormulationEngine{Formulations: formulations, Index: index}
}

// Factor loads the formulation and computes its weighted index factor for m.
func (e *FormulationEngine) Factor(ctx context.Context, id FormulationID, m Month) (decimal.Decimal, error) {
	f, err := e.Formulations.GetFormulation(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return e.FactorOf(ctx, f, m)
}

// FactorOf computes the weighted index factor of an already loaded
// formulation for m. A formulation with zero components is invalid.
func (e *FormulationEngine) FactorOf(ctx context.Context, f *Formulation, m Month) (decimal.Decimal, error) {
	if len(f.Components) == 0 {
		return decimal.Zero, &ConfigError{Kind: "formulation", ID: string(f.ID), Reason: "no components"}
	}

	factor := decimal.Zero
	for _, c := range f.Components {
		cur, err := e.Index.ValueAt(ctx, c.SeriesID, m)
		if err != nil {
			return decimal.Zero, err
		}

		base := cur
		if c.BaseValue != nil {
			base = *c.BaseValue
		}
		if base.IsZero() {
			return decimal.Zero, &ConfigError{
				Kind: "formulation", ID: string(f.ID),
				Reason: "component " + string(c.SeriesID) + " has zero base value",
			}
		}

		weight := Ratio(c.WeightPct, decimalHundred)
		factor = factor.Add(Ratio(cur, base).Mul(weight))
	}
	return factor, nil
}

// Price computes basePrice * factor rounded to money precision. This is the
// standalone price operation; the aggregator composes the unrounded factor
// with escalation and rounds once at the end instead.
func (e *FormulationEngine) Price(ctx context.Context, id FormulationID, m Month) (decimal.Decimal, error) {
	f, err := e.Formulations.GetFormulation(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	factor, err := e.FactorOf(ctx, f, m)
	if err != nil {
		return decimal.Zero, err
	}
	return RoundMoney(f.BasePrice.Mul(factor)), nil
}
