/*
presets.go - Pre-built escalation and rebate configurations

PURPOSE:
  Ready-to-use configurations for the commercial terms that appear in almost
  every business case. These are starting points; real deals tune the caps,
  windows and ladders.

AVAILABLE PRESETS:
  FixedRateEscalation:  flat rate stepped at a frequency (e.g. 3% annual)
  IndexLinkedEscalation: single-series rise-and-fall against a base month
  FlatRebate:           single percentage of revenue, stored as one
                        unbounded tier
  VolumeLadderRebate:   tiered percentage ladder over revenue breakpoints
  AnnualBonusLump:      fixed amount due in a specific month

EXAMPLE:
  policy := factory.FixedRateEscalation("esc-3pct", "3% annual",
      factory.Percent(3), pricing.EscalateAnnually,
      pricing.CompoundingCompound, pricing.NewMonth(2025, time.January))

SEE ALSO:
  - config.go: the JSON construction path these bypass
*/
package factory

import (
	"github.com/shopspring/decimal"

	"github.com/warp/bizcase-engine/pricing"
)

// Percent builds the decimal form of a percentage literal.
func Percent(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// =============================================================================
// ESCALATION PRESETS
// =============================================================================

// FixedRateEscalation returns a rate-based price escalation policy.
func FixedRateEscalation(id pricing.PolicyID, name string, ratePct decimal.Decimal, freq pricing.EscalationFrequency, compounding pricing.Compounding, start pricing.Month) pricing.EscalationPolicy {
	return pricing.EscalationPolicy{
		ID:    id,
		Name:  name,
		Scope: pricing.AppliesToPrice,
		Start: start,
		Mode: pricing.RateMode{
			Rate:        ratePct.DivRound(decimal.NewFromInt(100), 28),
			Frequency:   freq,
			Compounding: compounding,
		},
	}
}

// IndexLinkedEscalation returns a single-series rise-and-fall policy: the
// multiplier is the series value relative to its value at baseMonth.
func IndexLinkedEscalation(id pricing.PolicyID, name string, series pricing.SeriesID, baseMonth, start pricing.Month) pricing.EscalationPolicy {
	return pricing.EscalationPolicy{
		ID:    id,
		Name:  name,
		Scope: pricing.AppliesToBoth,
		Start: start,
		Mode: pricing.IndexMode{
			Components: []pricing.EscalationComponent{{
				SeriesID:  series,
				WeightPct: decimal.NewFromInt(100),
				BaseMonth: &baseMonth,
			}},
		},
	}
}

// =============================================================================
// REBATE PRESETS
// =============================================================================

// FlatRebate returns a flat percent-of-revenue rebate: one unbounded tier.
func FlatRebate(id pricing.RebateID, name string, pct decimal.Decimal, lagMonths int) pricing.Rebate {
	return pricing.Rebate{
		ID:          id,
		Name:        name,
		Scope:       pricing.RebateScopeAll,
		Kind:        pricing.RebatePercent,
		Basis:       pricing.BasisRevenue,
		Method:      pricing.AccrueMonthly,
		Active:      true,
		PayMonthLag: lagMonths,
		Tiers: []pricing.RebateTier{{
			MinValue: decimal.Zero,
			ValuePct: &pct,
		}},
	}
}

// LadderStep is one rung of a volume ladder: [From, To) mapping to Pct.
// A nil To leaves the final rung unbounded.
type LadderStep struct {
	From decimal.Decimal
	To   *decimal.Decimal
	Pct  decimal.Decimal
}

// VolumeLadderRebate returns a tiered-percent rebate over revenue
// breakpoints, resolved first-match in rung order.
func VolumeLadderRebate(id pricing.RebateID, name string, steps []LadderStep, lagMonths int) pricing.Rebate {
	r := pricing.Rebate{
		ID:          id,
		Name:        name,
		Scope:       pricing.RebateScopeAll,
		Kind:        pricing.RebateTieredPercent,
		Basis:       pricing.BasisRevenue,
		Method:      pricing.AccrueMonthly,
		Active:      true,
		PayMonthLag: lagMonths,
	}
	for _, s := range steps {
		pct := s.Pct
		r.Tiers = append(r.Tiers, pricing.RebateTier{
			MinValue: s.From,
			MaxValue: s.To,
			ValuePct: &pct,
		})
	}
	return r
}

// AnnualBonusLump returns a lump-sum rebate due in one month, paid lagMonths
// later.
func AnnualBonusLump(id pricing.RebateID, name string, due pricing.Month, amount decimal.Decimal, lagMonths int) pricing.Rebate {
	return pricing.Rebate{
		ID:          id,
		Name:        name,
		Scope:       pricing.RebateScopeAll,
		Kind:        pricing.RebateLumpSum,
		Basis:       pricing.BasisRevenue,
		Method:      pricing.AccrueMonthly,
		Active:      true,
		PayMonthLag: lagMonths,
		Lumps:       []pricing.RebateLump{{Month: due, Amount: amount}},
	}
}
