/*
rebate.go - Rebate accrual engine

PURPOSE:
  For each active rebate rule and month in a requested range, resolves the
  rule's basis value, the applicable percentage or amount, and emits the
  accrual together with its lagged cash effect.

RESOLUTION RULES:
  - Rules outside their validity window (inclusive bounds when present) or
    marked inactive are skipped.
  - Basis: only revenue is computed. The services scope and the volume and
    margin bases are declared placeholders that resolve to zero in this
    release. Product scope filters the revenue basis by product id.
  - percent kind: the first tier's percentage applies unconditionally (a
    flat percent rule is stored as one unbounded tier).
  - tiered_percent kind: first tier whose [min, max) contains the value wins,
    in tier order. In ytd mode the value is the running cumulative basis over
    the requested range; prior months are never re-stated when the cumulative
    crosses a tier boundary.
  - lump_sum kind: the configured amount accrues only in its exact month.

SIGNS AND TIMING:
  Accruals are contra-revenue and therefore negative. The cash effect lands
  PayMonthLag months after the accrual month; a lag of 0 pays in the accrual
  month itself.

SEE ALSO:
  - aggregate.go: supplies the BasisFunc from computed line revenue
*/
package pricing

import (
	"context"

	"github.com/shopspring/decimal"
)

// BasisFunc resolves the revenue basis for a scope in a given month. The
// aggregator supplies one backed by the same computed line totals it reports,
// so a percent rebate always matches reported revenue.
type BasisFunc func(ctx context.Context, scope RebateScope, product ProductID, m Month) (decimal.Decimal, error)

// RebateAccrual is one rule's effect in one month.
type RebateAccrual struct {
	RebateID RebateID
	Month    Month

	// Amount is the contra-revenue accrual, always <= 0.
	Amount decimal.Decimal

	// CashMonth is Month shifted by the rule's payment lag.
	CashMonth Month

	Basis       decimal.Decimal
	ResolvedPct decimal.Decimal
}

// RebateEngine evaluates rebate rules over month ranges.
type RebateEngine struct{}

func NewRebateEngine() *RebateEngine {
	return &RebateEngine{}
}

// Accruals evaluates every rule over rng and returns the accruals in month
// order, rules in input order within a month. Months with a zero accrual are
// omitted.
func (e *RebateEngine) Accruals(ctx context.Context, rebates []Rebate, rng MonthRange, mode EvaluationMode, basis BasisFunc) ([]RebateAccrual, error) {
	if mode == "" {
		mode = ModeMonthly
	}

	// YTD accumulators are scoped to this call and discarded afterward.
	cumulative := make(map[RebateID]decimal.Decimal, len(rebates))

	var out []RebateAccrual
	for _, m := range rng.Months() {
		for i := range rebates {
			r := &rebates[i]
			if !r.AppliesIn(m) {
				continue
			}

			acc, err := e.accrueMonth(ctx, r, m, mode, basis, cumulative)
			if err != nil {
				return nil, err
			}
			if acc == nil || acc.Amount.IsZero() {
				continue
			}
			out = append(out, *acc)
		}
	}
	return out, nil
}

// AppliesIn reports whether the rule is active and m falls inside its
// validity window.
func (r *Rebate) AppliesIn(m Month) bool {
	if !r.Active {
		return false
	}
	if r.ValidFrom != nil && m.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidTo != nil && m.After(*r.ValidTo) {
		return false
	}
	return true
}

func (e *RebateEngine) accrueMonth(ctx context.Context, r *Rebate, m Month, mode EvaluationMode, basis BasisFunc, cumulative map[RebateID]decimal.Decimal) (*RebateAccrual, error) {
	if r.Kind == RebateLumpSum {
		return e.accrueLump(r, m), nil
	}

	base, err := e.resolveBasis(ctx, r, m, basis)
	if err != nil {
		return nil, err
	}

	// Tier matching value: the month's own basis, or the running cumulative.
	matchValue := base
	if mode == ModeYTD {
		cum := cumulative[r.ID].Add(base)
		cumulative[r.ID] = cum
		matchValue = cum
	}

	tier, ok := e.resolveTier(r, matchValue)
	if !ok {
		return nil, nil
	}

	acc := &RebateAccrual{
		RebateID:  r.ID,
		Month:     m,
		CashMonth: m.AddMonths(r.PayMonthLag),
		Basis:     base,
	}
	switch {
	case tier.ValuePct != nil:
		acc.ResolvedPct = *tier.ValuePct
		acc.Amount = RoundMoney(base.Mul(Ratio(*tier.ValuePct, decimalHundred))).Neg()
	case tier.AmountFlat != nil:
		acc.Amount = RoundMoney(*tier.AmountFlat).Neg()
	default:
		return nil, &ConfigError{Kind: "rebate", ID: string(r.ID), Reason: "tier has neither percentage nor amount"}
	}
	return acc, nil
}

func (e *RebateEngine) accrueLump(r *Rebate, m Month) *RebateAccrual {
	total := decimal.Zero
	for _, l := range r.Lumps {
		if l.Month.Equal(m) {
			total = total.Add(l.Amount)
		}
	}
	if total.IsZero() {
		return nil
	}
	return &RebateAccrual{
		RebateID:  r.ID,
		Month:     m,
		Amount:    RoundMoney(total).Neg(),
		CashMonth: m.AddMonths(r.PayMonthLag),
	}
}

// resolveBasis maps the rule's declared basis and scope onto a value.
// Volume and margin bases, and the services scope, are the documented zero
// placeholders.
func (e *RebateEngine) resolveBasis(ctx context.Context, r *Rebate, m Month, basis BasisFunc) (decimal.Decimal, error) {
	if r.Basis != "" && r.Basis != BasisRevenue {
		return decimal.Zero, nil
	}
	if r.Scope == RebateScopeServices {
		return decimal.Zero, nil
	}
	if basis == nil {
		return decimal.Zero, nil
	}
	return basis(ctx, r.Scope, r.ProductID, m)
}

// resolveTier picks the percentage/amount tier for a value.
func (e *RebateEngine) resolveTier(r *Rebate, value decimal.Decimal) (RebateTier, bool) {
	if len(r.Tiers) == 0 {
		return RebateTier{}, false
	}

	// Flat percent rules use their first tier unconditionally.
	if r.Kind == RebatePercent {
		return r.Tiers[0], true
	}

	for _, t := range r.Tiers {
		if t.Contains(value) {
			return t, true
		}
	}
	return RebateTier{}, false
}
