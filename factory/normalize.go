package factory

import (
	"github.com/shopspring/decimal"

	"github.com/warp/bizcase-engine/pricing"
)

// hundredUnits is 100 percent expressed in 0.0001 units, the resolution
// weights are normalized at (the documented 100 +/- 0.0001 tolerance).
const hundredUnits = int64(100 * 10000)

// NormalizeWeights scales raw component weights so they sum to exactly 100
// at 4 decimal places. The rounding remainder is distributed
// deterministically: normalized weights are truncated to 4dp, then the
// leftover 0.0001 units go to the components with the largest truncated
// fractional parts, earlier components winning ties. The loop is bounded by
// the component count.
func NormalizeWeights(weights []decimal.Decimal) ([]decimal.Decimal, error) {
	if len(weights) == 0 {
		return nil, &pricing.ConfigError{Kind: "weights", ID: "", Reason: "no components to normalize"}
	}

	sum := decimal.Zero
	for _, w := range weights {
		if w.IsNegative() {
			return nil, &pricing.ConfigError{Kind: "weights", ID: "", Reason: "negative weight " + w.String()}
		}
		sum = sum.Add(w)
	}
	if !sum.IsPositive() {
		return nil, &pricing.ConfigError{Kind: "weights", ID: "", Reason: "weights sum to zero"}
	}

	// Scale to percent-of-100 at full precision, then truncate to whole
	// 0.0001 units, remembering each truncation loss.
	hundred := decimal.NewFromInt(100)
	units := make([]int64, len(weights))
	fractions := make([]decimal.Decimal, len(weights))
	var total int64
	for i, w := range weights {
		scaled := w.Mul(hundred).DivRound(sum, 28)
		inUnits := scaled.Mul(decimal.NewFromInt(10000))
		floor := inUnits.Floor()
		units[i] = floor.IntPart()
		fractions[i] = inUnits.Sub(floor)
		total += units[i]
	}

	// Hand out the missing units by largest fractional part, in component
	// order on ties. remainder < len(weights) by construction.
	remainder := hundredUnits - total
	for ; remainder > 0; remainder-- {
		best := -1
		for i, f := range fractions {
			if best == -1 || f.GreaterThan(fractions[best]) {
				best = i
			}
		}
		units[best]++
		fractions[best] = decimal.NewFromInt(-1) // never picked twice
	}

	out := make([]decimal.Decimal, len(weights))
	for i, u := range units {
		out[i] = decimal.New(u, -4)
	}
	return out, nil
}
