/*
index.go - Index store accessor

PURPOSE:
  Resolves reference series values for a (series, year, month) key. Two
  variants exist and the distinction matters:

  - ValueAt: exact match only. Used by formulation factor computation, which
    must error rather than silently misprice against a stale value.
  - ValueAtOrBefore: falls back to the latest known point at or before the
    target month. Used by escalation / rise-and-fall lookups, where the most
    recent published value is the correct reference.

SEE ALSO:
  - formulation.go: exact lookups
  - escalation.go: fallback lookups
*/
package pricing

import (
	"context"

	"github.com/shopspring/decimal"
)

// IndexAccessor answers point-in-time index value questions against a reader.
type IndexAccessor struct {
	Reader IndexReader
}

func NewIndexAccessor(r IndexReader) *IndexAccessor {
	return &IndexAccessor{Reader: r}
}

// ValueAt returns the value at exactly (series, m). Absent points are a
// *MissingDataError; there is no fallback.
func (a *IndexAccessor) ValueAt(ctx context.Context, series SeriesID, m Month) (decimal.Decimal, error) {
	return a.Reader.GetPoint(ctx, series, m)
}

// ValueAtOrBefore returns the latest known value with month <= m. Only when
// the series has no point at or before m at all does it fail, with a
// *MissingDataError.
func (a *IndexAccessor) ValueAtOrBefore(ctx context.Context, series SeriesID, m Month) (decimal.Decimal, error) {
	p, err := a.Reader.LatestPoint(ctx, series, m)
	if err != nil {
		return decimal.Zero, err
	}
	return p.Value, nil
}
