/*
aggregate.go - Scenario monthly aggregator

PURPOSE:
  Orchestrates the index accessor, formulation engine, escalation engine,
  schedule expander and rebate engine across every line and rule in a
  scenario, producing per-month P&L rows and cumulative totals.

ROW SHAPE:
  {revenue, cogs, rebates_contra, gross_margin, overheads,
   capex_depreciation, fx, tax, net}

  Overheads, capex depreciation, fx and tax are zero-filled placeholders
  reserved for future extension; consumers rely on the fields being present.

STRICT VS ISSUES:
  strict=true (the default posture): the first error aborts the whole
  month-range computation.
  strict=false: errors are downgraded into per-line/per-rule issue entries
  and pricing continues for unaffected lines. Nothing is silently swallowed.

POLICY RESOLUTION:
  The effective escalation policy of a line is resolved once, up front:
  the line's own policy when set, else the scenario default, else none.
  Sub-components receive the resolved policy rather than re-querying
  defaults.

SEE ALSO:
  - rebate.go: receives its revenue basis from the totals computed here
  - output/: renders Result as table, CSV, JSON or XLSX
*/
package pricing

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// MonthlyRow is one month of the scenario P&L.
type MonthlyRow struct {
	Month             Month
	Revenue           decimal.Decimal
	COGS              decimal.Decimal
	RebatesContra     decimal.Decimal
	GrossMargin       decimal.Decimal
	Overheads         decimal.Decimal
	CapexDepreciation decimal.Decimal
	FX                decimal.Decimal
	Tax               decimal.Decimal
	Net               decimal.Decimal
}

func (r *MonthlyRow) add(other MonthlyRow) {
	r.Revenue = r.Revenue.Add(other.Revenue)
	r.COGS = r.COGS.Add(other.COGS)
	r.RebatesContra = r.RebatesContra.Add(other.RebatesContra)
	r.GrossMargin = r.GrossMargin.Add(other.GrossMargin)
	r.Overheads = r.Overheads.Add(other.Overheads)
	r.CapexDepreciation = r.CapexDepreciation.Add(other.CapexDepreciation)
	r.FX = r.FX.Add(other.FX)
	r.Tax = r.Tax.Add(other.Tax)
	r.Net = r.Net.Add(other.Net)
}

// derive fills the computed fields from the accumulated ones.
func (r *MonthlyRow) derive() {
	r.GrossMargin = r.Revenue.Add(r.RebatesContra).Sub(r.COGS)
	r.Net = r.GrossMargin.Sub(r.Overheads).Sub(r.CapexDepreciation).Add(r.FX).Sub(r.Tax)
}

// CashEffect is a rebate payment landing in a month, offset from its accrual
// by the rule's payment lag.
type CashEffect struct {
	RebateID RebateID
	Month    Month
	Amount   decimal.Decimal
}

// Issue is a downgraded per-line/per-rule error collected in non-strict mode.
type Issue struct {
	ID      string
	Source  string
	Message string
}

// Result is the aggregator's output for one scenario and range.
type Result struct {
	ScenarioID ScenarioID
	Range      MonthRange
	Mode       EvaluationMode

	Rows  []MonthlyRow
	Total MonthlyRow
	Cash  []CashEffect

	Issues []Issue
}

// LinePreview prices a single line at a target month.
type LinePreview struct {
	BasePrice            decimal.Decimal
	FormulationFactor    decimal.Decimal
	EscalationMultiplier decimal.Decimal
	UnitPrice            decimal.Decimal
	Quantity             decimal.Decimal
	LineTotal            decimal.Decimal
	Currency             string
}

// ComputeRequest describes one aggregation run.
type ComputeRequest struct {
	ScenarioID ScenarioID

	// Range overrides the scenario's default window when set.
	Range *MonthRange

	// Mode defaults to monthly.
	Mode EvaluationMode

	// Strict aborts on the first error instead of collecting issues.
	Strict bool
}

// DefaultComputeRequest is the documented default posture: the scenario's
// own window, monthly evaluation, strict.
func DefaultComputeRequest(id ScenarioID) ComputeRequest {
	return ComputeRequest{ScenarioID: id, Mode: ModeMonthly, Strict: true}
}

// =============================================================================
// AGGREGATOR
// =============================================================================

type Aggregator struct {
	store        Reader
	formulations *FormulationEngine
	escalation   *EscalationEngine
	rebates      *RebateEngine
	log          *zap.Logger
}

// NewAggregator wires the component engines over a single reader. A nil
// logger disables logging.
func NewAggregator(r Reader, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	index := NewIndexAccessor(r)
	return &Aggregator{
		store:        r,
		formulations: NewFormulationEngine(r, index),
		escalation:   NewEscalationEngine(r, index),
		rebates:      NewRebateEngine(),
		log:          logger,
	}
}

// Compute loads the scenario and aggregates it per the request.
func (a *Aggregator) Compute(ctx context.Context, req ComputeRequest) (*Result, error) {
	s, err := a.store.GetScenario(ctx, req.ScenarioID)
	if err != nil {
		return nil, err
	}

	rng := s.Window()
	if req.Range != nil {
		rng = *req.Range
	}
	return a.ComputeScenario(ctx, s, rng, req.Mode, req.Strict)
}

// ComputePortfolio computes several requests concurrently. Each computation
// is independent and only reads configuration, so this is safe by
// construction. Results keep the input order.
func (a *Aggregator) ComputePortfolio(ctx context.Context, reqs []ComputeRequest, maxConcurrent int) ([]*Result, error) {
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	results := make([]*Result, len(reqs))
	for i, req := range reqs {
		i, req := i, req // per-iteration copies; go.mod pins go 1.21 (pre-loopvar)
		g.Go(func() error {
			res, err := a.Compute(ctx, req)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// pricedLine is a line with its references resolved once, up front.
type pricedLine struct {
	line        *Line
	formulation *Formulation
	policy      *EscalationPolicy
}

// monthBasis accumulates the scoped revenue a month's rebates resolve against.
type monthBasis struct {
	boq       decimal.Decimal
	byProduct map[ProductID]decimal.Decimal
}

// issueCollector downgrades errors into issues in non-strict mode,
// de-duplicating repeats of the same source+message (a line missing an index
// point fails identically every month).
type issueCollector struct {
	strict bool
	issues []Issue
	seen   map[string]bool
}

func newIssueCollector(strict bool) *issueCollector {
	return &issueCollector{strict: strict, seen: make(map[string]bool)}
}

// collect returns err unchanged in strict mode, else records it as an issue
// and returns nil.
func (c *issueCollector) collect(source string, err error) error {
	if c.strict {
		return err
	}
	key := source + "\x00" + err.Error()
	if !c.seen[key] {
		c.seen[key] = true
		c.issues = append(c.issues, Issue{
			ID:      uuid.New().String(),
			Source:  source,
			Message: err.Error(),
		})
	}
	return nil
}

// ComputeScenario aggregates an already loaded scenario over rng.
func (a *Aggregator) ComputeScenario(ctx context.Context, s *Scenario, rng MonthRange, mode EvaluationMode, strict bool) (*Result, error) {
	if mode == "" {
		mode = ModeMonthly
	}
	if rng.To.Before(rng.From) {
		return nil, ErrInvalidRange
	}

	a.log.Debug("computing scenario",
		zap.String("scenario", string(s.ID)),
		zap.String("range", rng.String()),
		zap.String("mode", string(mode)),
		zap.Bool("strict", strict),
		zap.Int("lines", len(s.Lines)),
		zap.Int("rebates", len(s.Rebates)))

	issues := newIssueCollector(strict)

	// Resolve formulation and effective policy per line once.
	lines, err := a.resolveLines(ctx, s, issues)
	if err != nil {
		return nil, err
	}

	// Price every line for every month it is active in.
	months := rng.Months()
	rows := make([]MonthlyRow, len(months))
	basisByMonth := make(map[Month]*monthBasis, len(months))
	for i, m := range months {
		rows[i].Month = m
		basis := &monthBasis{byProduct: make(map[ProductID]decimal.Decimal)}
		basisByMonth[m] = basis

		for _, pl := range lines {
			if !pl.line.ActiveIn(m) {
				continue
			}

			revenue, cogs, err := a.priceLine(ctx, pl, m)
			if err != nil {
				if err = issues.collect("line "+string(pl.line.ID), err); err != nil {
					return nil, err
				}
				continue
			}

			rows[i].Revenue = rows[i].Revenue.Add(revenue)
			rows[i].COGS = rows[i].COGS.Add(cogs)
			if pl.line.Kind == LineBOQ {
				basis.boq = basis.boq.Add(revenue)
				if pl.line.ProductID != "" {
					basis.byProduct[pl.line.ProductID] = basis.byProduct[pl.line.ProductID].Add(revenue)
				}
			}
		}
	}

	// Rebates resolve against the revenue computed above. Rules are
	// evaluated one at a time so a broken rule only fails itself.
	basisFn := func(_ context.Context, scope RebateScope, product ProductID, m Month) (decimal.Decimal, error) {
		b, ok := basisByMonth[m]
		if !ok {
			return decimal.Zero, nil
		}
		if scope == RebateScopeProduct {
			return b.byProduct[product], nil
		}
		// all and boq both sum BOQ revenue while the services basis
		// remains a placeholder.
		return b.boq, nil
	}

	cash := make([]CashEffect, 0)
	for ri := range s.Rebates {
		accruals, err := a.rebates.Accruals(ctx, s.Rebates[ri:ri+1], rng, mode, basisFn)
		if err != nil {
			if err = issues.collect("rebate "+string(s.Rebates[ri].ID), err); err != nil {
				return nil, err
			}
			continue
		}
		for _, acc := range accruals {
			rows[MonthsBetween(rng.From, acc.Month)].RebatesContra =
				rows[MonthsBetween(rng.From, acc.Month)].RebatesContra.Add(acc.Amount)
			cash = append(cash, CashEffect{RebateID: acc.RebateID, Month: acc.CashMonth, Amount: acc.Amount})
		}
	}
	sort.SliceStable(cash, func(i, j int) bool { return cash[i].Month.Before(cash[j].Month) })

	// Derive margins and the running total.
	result := &Result{
		ScenarioID: s.ID,
		Range:      rng,
		Mode:       mode,
		Rows:       rows,
		Cash:       cash,
		Issues:     issues.issues,
	}
	for i := range rows {
		rows[i].derive()
		result.Total.add(rows[i])
	}

	if len(result.Issues) > 0 {
		a.log.Warn("scenario computed with issues",
			zap.String("scenario", string(s.ID)),
			zap.Int("issues", len(result.Issues)))
	}
	return result, nil
}

// PreviewLine prices one line at a target month, regardless of its schedule.
// Errors propagate directly; there is no issues mode for previews.
func (a *Aggregator) PreviewLine(ctx context.Context, line Line, defaultPolicyID *PolicyID, m Month) (*LinePreview, error) {
	pl, err := a.resolveLine(ctx, &line, defaultPolicyID)
	if err != nil {
		return nil, err
	}

	basePrice := line.UnitPrice
	factor := decimalOne
	if pl.formulation != nil {
		basePrice = pl.formulation.BasePrice
		if factor, err = a.formulations.FactorOf(ctx, pl.formulation, m); err != nil {
			return nil, err
		}
	}

	mult := decimalOne
	if pl.policy != nil && pl.policy.Scope.CoversPrice() {
		if mult, err = a.escalation.MultiplierOf(ctx, pl.policy, m); err != nil {
			return nil, err
		}
	}

	unit := RoundMoney(basePrice.Mul(factor).Mul(mult))
	return &LinePreview{
		BasePrice:            basePrice,
		FormulationFactor:    factor,
		EscalationMultiplier: mult,
		UnitPrice:            unit,
		Quantity:             line.Quantity,
		LineTotal:            RoundMoney(unit.Mul(line.Quantity)),
		Currency:             line.Currency,
	}, nil
}

// resolveLines prefetches each line's formulation and effective policy.
// Lines that fail to resolve are dropped in non-strict mode.
func (a *Aggregator) resolveLines(ctx context.Context, s *Scenario, issues *issueCollector) ([]pricedLine, error) {
	lines := make([]pricedLine, 0, len(s.Lines))
	for i := range s.Lines {
		pl, err := a.resolveLine(ctx, &s.Lines[i], s.DefaultPolicyID)
		if err != nil {
			if err = issues.collect("line "+string(s.Lines[i].ID), err); err != nil {
				return nil, err
			}
			continue
		}
		lines = append(lines, pl)
	}
	return lines, nil
}

func (a *Aggregator) resolveLine(ctx context.Context, line *Line, defaultPolicyID *PolicyID) (pricedLine, error) {
	pl := pricedLine{line: line}

	if line.FormulationID != nil {
		f, err := a.store.GetFormulation(ctx, *line.FormulationID)
		if err != nil {
			return pricedLine{}, err
		}
		pl.formulation = f
	}

	policyID := line.PolicyID
	if policyID == nil {
		policyID = defaultPolicyID
	}
	if policyID != nil {
		p, err := a.store.GetPolicy(ctx, *policyID)
		if err != nil {
			return pricedLine{}, err
		}
		pl.policy = p
	}
	return pl, nil
}

// priceLine computes one line's revenue and cogs contribution for m. The
// unit price is rounded once, after formulation and escalation compose.
func (a *Aggregator) priceLine(ctx context.Context, pl pricedLine, m Month) (revenue, cogs decimal.Decimal, err error) {
	basePrice := pl.line.UnitPrice
	factor := decimalOne
	if pl.formulation != nil {
		basePrice = pl.formulation.BasePrice
		if factor, err = a.formulations.FactorOf(ctx, pl.formulation, m); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
	}

	priceMult, costMult := decimalOne, decimalOne
	if pl.policy != nil {
		mult, err := a.escalation.MultiplierOf(ctx, pl.policy, m)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		if pl.policy.Scope.CoversPrice() {
			priceMult = mult
		}
		if pl.policy.Scope.CoversCost() {
			costMult = mult
		}
	}

	unitPrice := RoundMoney(basePrice.Mul(factor).Mul(priceMult))
	unitCost := RoundMoney(pl.line.UnitCost.Mul(costMult))
	revenue = RoundMoney(unitPrice.Mul(pl.line.Quantity))
	cogs = RoundMoney(unitCost.Mul(pl.line.Quantity))
	return revenue, cogs, nil
}
