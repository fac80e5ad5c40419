/*
Package pricing implements the business-case computation engine.

PURPOSE:
  This package turns static commercial configuration (reference index values,
  formulation recipes, escalation policies, rebate rules, line schedules) into
  point-in-time unit prices and month-by-month revenue/cost/accrual figures.
  It is a pure computation layer: it reads configuration through narrow store
  interfaces and never mutates anything.

KEY CONCEPTS IN THIS FILE (types.go):
  - IndexSeries/IndexPoint: a named reference time series and its monthly values
  - Formulation: a product price expressed as a weighted blend of index ratios
  - EscalationPolicy: a time-based multiplier (fixed rate or index-linked)
  - Rebate: a contra-revenue rule (percent, tiered percent, or lump sum)
  - Scenario/Line: the bill-of-quantity and service lines being projected

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere; division carries 28 digits and
     money is rounded half-up to 2dp exactly once, at the end.
  2. Type safety: strong ID types; the escalation mode is a tagged variant so
     "rate and index both set" cannot be represented.
  3. Determinism: identical inputs produce identical decimals; no clocks,
     no caching, no shared state.

SEE ALSO:
  - formulation.go / escalation.go / rebate.go: the three pricing engines
  - schedule.go: expands line frequency+duration into active months
  - aggregate.go: the scenario-level monthly aggregator and line preview
  - store.go: read interfaces the engines consume
*/
package pricing

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// DECIMAL CONVENTIONS
// =============================================================================

// ratioPrecision is the number of decimal digits carried through ratio and
// multiplier arithmetic. Money is only rounded at the final step.
const ratioPrecision = 28

var (
	decimalOne     = decimal.NewFromInt(1)
	decimalHundred = decimal.NewFromInt(100)
)

// Ratio divides cur by base at full working precision.
func Ratio(cur, base decimal.Decimal) decimal.Decimal {
	return cur.DivRound(base, ratioPrecision)
}

// RoundMoney rounds a monetary amount half-up to 2 decimal places. This is
// the only rounding the engine performs.
func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SeriesID string
type FormulationID string
type PolicyID string
type RebateID string
type ScenarioID string
type LineID string
type ProductID string

// =============================================================================
// INDEX SERIES & POINTS
// =============================================================================

// IndexSeries is a named reference series (e.g. a commodity or CPI index).
// Points are keyed (series, year, month), unique per key, upsert-only.
type IndexSeries struct {
	ID       SeriesID
	Code     string
	Name     string
	Unit     string
	Currency string
}

type IndexPoint struct {
	SeriesID SeriesID
	Month    Month
	Value    decimal.Decimal
}

// =============================================================================
// FORMULATION - Weighted index basket pricing a product
// =============================================================================

type Formulation struct {
	ID        FormulationID
	ProductID ProductID
	Name      string
	BasePrice decimal.Decimal
	Currency  string

	// Components are ordered; weights are normalized to sum to 100 on write.
	Components []FormulationComponent

	// Archived formulations must not be newly attached to lines but keep
	// pricing lines that already reference them.
	Archived   bool
	Version    int
	ClonedFrom *FormulationID
}

type FormulationComponent struct {
	SeriesID  SeriesID
	WeightPct decimal.Decimal

	// BaseValue is the explicit base reference value. When nil the component
	// prices against the current value itself, yielding a neutral ratio of 1.
	BaseValue *decimal.Decimal
}

// =============================================================================
// ESCALATION POLICY - Time-based price/cost multiplier
// =============================================================================

// EscalationScope selects which side of a line a policy escalates.
type EscalationScope string

const (
	AppliesToPrice EscalationScope = "price"
	AppliesToCost  EscalationScope = "cost"
	AppliesToBoth  EscalationScope = "both"
)

func (s EscalationScope) CoversPrice() bool { return s == AppliesToPrice || s == AppliesToBoth }
func (s EscalationScope) CoversCost() bool  { return s == AppliesToCost || s == AppliesToBoth }

// EscalationFrequency is the stepping cadence of a rate-based policy.
type EscalationFrequency string

const (
	EscalateMonthly   EscalationFrequency = "monthly"
	EscalateQuarterly EscalationFrequency = "quarterly"
	EscalateAnnually  EscalationFrequency = "annual"
)

// MonthsPerPeriod returns how many elapsed months make one period.
func (f EscalationFrequency) MonthsPerPeriod() int {
	switch f {
	case EscalateQuarterly:
		return 3
	case EscalateAnnually:
		return 12
	default:
		return 1
	}
}

type Compounding string

const (
	CompoundingSimple   Compounding = "simple"
	CompoundingCompound Compounding = "compound"
)

// EscalationMode is the tagged variant behind a policy: exactly one of
// RateMode or IndexMode, or nil for "no escalation configured" (neutral 1).
// The two-nullable-fields shape is deliberately unrepresentable.
type EscalationMode interface {
	isEscalationMode()
}

// RateMode escalates by a fixed rate stepped at a frequency since the
// policy start month.
type RateMode struct {
	Rate        decimal.Decimal // per-period rate, e.g. 0.03 for 3%
	Frequency   EscalationFrequency
	Compounding Compounding
}

func (RateMode) isEscalationMode() {}

// IndexMode escalates by a weighted blend of index ratios, mirroring
// formulation components but with latest-on-or-before lookups.
type IndexMode struct {
	Components []EscalationComponent
}

func (IndexMode) isEscalationMode() {}

type EscalationComponent struct {
	SeriesID  SeriesID
	WeightPct decimal.Decimal

	// Base resolution order: BaseValue if set, else the series value at
	// BaseMonth (latest on or before), else the current value (ratio 1).
	BaseValue *decimal.Decimal
	BaseMonth *Month
}

type EscalationPolicy struct {
	ID    PolicyID
	Name  string
	Scope EscalationScope
	Start Month
	Mode  EscalationMode

	// CapPct/FloorPct clamp the multiplier to [1+floor/100, 1+cap/100].
	// Either bound may be set independently.
	CapPct   *decimal.Decimal
	FloorPct *decimal.Decimal
}

// =============================================================================
// REBATE - Contra-revenue rules with tiered/lump resolution and cash lag
// =============================================================================

type RebateScope string

const (
	RebateScopeAll      RebateScope = "all"
	RebateScopeBOQ      RebateScope = "boq"
	RebateScopeServices RebateScope = "services"
	RebateScopeProduct  RebateScope = "product"
)

type RebateKind string

const (
	RebatePercent       RebateKind = "percent"
	RebateTieredPercent RebateKind = "tiered_percent"
	RebateLumpSum       RebateKind = "lump_sum"
)

// RebateBasis names the monetary quantity a percentage applies to. Only
// revenue is computed; volume and margin are declared and resolve to zero.
type RebateBasis string

const (
	BasisRevenue RebateBasis = "revenue"
	BasisVolume  RebateBasis = "volume"
	BasisMargin  RebateBasis = "margin"
)

// AccrualMethod is declared configuration; every method is currently
// evaluated monthly.
type AccrualMethod string

const (
	AccrueMonthly   AccrualMethod = "monthly"
	AccrueQuarterly AccrualMethod = "quarterly"
	AccrueAnnually  AccrualMethod = "annual"
	AccrueOnInvoice AccrualMethod = "on_invoice"
)

type Rebate struct {
	ID     RebateID
	Name   string
	Scope  RebateScope
	Kind   RebateKind
	Basis  RebateBasis
	Method AccrualMethod
	Active bool

	// ProductID restricts the basis when Scope is RebateScopeProduct.
	ProductID ProductID

	// Validity window, inclusive on both ends; To nil means open-ended.
	ValidFrom *Month
	ValidTo   *Month

	// PayMonthLag offsets the cash effect from the accrual month.
	PayMonthLag int

	Tiers []RebateTier
	Lumps []RebateLump
}

// RebateTier maps a half-open basis range [Min, Max) to either a percentage
// of the basis or a flat amount. MaxValue nil means unbounded. Exactly one
// of ValuePct/AmountFlat is set; the factory enforces this on write.
type RebateTier struct {
	MinValue   decimal.Decimal
	MaxValue   *decimal.Decimal
	ValuePct   *decimal.Decimal
	AmountFlat *decimal.Decimal
}

// Contains reports whether v falls in [Min, Max).
func (t RebateTier) Contains(v decimal.Decimal) bool {
	if v.LessThan(t.MinValue) {
		return false
	}
	return t.MaxValue == nil || v.LessThan(*t.MaxValue)
}

// RebateLump is a fixed amount due in one specific month.
type RebateLump struct {
	Month  Month
	Amount decimal.Decimal
}

// =============================================================================
// SCENARIO & LINES
// =============================================================================

type LineKind string

const (
	LineBOQ     LineKind = "boq"
	LineService LineKind = "service"
)

// LineFrequency drives schedule expansion. Monthly repeats for the line's
// duration; every other value charges once at the start month.
type LineFrequency string

const (
	FrequencyOnce        LineFrequency = "once"
	FrequencyMonthly     LineFrequency = "monthly"
	FrequencyPerShipment LineFrequency = "per_shipment"
	FrequencyPerTonne    LineFrequency = "per_tonne"
)

// Line is a single BOQ item or service in a scenario.
type Line struct {
	ID        LineID
	Kind      LineKind
	Name      string
	ProductID ProductID

	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	UnitCost  decimal.Decimal
	Currency  string

	Frequency      LineFrequency
	Start          Month
	DurationMonths int

	// Optional pricing references. PolicyID falls back to the scenario
	// default when nil.
	FormulationID *FormulationID
	PolicyID      *PolicyID
}

// Scenario owns the lines, rebates and policy defaults being projected.
type Scenario struct {
	ID       ScenarioID
	TenantID string
	Name     string
	Currency string

	Start          Month
	DurationMonths int

	// DefaultPolicyID applies to lines that do not name their own policy.
	DefaultPolicyID *PolicyID

	Lines   []Line
	Rebates []Rebate
}

// Window is the scenario's default reporting range: Start for
// max(1, DurationMonths) months.
func (s *Scenario) Window() MonthRange {
	months := s.DurationMonths
	if months < 1 {
		months = 1
	}
	return MonthRange{From: s.Start, To: s.Start.AddMonths(months - 1)}
}

// =============================================================================
// EVALUATION MODE
// =============================================================================

// EvaluationMode selects how tiered rebates resolve their percentage:
// against each month's basis, or against the running year-to-date cumulative.
type EvaluationMode string

const (
	ModeMonthly EvaluationMode = "monthly"
	ModeYTD     EvaluationMode = "ytd"
)
