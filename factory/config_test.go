package factory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bizcase-engine/factory"
	"github.com/warp/bizcase-engine/pricing"
	"github.com/warp/bizcase-engine/pricing/store"
)

const fullConfig = `{
  "version": 1,
  "index_series": [
    {"id": "steel", "code": "STL", "name": "Steel billet", "unit": "index", "currency": "EUR",
     "points": [{"month": "2025-01", "value": 100}, {"month": "2025-02", "value": 104.2}]}
  ],
  "formulations": [
    {"id": "f-alloy", "product_id": "p-1", "name": "Alloy recipe", "base_price": 250, "currency": "EUR",
     "components": [
       {"series_id": "steel", "weight_pct": 60, "base_value": 100},
       {"series_id": "steel", "weight_pct": 40}
     ]}
  ],
  "escalation_policies": [
    {"id": "esc-3pct", "name": "3% annual", "scope": "both", "start": "2025-01",
     "rate": {"rate_pct": 3, "frequency": "annual", "compounding": "compound"},
     "cap_pct": 10},
    {"id": "esc-frozen", "name": "no escalation", "start": "2025-01"}
  ],
  "scenarios": [
    {"id": "s-1", "tenant_id": "tenant-a", "name": "Plant expansion", "currency": "EUR",
     "start": "2025-01", "duration_months": 0,
     "default_policy_id": "esc-3pct",
     "lines": [
       {"id": "l-1", "kind": "boq", "name": "Rebar", "quantity": 10, "unit_price": 100,
        "unit_cost": 60, "frequency": "monthly", "start": "2025-01", "duration_months": 12,
        "formulation_id": "f-alloy", "policy_id": "esc-frozen"}
     ],
     "rebates": [
       {"id": "r-1", "name": "volume ladder", "kind": "tiered_percent", "pay_month_lag": 2,
        "tiers": [
          {"min": 0, "max": 1000, "value_pct": 2},
          {"min": 1000, "value_pct": 3.5}
        ]}
     ]}
  ]
}`

func TestParseConfig_FullDocument(t *testing.T) {
	bundle, err := factory.NewFactory().ParseConfig([]byte(fullConfig))
	require.NoError(t, err)

	require.Len(t, bundle.Series, 1)
	assert.Equal(t, pricing.SeriesID("steel"), bundle.Series[0].ID)
	require.Len(t, bundle.Points, 2)
	assert.True(t, bundle.Points[1].Value.Equal(pricing.MustParseDecimal("104.2")))

	require.Len(t, bundle.Formulations, 1)
	f := bundle.Formulations[0]
	assert.True(t, f.BasePrice.Equal(pricing.MustParseDecimal("250")))
	require.Len(t, f.Components, 2)
	assert.True(t, f.Components[0].WeightPct.Equal(pricing.MustParseDecimal("60")), "weights already at 100 pass through")
	require.NotNil(t, f.Components[0].BaseValue)
	assert.Nil(t, f.Components[1].BaseValue, "absent base_value stays nil")

	require.Len(t, bundle.Policies, 2)
	rate, ok := bundle.Policies[0].Mode.(pricing.RateMode)
	require.True(t, ok, "expected RateMode, got %T", bundle.Policies[0].Mode)
	assert.True(t, rate.Rate.Equal(pricing.MustParseDecimal("0.03")), "rate_pct 3 becomes 0.03")
	assert.Equal(t, pricing.EscalateAnnually, rate.Frequency)
	assert.Equal(t, pricing.CompoundingCompound, rate.Compounding)
	assert.Equal(t, pricing.AppliesToBoth, bundle.Policies[0].Scope)
	require.NotNil(t, bundle.Policies[0].CapPct)
	assert.Nil(t, bundle.Policies[1].Mode, "neither rate nor components is the neutral policy")

	require.Len(t, bundle.Scenarios, 1)
	s := bundle.Scenarios[0]
	assert.Equal(t, "tenant-a", s.TenantID)
	assert.Equal(t, 1, s.DurationMonths, "durations below 1 are lifted to 1")
	require.NotNil(t, s.DefaultPolicyID)
	assert.Equal(t, pricing.PolicyID("esc-3pct"), *s.DefaultPolicyID)

	require.Len(t, s.Lines, 1)
	l := s.Lines[0]
	assert.Equal(t, pricing.LineBOQ, l.Kind)
	assert.Equal(t, pricing.FrequencyMonthly, l.Frequency)
	require.NotNil(t, l.FormulationID)
	assert.Equal(t, pricing.FormulationID("f-alloy"), *l.FormulationID)
	require.NotNil(t, l.PolicyID)
	assert.Equal(t, pricing.PolicyID("esc-frozen"), *l.PolicyID)

	require.Len(t, s.Rebates, 1)
	r := s.Rebates[0]
	assert.Equal(t, pricing.RebateTieredPercent, r.Kind)
	assert.True(t, r.Active, "active defaults to true")
	assert.Equal(t, 2, r.PayMonthLag)
	require.Len(t, r.Tiers, 2)
	require.NotNil(t, r.Tiers[0].MaxValue)
	assert.Nil(t, r.Tiers[1].MaxValue, "absent max stays unbounded")
}

func TestParseConfig_MalformedJSON(t *testing.T) {
	_, err := factory.NewFactory().ParseConfig([]byte(`{"version": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestParseConfig_RejectsInvalidDocuments(t *testing.T) {
	cases := []struct {
		name   string
		doc    string
		reason string
	}{
		{
			name:   "formulation without components",
			doc:    `{"formulations": [{"id": "f-1", "name": "empty", "base_price": 1, "components": []}]}`,
			reason: "no components",
		},
		{
			name: "formulation referencing unknown series",
			doc: `{"index_series": [{"id": "steel", "code": "STL", "name": "Steel"}],
			       "formulations": [{"id": "f-1", "name": "bad", "base_price": 1,
			         "components": [{"series_id": "ghost", "weight_pct": 100}]}]}`,
			reason: "unknown index series ghost",
		},
		{
			name: "formulation with negative weight",
			doc: `{"index_series": [{"id": "steel", "code": "STL", "name": "Steel"}],
			       "formulations": [{"id": "f-1", "name": "bad", "base_price": 1,
			         "components": [{"series_id": "steel", "weight_pct": -5}]}]}`,
			reason: "negative weight",
		},
		{
			name: "policy with both rate and components",
			doc: `{"escalation_policies": [{"id": "p-1", "name": "bad", "start": "2025-01",
			         "rate": {"rate_pct": 3},
			         "components": [{"series_id": "steel", "weight_pct": 100}]}]}`,
			reason: "both rate and index components",
		},
		{
			name: "scenario with unknown default policy",
			doc: `{"scenarios": [{"id": "s-1", "name": "bad", "start": "2025-01",
			         "duration_months": 12, "default_policy_id": "ghost"}]}`,
			reason: "unknown default policy ghost",
		},
		{
			name: "line referencing unknown formulation",
			doc: `{"scenarios": [{"id": "s-1", "name": "bad", "start": "2025-01", "duration_months": 12,
			         "lines": [{"id": "l-1", "kind": "boq", "name": "x", "quantity": 1,
			           "unit_price": 1, "start": "2025-01", "formulation_id": "ghost"}]}]}`,
			reason: "unknown formulation ghost",
		},
		{
			name: "line attaching archived formulation",
			doc: `{"index_series": [{"id": "steel", "code": "STL", "name": "Steel"}],
			       "formulations": [{"id": "f-old", "name": "retired", "base_price": 1, "archived": true,
			         "components": [{"series_id": "steel", "weight_pct": 100}]}],
			       "scenarios": [{"id": "s-1", "name": "bad", "start": "2025-01", "duration_months": 12,
			         "lines": [{"id": "l-1", "kind": "boq", "name": "x", "quantity": 1,
			           "unit_price": 1, "start": "2025-01", "formulation_id": "f-old"}]}]}`,
			reason: "archived",
		},
		{
			name: "line referencing unknown policy",
			doc: `{"scenarios": [{"id": "s-1", "name": "bad", "start": "2025-01", "duration_months": 12,
			         "lines": [{"id": "l-1", "kind": "boq", "name": "x", "quantity": 1,
			           "unit_price": 1, "start": "2025-01", "policy_id": "ghost"}]}]}`,
			reason: "unknown policy ghost",
		},
		{
			name: "tier with both value_pct and amount_flat",
			doc: `{"scenarios": [{"id": "s-1", "name": "bad", "start": "2025-01", "duration_months": 12,
			         "rebates": [{"id": "r-1", "name": "x", "kind": "percent",
			           "tiers": [{"min": 0, "value_pct": 2, "amount_flat": 100}]}]}]}`,
			reason: "exactly one of value_pct and amount_flat",
		},
		{
			name: "tier with neither value_pct nor amount_flat",
			doc: `{"scenarios": [{"id": "s-1", "name": "bad", "start": "2025-01", "duration_months": 12,
			         "rebates": [{"id": "r-1", "name": "x", "kind": "percent",
			           "tiers": [{"min": 0}]}]}]}`,
			reason: "exactly one of value_pct and amount_flat",
		},
		{
			name: "tier with max below min",
			doc: `{"scenarios": [{"id": "s-1", "name": "bad", "start": "2025-01", "duration_months": 12,
			         "rebates": [{"id": "r-1", "name": "x", "kind": "tiered_percent",
			           "tiers": [{"min": 100, "max": 100, "value_pct": 2}]}]}]}`,
			reason: "max <= min",
		},
		{
			name: "rebate with negative pay lag",
			doc: `{"scenarios": [{"id": "s-1", "name": "bad", "start": "2025-01", "duration_months": 12,
			         "rebates": [{"id": "r-1", "name": "x", "kind": "percent", "pay_month_lag": -1,
			           "tiers": [{"min": 0, "value_pct": 2}]}]}]}`,
			reason: "negative pay_month_lag",
		},
		{
			name: "rebate validity window inverted",
			doc: `{"scenarios": [{"id": "s-1", "name": "bad", "start": "2025-01", "duration_months": 12,
			         "rebates": [{"id": "r-1", "name": "x", "kind": "percent",
			           "valid_from": "2025-06", "valid_to": "2025-01",
			           "tiers": [{"min": 0, "value_pct": 2}]}]}]}`,
			reason: "validity window ends before it starts",
		},
		{
			name: "percent rebate without tiers",
			doc: `{"scenarios": [{"id": "s-1", "name": "bad", "start": "2025-01", "duration_months": 12,
			         "rebates": [{"id": "r-1", "name": "x", "kind": "percent"}]}]}`,
			reason: "has no tiers",
		},
		{
			name: "lump rebate without lumps",
			doc: `{"scenarios": [{"id": "s-1", "name": "bad", "start": "2025-01", "duration_months": 12,
			         "rebates": [{"id": "r-1", "name": "x", "kind": "lump_sum"}]}]}`,
			reason: "has no lumps",
		},
	}

	f := factory.NewFactory()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ParseConfig([]byte(tc.doc))
			require.Error(t, err)
			assert.True(t, pricing.IsInvalidConfig(err), "expected config error, got %v", err)
			assert.Contains(t, err.Error(), tc.reason)
		})
	}
}

func TestParsePolicy_SingleDocument(t *testing.T) {
	// Single-policy parsing leaves series references to the backing store.
	p, err := factory.NewFactory().ParsePolicy(`{
	  "id": "esc-cpi", "name": "CPI-linked", "scope": "price", "start": "2025-01",
	  "components": [{"series_id": "cpi", "weight_pct": 100, "base_month": "2024-12"}],
	  "floor_pct": 0
	}`)
	require.NoError(t, err)

	assert.Equal(t, pricing.PolicyID("esc-cpi"), p.ID)
	mode, ok := p.Mode.(pricing.IndexMode)
	require.True(t, ok, "expected IndexMode, got %T", p.Mode)
	require.Len(t, mode.Components, 1)
	require.NotNil(t, mode.Components[0].BaseMonth)
	assert.True(t, mode.Components[0].BaseMonth.Equal(pricing.NewMonth(2024, time.December)))
	require.NotNil(t, p.FloorPct)
	assert.True(t, p.FloorPct.IsZero())
}

func TestParseRebate_SingleDocument(t *testing.T) {
	r, err := factory.NewFactory().ParseRebate(`{
	  "id": "r-flat", "name": "flat 2%", "kind": "percent", "active": false,
	  "tiers": [{"min": 0, "value_pct": 2}]
	}`)
	require.NoError(t, err)

	assert.Equal(t, pricing.RebateID("r-flat"), r.ID)
	assert.False(t, r.Active, "explicit active=false sticks")
	assert.Equal(t, pricing.RebatePercent, r.Kind)
	assert.Equal(t, pricing.BasisRevenue, r.Basis, "basis defaults to revenue")
	assert.Equal(t, pricing.RebateScopeAll, r.Scope, "scope defaults to all")
}

func TestParseConfig_EnumFallbacks(t *testing.T) {
	// Unknown enum strings resolve to the documented defaults instead of
	// failing the whole document.
	p, err := factory.NewFactory().ParsePolicy(`{
	  "id": "p-1", "name": "x", "scope": "sideways", "start": "2025-01",
	  "rate": {"rate_pct": 1, "frequency": "fortnightly", "compounding": "weird"}
	}`)
	require.NoError(t, err)
	assert.Equal(t, pricing.AppliesToPrice, p.Scope)
	mode := p.Mode.(pricing.RateMode)
	assert.Equal(t, pricing.EscalateMonthly, mode.Frequency)
	assert.Equal(t, pricing.CompoundingCompound, mode.Compounding)

	r, err := factory.NewFactory().ParseRebate(`{
	  "id": "r-1", "name": "x", "scope": "galaxy", "kind": "mystery", "basis": "vibes",
	  "method": "sometimes", "tiers": [{"min": 0, "value_pct": 1}]
	}`)
	require.NoError(t, err)
	assert.Equal(t, pricing.RebateScopeAll, r.Scope)
	assert.Equal(t, pricing.RebatePercent, r.Kind)
	assert.Equal(t, pricing.BasisRevenue, r.Basis)
	assert.Equal(t, pricing.AccrueMonthly, r.Method)
}

func TestBundle_Apply(t *testing.T) {
	bundle, err := factory.NewFactory().ParseConfig([]byte(fullConfig))
	require.NoError(t, err)

	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, bundle.Apply(ctx, mem))

	v, err := mem.GetPoint(ctx, "steel", pricing.NewMonth(2025, time.February))
	require.NoError(t, err)
	assert.True(t, v.Equal(pricing.MustParseDecimal("104.2")))

	f, err := mem.GetFormulation(ctx, "f-alloy")
	require.NoError(t, err)
	assert.Len(t, f.Components, 2)

	p, err := mem.GetPolicy(ctx, "esc-3pct")
	require.NoError(t, err)
	assert.IsType(t, pricing.RateMode{}, p.Mode)

	s, err := mem.GetScenario(ctx, "s-1")
	require.NoError(t, err)
	assert.Len(t, s.Lines, 1)
	assert.Len(t, s.Rebates, 1)
}
