package pricing_test

import (
	"context"
	"testing"
	"time"

	"github.com/warp/bizcase-engine/pricing"
	"github.com/warp/bizcase-engine/pricing/store"
)

func newFormulationEngine(st *store.Memory) *pricing.FormulationEngine {
	return pricing.NewFormulationEngine(st, pricing.NewIndexAccessor(st))
}

func putFormulation(t *testing.T, st *store.Memory, f pricing.Formulation) {
	t.Helper()
	if err := st.PutFormulation(context.Background(), f); err != nil {
		t.Fatalf("put formulation %s: %v", f.ID, err)
	}
}

func TestFormulationFactor_WeightedRatios(t *testing.T) {
	// GIVEN: steel 60% (base 100) and energy 40% (base 50), with steel at 110
	//        and energy at 55 for the target month
	// WHEN: Computing the factor
	// THEN: 110/100*0.6 + 55/50*0.4 = 1.10 exactly

	st := store.NewMemory()
	addSeries(t, st, "steel", map[string]string{"2025-03": "110"})
	addSeries(t, st, "energy", map[string]string{"2025-03": "55"})
	putFormulation(t, st, pricing.Formulation{
		ID: "form-1", Name: "alloy", BasePrice: dec("250"),
		Components: []pricing.FormulationComponent{
			{SeriesID: "steel", WeightPct: dec("60"), BaseValue: decPtr("100")},
			{SeriesID: "energy", WeightPct: dec("40"), BaseValue: decPtr("50")},
		},
	})

	engine := newFormulationEngine(st)
	factor, err := engine.Factor(context.Background(), "form-1", month(2025, time.March))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !factor.Equal(dec("1.1")) {
		t.Errorf("expected factor 1.1, got %v", factor)
	}
}

func TestFormulationFactor_MissingPointIsError(t *testing.T) {
	// GIVEN: A component series with no point at the target month, although
	//        older points exist
	// WHEN: Computing the factor
	// THEN: A missing-data error; formulation pricing never falls back

	st := store.NewMemory()
	addSeries(t, st, "steel", map[string]string{"2025-01": "100"})
	putFormulation(t, st, pricing.Formulation{
		ID: "form-1", Name: "steel only", BasePrice: dec("100"),
		Components: []pricing.FormulationComponent{
			{SeriesID: "steel", WeightPct: dec("100"), BaseValue: decPtr("100")},
		},
	})

	engine := newFormulationEngine(st)
	_, err := engine.Factor(context.Background(), "form-1", month(2025, time.February))
	if err == nil {
		t.Fatal("expected an error, got none")
	}
	if !pricing.IsMissingData(err) {
		t.Errorf("expected a missing-data error, got %v", err)
	}
}

func TestFormulationFactor_NilBaseIsNeutral(t *testing.T) {
	// GIVEN: steel 60% with no declared base, energy 40% with base 50
	// WHEN: Computing with energy at 55
	// THEN: steel contributes its weight at ratio 1: 0.6 + 1.1*0.4 = 1.04

	st := store.NewMemory()
	addSeries(t, st, "steel", map[string]string{"2025-03": "987.65"})
	addSeries(t, st, "energy", map[string]string{"2025-03": "55"})
	putFormulation(t, st, pricing.Formulation{
		ID: "form-1", Name: "partial base", BasePrice: dec("100"),
		Components: []pricing.FormulationComponent{
			{SeriesID: "steel", WeightPct: dec("60")},
			{SeriesID: "energy", WeightPct: dec("40"), BaseValue: decPtr("50")},
		},
	})

	engine := newFormulationEngine(st)
	factor, err := engine.Factor(context.Background(), "form-1", month(2025, time.March))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !factor.Equal(dec("1.04")) {
		t.Errorf("expected factor 1.04, got %v", factor)
	}
}

func TestFormulationFactor_ZeroBaseRejected(t *testing.T) {
	// GIVEN: A component with an explicit base of 0
	// WHEN: Computing the factor
	// THEN: An invalid-configuration error instead of a division blowup

	st := store.NewMemory()
	addSeries(t, st, "steel", map[string]string{"2025-03": "110"})
	putFormulation(t, st, pricing.Formulation{
		ID: "form-1", Name: "zero base", BasePrice: dec("100"),
		Components: []pricing.FormulationComponent{
			{SeriesID: "steel", WeightPct: dec("100"), BaseValue: decPtr("0")},
		},
	})

	engine := newFormulationEngine(st)
	_, err := engine.Factor(context.Background(), "form-1", month(2025, time.March))
	if !pricing.IsInvalidConfig(err) {
		t.Errorf("expected an invalid-configuration error, got %v", err)
	}
}

func TestFormulationFactor_NoComponentsRejected(t *testing.T) {
	// GIVEN: A formulation without components
	// WHEN: Computing the factor
	// THEN: An invalid-configuration error

	st := store.NewMemory()
	putFormulation(t, st, pricing.Formulation{ID: "form-empty", Name: "empty", BasePrice: dec("100")})

	engine := newFormulationEngine(st)
	_, err := engine.Factor(context.Background(), "form-empty", month(2025, time.March))
	if !pricing.IsInvalidConfig(err) {
		t.Errorf("expected an invalid-configuration error, got %v", err)
	}
}

func TestFormulationFactor_UnknownFormulation(t *testing.T) {
	// GIVEN: An empty store
	// WHEN: Computing a factor for an id that does not exist
	// THEN: A not-found error

	engine := newFormulationEngine(store.NewMemory())
	_, err := engine.Factor(context.Background(), "nope", month(2025, time.March))
	if !pricing.IsNotFound(err) {
		t.Errorf("expected a not-found error, got %v", err)
	}
}

func TestFormulationPrice_RoundsOnceAtTheEnd(t *testing.T) {
	// GIVEN: A ratio that does not terminate (1/3) at full working precision
	// WHEN: Pricing a 100 base
	// THEN: The price is rounded to 2dp exactly once: 33.33

	st := store.NewMemory()
	addSeries(t, st, "odd", map[string]string{"2025-03": "1"})
	putFormulation(t, st, pricing.Formulation{
		ID: "form-1", Name: "thirds", BasePrice: dec("100"),
		Components: []pricing.FormulationComponent{
			{SeriesID: "odd", WeightPct: dec("100"), BaseValue: decPtr("3")},
		},
	})

	engine := newFormulationEngine(st)
	price, err := engine.Price(context.Background(), "form-1", month(2025, time.March))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(dec("33.33")) {
		t.Errorf("expected price 33.33, got %v", price)
	}
}

func TestFormulationFactor_Deterministic(t *testing.T) {
	// GIVEN: A formulation with a non-terminating component ratio
	// WHEN: Computing the factor twice
	// THEN: The decimals are identical

	st := store.NewMemory()
	addSeries(t, st, "cpi", map[string]string{"2025-03": "107.31"})
	putFormulation(t, st, pricing.Formulation{
		ID: "form-1", Name: "cpi", BasePrice: dec("100"),
		Components: []pricing.FormulationComponent{
			{SeriesID: "cpi", WeightPct: dec("100"), BaseValue: decPtr("101.7")},
		},
	})

	engine := newFormulationEngine(st)
	first, err := engine.Factor(context.Background(), "form-1", month(2025, time.March))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := engine.Factor(context.Background(), "form-1", month(2025, time.March))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !first.Equal(second) {
		t.Errorf("expected identical factors, got %v and %v", first, second)
	}
}
