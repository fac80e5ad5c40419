package factory_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bizcase-engine/factory"
	"github.com/warp/bizcase-engine/pricing"
)

func weights(vals ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = pricing.MustParseDecimal(v)
	}
	return out
}

func sumOf(ds []decimal.Decimal) decimal.Decimal {
	s := decimal.Zero
	for _, d := range ds {
		s = s.Add(d)
	}
	return s
}

func TestNormalizeWeights_AlreadyHundred(t *testing.T) {
	out, err := factory.NormalizeWeights(weights("60", "40"))
	require.NoError(t, err)

	assert.True(t, out[0].Equal(pricing.MustParseDecimal("60")))
	assert.True(t, out[1].Equal(pricing.MustParseDecimal("40")))
}

func TestNormalizeWeights_ScalesArbitrarySums(t *testing.T) {
	// Ratios 2:1 scale to 66.6667 / 33.3333; the leftover 0.0001 goes to the
	// component with the larger truncated fraction.
	out, err := factory.NormalizeWeights(weights("2", "1"))
	require.NoError(t, err)

	assert.True(t, out[0].Equal(pricing.MustParseDecimal("66.6667")), "got %v", out[0])
	assert.True(t, out[1].Equal(pricing.MustParseDecimal("33.3333")), "got %v", out[1])
	assert.True(t, sumOf(out).Equal(pricing.MustParseDecimal("100")))
}

func TestNormalizeWeights_TiesGoToEarlierComponents(t *testing.T) {
	// Six equal weights truncate to 16.6666 each, leaving 4 units to hand
	// out; equal fractions resolve in component order.
	out, err := factory.NormalizeWeights(weights("1", "1", "1", "1", "1", "1"))
	require.NoError(t, err)

	want := []string{"16.6667", "16.6667", "16.6667", "16.6667", "16.6666", "16.6666"}
	for i, w := range want {
		assert.True(t, out[i].Equal(pricing.MustParseDecimal(w)), "component %d: expected %s, got %v", i, w, out[i])
	}
	assert.True(t, sumOf(out).Equal(pricing.MustParseDecimal("100")))
}

func TestNormalizeWeights_SumIsExactAcrossAwkwardRatios(t *testing.T) {
	for _, w := range [][]decimal.Decimal{
		weights("7", "11", "13"),
		weights("1", "3"),
		weights("0.1", "0.2", "0.7"),
		weights("33.33", "33.33", "33.33"),
		weights("99.9999", "0.0001"),
	} {
		out, err := factory.NormalizeWeights(w)
		require.NoError(t, err)
		assert.True(t, sumOf(out).Equal(pricing.MustParseDecimal("100")), "weights %v sum to %v", w, sumOf(out))
	}
}

func TestNormalizeWeights_Deterministic(t *testing.T) {
	in := weights("7", "11", "13")
	first, err := factory.NormalizeWeights(in)
	require.NoError(t, err)
	second, err := factory.NormalizeWeights(in)
	require.NoError(t, err)

	for i := range first {
		assert.True(t, first[i].Equal(second[i]), "component %d differs: %v vs %v", i, first[i], second[i])
	}
}

func TestNormalizeWeights_Rejections(t *testing.T) {
	cases := []struct {
		name string
		in   []decimal.Decimal
	}{
		{"empty", nil},
		{"negative weight", weights("50", "-10")},
		{"zero sum", weights("0", "0")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := factory.NormalizeWeights(tc.in)
			require.Error(t, err)
			assert.True(t, pricing.IsInvalidConfig(err), "expected config error, got %v", err)
		})
	}
}
