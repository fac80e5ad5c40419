package output

import (
	"bytes"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bizcase-engine/pricing"
)

// testResult builds a two-month result with a rebate and one issue.
func testResult() *pricing.Result {
	jan := pricing.NewMonth(2025, time.January)
	feb := pricing.NewMonth(2025, time.February)
	mar := pricing.NewMonth(2025, time.March)

	rows := []pricing.MonthlyRow{
		{
			Month:         jan,
			Revenue:       pricing.MustParseDecimal("1000"),
			COGS:          pricing.MustParseDecimal("600"),
			RebatesContra: pricing.MustParseDecimal("-50"),
			GrossMargin:   pricing.MustParseDecimal("350"),
			Net:           pricing.MustParseDecimal("350"),
		},
		{
			Month:         feb,
			Revenue:       pricing.MustParseDecimal("1000"),
			COGS:          pricing.MustParseDecimal("600"),
			RebatesContra: pricing.MustParseDecimal("-50"),
			GrossMargin:   pricing.MustParseDecimal("350"),
			Net:           pricing.MustParseDecimal("350"),
		},
	}
	return &pricing.Result{
		ScenarioID: "scn-1",
		Range:      pricing.MonthRange{From: jan, To: feb},
		Mode:       pricing.ModeMonthly,
		Rows:       rows,
		Total: pricing.MonthlyRow{
			Revenue:       pricing.MustParseDecimal("2000"),
			COGS:          pricing.MustParseDecimal("1200"),
			RebatesContra: pricing.MustParseDecimal("-100"),
			GrossMargin:   pricing.MustParseDecimal("700"),
			Net:           pricing.MustParseDecimal("700"),
		},
		Cash: []pricing.CashEffect{
			{RebateID: "reb-1", Month: mar, Amount: pricing.MustParseDecimal("-50")},
		},
		Issues: []pricing.Issue{
			{ID: "i-1", Source: "line line-9", Message: "missing value for series steel at 2025-02"},
		},
	}
}

func TestBuildReport(t *testing.T) {
	report := BuildReport(testResult())

	assert.Equal(t, "scn-1", report.ScenarioID)
	assert.Equal(t, "2025-01", report.From)
	assert.Equal(t, "2025-02", report.To)
	require.Len(t, report.Rows, 2)

	assert.Equal(t, "2025-01", report.Rows[0].Month)
	assert.Equal(t, "1000.00", report.Rows[0].Revenue)
	assert.Equal(t, "-50.00", report.Rows[0].RebatesContra)
	assert.Equal(t, "0.00", report.Rows[0].Overheads, "placeholder fields render as zero")
	assert.Equal(t, "0.00", report.Rows[0].Tax)

	assert.Empty(t, report.Total.Month)
	assert.Equal(t, "2000.00", report.Total.Revenue)

	require.Len(t, report.Cash, 1)
	assert.Equal(t, "2025-03", report.Cash[0].Month)
	assert.Equal(t, "-50.00", report.Cash[0].Amount)

	require.Len(t, report.Issues, 1)
	assert.Equal(t, "line line-9", report.Issues[0].Source)
}

func TestWriteJSON_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, testResult()))

	var decoded ReportDTO
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, "scn-1", decoded.ScenarioID)
	require.Len(t, decoded.Rows, 2)
	assert.Equal(t, "1000.00", decoded.Rows[0].Revenue)
	assert.Equal(t, "monthly", decoded.Mode)
}

func TestBuildPreview(t *testing.T) {
	preview := &pricing.LinePreview{
		BasePrice:            pricing.MustParseDecimal("250"),
		FormulationFactor:    pricing.MustParseDecimal("1.0449999"),
		EscalationMultiplier: pricing.MustParseDecimal("1.03"),
		UnitPrice:            pricing.MustParseDecimal("269.08"),
		Quantity:             pricing.MustParseDecimal("10"),
		LineTotal:            pricing.MustParseDecimal("2690.80"),
		Currency:             "EUR",
	}

	dto := BuildPreview(preview, pricing.NewMonth(2025, time.June))
	assert.Equal(t, "2025-06", dto.Month)
	assert.Equal(t, "250.00", dto.BasePrice)
	assert.Equal(t, "1.045", dto.FormulationFactor, "factors round to 6 places")
	assert.Equal(t, "269.08", dto.UnitPrice)
	assert.Equal(t, "2690.80", dto.LineTotal)
	assert.Equal(t, "EUR", dto.Currency)
}
