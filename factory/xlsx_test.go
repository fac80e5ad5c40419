package factory_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/warp/bizcase-engine/factory"
	"github.com/warp/bizcase-engine/pricing"
	"github.com/warp/bizcase-engine/pricing/store"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	err := f.Save(path)
	require.NoError(t, err)
	return path
}

func TestReadIndexPointsXLSX_Basic(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"code", "name", "month", "value", "unit", "currency"},
			{"STL", "Steel index", "2025-01", "100", "EUR/t", "EUR"},
			{"STL", "Steel index", "2025-02", "104.5", "EUR/t", "EUR"},
			{"CPI", "Consumer prices", "2025-01", "121.3", "", ""},
		},
	})

	imp, err := factory.ReadIndexPointsXLSX(path, "")
	require.NoError(t, err)

	require.Len(t, imp.Series, 2)
	assert.Equal(t, pricing.SeriesID("STL"), imp.Series[0].ID)
	assert.Equal(t, "Steel index", imp.Series[0].Name)
	assert.Equal(t, "EUR/t", imp.Series[0].Unit)
	assert.Equal(t, pricing.SeriesID("CPI"), imp.Series[1].ID)

	require.Len(t, imp.Points, 3)
	assert.True(t, imp.Points[1].Month.Equal(pricing.NewMonth(2025, time.February)))
	assert.True(t, imp.Points[1].Value.Equal(pricing.MustParseDecimal("104.5")))
}

func TestReadIndexPointsXLSX_HeaderOrderIndependent(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"Month", "Value", "Code"},
			{"2025-03", "99.9", "NRG"},
		},
	})

	imp, err := factory.ReadIndexPointsXLSX(path, "")
	require.NoError(t, err)

	require.Len(t, imp.Series, 1)
	assert.Equal(t, "NRG", imp.Series[0].Code)
	assert.Equal(t, "NRG", imp.Series[0].Name, "name falls back to code")
	require.Len(t, imp.Points, 1)
	assert.True(t, imp.Points[0].Month.Equal(pricing.NewMonth(2025, time.March)))
}

func TestReadIndexPointsXLSX_SkipsBlankRows(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"code", "month", "value"},
			{"STL", "2025-01", "100"},
			{"", "", ""},
			{"STL", "2025-02", "101"},
		},
	})

	imp, err := factory.ReadIndexPointsXLSX(path, "")
	require.NoError(t, err)
	assert.Len(t, imp.Points, 2)
}

func TestReadIndexPointsXLSX_MissingColumn(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"code", "month"},
			{"STL", "2025-01"},
		},
	})

	_, err := factory.ReadIndexPointsXLSX(path, "")
	require.Error(t, err)
	assert.True(t, pricing.IsInvalidConfig(err))
	assert.Contains(t, err.Error(), `"value"`)
}

func TestReadIndexPointsXLSX_BadMonth(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"code", "month", "value"},
			{"STL", "January 2025", "100"},
		},
	})

	_, err := factory.ReadIndexPointsXLSX(path, "")
	require.Error(t, err)
	assert.True(t, pricing.IsInvalidConfig(err))
	assert.Contains(t, err.Error(), "row 2")
}

func TestReadIndexPointsXLSX_BadValue(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"code", "month", "value"},
			{"STL", "2025-01", "n/a"},
		},
	})

	_, err := factory.ReadIndexPointsXLSX(path, "")
	require.Error(t, err)
	assert.True(t, pricing.IsInvalidConfig(err))
}

func TestReadIndexPointsXLSX_SheetSelection(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Notes":   {{"whatever"}},
		"Indexes": {{"code", "month", "value"}, {"STL", "2025-01", "100"}},
	})

	imp, err := factory.ReadIndexPointsXLSX(path, "Indexes")
	require.NoError(t, err)
	assert.Len(t, imp.Points, 1)

	_, err = factory.ReadIndexPointsXLSX(path, "Missing")
	require.Error(t, err)
}

func TestIndexImport_ApplyUpserts(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"code", "month", "value"},
			{"STL", "2025-01", "100"},
		},
	})

	imp, err := factory.ReadIndexPointsXLSX(path, "")
	require.NoError(t, err)

	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, imp.Apply(ctx, mem))

	v, err := mem.GetPoint(ctx, "STL", pricing.NewMonth(2025, time.January))
	require.NoError(t, err)
	assert.True(t, v.Equal(pricing.MustParseDecimal("100")))
}
