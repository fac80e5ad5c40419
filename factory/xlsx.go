/*
xlsx.go - Index reference data import from spreadsheets

PURPOSE:
  Commercial teams maintain index values (steel, energy, CPI...) in
  spreadsheets. This file turns a workbook into validated series and points
  ready to upsert, so re-importing the same file is idempotent and importing
  a corrected file overwrites the affected months.

EXPECTED LAYOUT:
  A header row naming at least: code, month, value. Optional columns:
  name, unit, currency (first non-empty value per series wins).
  Months are "2025-01" style. Header matching is case-insensitive and
  order-independent. Blank rows are skipped.

SEE ALSO:
  - config.go: the JSON configuration path into the same store writes
*/
package factory

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"

	"github.com/warp/bizcase-engine/pricing"
)

// IndexImport is the validated content of one reference-data workbook.
type IndexImport struct {
	Series []pricing.IndexSeries
	Points []pricing.IndexPoint
}

// Apply upserts the imported series and points.
func (imp *IndexImport) Apply(ctx context.Context, st pricing.Store) error {
	for _, s := range imp.Series {
		if err := st.PutSeries(ctx, s); err != nil {
			return err
		}
	}
	if len(imp.Points) > 0 {
		return st.PutPoints(ctx, imp.Points)
	}
	return nil
}

// ReadIndexPointsXLSX parses a reference-data workbook. sheetName selects a
// sheet by name; empty means the first sheet.
func ReadIndexPointsXLSX(path, sheetName string) (*IndexImport, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := pickSheet(f, sheetName)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, &pricing.ConfigError{Kind: "index_import", ID: path, Reason: "sheet is empty"}
	}

	cols, err := mapColumns(rowToStrings(sheet.Rows[0]))
	if err != nil {
		return nil, &pricing.ConfigError{Kind: "index_import", ID: path, Reason: err.Error()}
	}

	imp := &IndexImport{}
	seen := make(map[pricing.SeriesID]int) // series id -> index into imp.Series
	for i, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		if isBlank(cells) {
			continue
		}
		rowNum := i + 2 // 1-based, after the header

		code := strings.TrimSpace(cols.get(cells, "code"))
		if code == "" {
			return nil, rowError(rowNum, "missing series code")
		}
		monthStr := strings.TrimSpace(cols.get(cells, "month"))
		m, err := pricing.ParseMonth(monthStr)
		if err != nil {
			return nil, rowError(rowNum, err.Error())
		}
		valueStr := strings.TrimSpace(cols.get(cells, "value"))
		value, err := decimal.NewFromString(valueStr)
		if err != nil {
			return nil, rowError(rowNum, fmt.Sprintf("invalid value %q", valueStr))
		}

		id := pricing.SeriesID(code)
		idx, ok := seen[id]
		if !ok {
			idx = len(imp.Series)
			seen[id] = idx
			imp.Series = append(imp.Series, pricing.IndexSeries{ID: id, Code: code})
		}
		series := &imp.Series[idx]
		if series.Name == "" {
			series.Name = strings.TrimSpace(cols.get(cells, "name"))
		}
		if series.Unit == "" {
			series.Unit = strings.TrimSpace(cols.get(cells, "unit"))
		}
		if series.Currency == "" {
			series.Currency = strings.TrimSpace(cols.get(cells, "currency"))
		}

		imp.Points = append(imp.Points, pricing.IndexPoint{SeriesID: id, Month: m, Value: value})
	}

	for i := range imp.Series {
		if imp.Series[i].Name == "" {
			imp.Series[i].Name = imp.Series[i].Code
		}
	}
	return imp, nil
}

func pickSheet(f *xlsx.File, sheetName string) (*xlsx.Sheet, error) {
	if sheetName != "" {
		sheet, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", sheetName)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

// columnMap resolves header names to cell positions.
type columnMap map[string]int

func mapColumns(header []string) (columnMap, error) {
	cols := make(columnMap, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if _, dup := cols[key]; dup {
			return nil, fmt.Errorf("duplicate column %q in header", key)
		}
		cols[key] = i
	}
	for _, required := range []string{"code", "month", "value"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column %q in header", required)
		}
	}
	return cols, nil
}

func (c columnMap) get(cells []string, name string) string {
	idx, ok := c[name]
	if !ok || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func rowError(rowNum int, reason string) error {
	return &pricing.ConfigError{
		Kind:   "index_import",
		ID:     fmt.Sprintf("row %d", rowNum),
		Reason: reason,
	}
}
