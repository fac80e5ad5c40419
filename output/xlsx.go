package output

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/warp/bizcase-engine/pricing"
)

// WriteXLSX exports a result as a workbook with one sheet of monthly rows,
// one for the rebate cash schedule, and one listing issues when present.
// Amounts are written as fixed 2dp strings, matching the JSON rendering.
func WriteXLSX(path string, result *pricing.Result) error {
	f := xlsx.NewFile()

	monthly, err := f.AddSheet("Monthly")
	if err != nil {
		return eris.Wrap(err, "xlsx: add monthly sheet")
	}
	header := monthly.AddRow()
	for _, col := range monthlyColumns {
		header.AddCell().SetString(col)
	}
	addRow := func(label string, row pricing.MonthlyRow) {
		r := monthly.AddRow()
		r.AddCell().SetString(label)
		for _, v := range rowValues(row) {
			r.AddCell().SetString(v.StringFixed(2))
		}
	}
	for _, row := range result.Rows {
		addRow(row.Month.String(), row)
	}
	addRow("total", result.Total)

	cash, err := f.AddSheet("Cash Schedule")
	if err != nil {
		return eris.Wrap(err, "xlsx: add cash sheet")
	}
	cashHeader := cash.AddRow()
	for _, col := range []string{"month", "amount", "rebate_id"} {
		cashHeader.AddCell().SetString(col)
	}
	for _, c := range result.Cash {
		r := cash.AddRow()
		r.AddCell().SetString(c.Month.String())
		r.AddCell().SetString(c.Amount.StringFixed(2))
		r.AddCell().SetString(string(c.RebateID))
	}

	if len(result.Issues) > 0 {
		issues, err := f.AddSheet("Issues")
		if err != nil {
			return eris.Wrap(err, "xlsx: add issues sheet")
		}
		issueHeader := issues.AddRow()
		for _, col := range []string{"source", "message"} {
			issueHeader.AddCell().SetString(col)
		}
		for _, issue := range result.Issues {
			r := issues.AddRow()
			r.AddCell().SetString(issue.Source)
			r.AddCell().SetString(issue.Message)
		}
	}

	return eris.Wrapf(f.Save(path), "xlsx: save %s", path)
}
