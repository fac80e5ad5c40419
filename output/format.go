package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/warp/bizcase-engine/pricing"
)

// monthlyColumns is the canonical column order for table, CSV and XLSX
// renderings. Consumers depend on every column being present even when a
// field is a zero placeholder.
var monthlyColumns = []string{
	"month", "revenue", "cogs", "rebates_contra", "gross_margin",
	"overheads", "capex_depreciation", "fx", "tax", "net",
}

func rowValues(row pricing.MonthlyRow) []decimal.Decimal {
	return []decimal.Decimal{
		row.Revenue, row.COGS, row.RebatesContra, row.GrossMargin,
		row.Overheads, row.CapexDepreciation, row.FX, row.Tax, row.Net,
	}
}

// WriteTable renders a human-readable monthly table with grouped digits.
func WriteTable(w io.Writer, result *pricing.Result) {
	p := message.NewPrinter(language.English)

	fmt.Fprintf(w, "--- Scenario %s (%s, %s) ---\n", result.ScenarioID, result.Range, result.Mode)
	fmt.Fprintf(w, "%-8s", "Month")
	for _, col := range monthlyColumns[1:] {
		fmt.Fprintf(w, " | %18s", col)
	}
	fmt.Fprintln(w)

	writeRow := func(label string, row pricing.MonthlyRow) {
		fmt.Fprintf(w, "%-8s", label)
		for _, v := range rowValues(row) {
			_, _ = p.Fprintf(w, " | %18.2f", v.InexactFloat64())
		}
		fmt.Fprintln(w)
	}
	for _, row := range result.Rows {
		writeRow(row.Month.String(), row)
	}
	writeRow("TOTAL", result.Total)

	if len(result.Cash) > 0 {
		fmt.Fprintf(w, "\nCash schedule:\n")
		for _, c := range result.Cash {
			_, _ = p.Fprintf(w, "  %s  %12.2f  (%s)\n", c.Month, c.Amount.InexactFloat64(), c.RebateID)
		}
	}
	if len(result.Issues) > 0 {
		fmt.Fprintf(w, "\nIssues (%d):\n", len(result.Issues))
		for _, issue := range result.Issues {
			fmt.Fprintf(w, "  [%s] %s\n", issue.Source, issue.Message)
		}
	}
}

// WriteCSV renders the monthly rows in comma-separated value format.
func WriteCSV(w io.Writer, result *pricing.Result) {
	fmt.Fprintf(w, `"%s"`, strings.Join(monthlyColumns, `","`))
	fmt.Fprintln(w)

	writeRow := func(label string, row pricing.MonthlyRow) {
		fmt.Fprintf(w, `"%s"`, label)
		for _, v := range rowValues(row) {
			fmt.Fprintf(w, `,"%s"`, v.StringFixed(2))
		}
		fmt.Fprintln(w)
	}
	for _, row := range result.Rows {
		writeRow(row.Month.String(), row)
	}
	writeRow("total", result.Total)
}

// CSVString returns the CSV rendering as a string.
func CSVString(result *pricing.Result) string {
	var b strings.Builder
	WriteCSV(&b, result)
	return b.String()
}

// WritePreviewTable renders the single-line pricing breakdown.
func WritePreviewTable(w io.Writer, p *pricing.LinePreview, m pricing.Month) {
	pr := message.NewPrinter(language.English)

	fmt.Fprintf(w, "--- Line preview at %s ---\n", m)
	_, _ = pr.Fprintf(w, "%-22s %16.2f\n", "Base price", p.BasePrice.InexactFloat64())
	fmt.Fprintf(w, "%-22s %16s\n", "Formulation factor", factor(p.FormulationFactor))
	fmt.Fprintf(w, "%-22s %16s\n", "Escalation multiplier", factor(p.EscalationMultiplier))
	_, _ = pr.Fprintf(w, "%-22s %16.2f\n", "Unit price", p.UnitPrice.InexactFloat64())
	fmt.Fprintf(w, "%-22s %16s\n", "Quantity", p.Quantity.String())
	_, _ = pr.Fprintf(w, "%-22s %16.2f", "Line total", p.LineTotal.InexactFloat64())
	if p.Currency != "" {
		fmt.Fprintf(w, " %s", p.Currency)
	}
	fmt.Fprintln(w)
}
