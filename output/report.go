/*
Package output renders aggregation results for people and machines.

PURPOSE:
  Decouples the pricing package's result types from everything downstream:
  JSON payloads for the surrounding CRM, pretty tables and CSV for the
  terminal, XLSX workbooks for the commercial teams who live in spreadsheets.

NAMING CONVENTION:
  - *DTO: wire types with json tags; money renders as fixed 2dp strings so
    no consumer ever reparses floats
  - Write*: stream a rendering onto an io.Writer (or a file for XLSX)

SEE ALSO:
  - format.go: pretty table and CSV renderings
  - xlsx.go: workbook export
*/
package output

import (
	"io"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/warp/bizcase-engine/pricing"
)

// =============================================================================
// REPORT DTOs
// =============================================================================

// ReportDTO is the machine-readable form of a computed scenario.
type ReportDTO struct {
	ScenarioID string          `json:"scenario_id"`
	From       string          `json:"from"`
	To         string          `json:"to"`
	Mode       string          `json:"mode"`
	Rows       []MonthlyRowDTO `json:"rows"`
	Total      MonthlyRowDTO   `json:"total"`
	Cash       []CashEffectDTO `json:"cash_schedule,omitempty"`
	Issues     []IssueDTO      `json:"issues,omitempty"`
}

// MonthlyRowDTO carries one month of the P&L. Month is empty on the total row.
type MonthlyRowDTO struct {
	Month             string `json:"month,omitempty"`
	Revenue           string `json:"revenue"`
	COGS              string `json:"cogs"`
	RebatesContra     string `json:"rebates_contra"`
	GrossMargin       string `json:"gross_margin"`
	Overheads         string `json:"overheads"`
	CapexDepreciation string `json:"capex_depreciation"`
	FX                string `json:"fx"`
	Tax               string `json:"tax"`
	Net               string `json:"net"`
}

// CashEffectDTO is one rebate payment in the cash schedule.
type CashEffectDTO struct {
	RebateID string `json:"rebate_id"`
	Month    string `json:"month"`
	Amount   string `json:"amount"`
}

// IssueDTO is a downgraded error from a non-strict run.
type IssueDTO struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Message string `json:"message"`
}

// PreviewDTO is the single-line pricing breakdown.
type PreviewDTO struct {
	Month                string `json:"month"`
	BasePrice            string `json:"base_price"`
	FormulationFactor    string `json:"formulation_factor"`
	EscalationMultiplier string `json:"escalation_multiplier"`
	UnitPrice            string `json:"unit_price"`
	Quantity             string `json:"quantity"`
	LineTotal            string `json:"line_total"`
	Currency             string `json:"currency,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(d decimal.Decimal) string { return d.StringFixed(2) }

// factor renders a ratio/multiplier: full precision is carried internally,
// six places is plenty for a human-facing breakdown.
func factor(d decimal.Decimal) string { return d.Round(6).String() }

func toMonthlyRowDTO(row pricing.MonthlyRow, withMonth bool) MonthlyRowDTO {
	dto := MonthlyRowDTO{
		Revenue:           money(row.Revenue),
		COGS:              money(row.COGS),
		RebatesContra:     money(row.RebatesContra),
		GrossMargin:       money(row.GrossMargin),
		Overheads:         money(row.Overheads),
		CapexDepreciation: money(row.CapexDepreciation),
		FX:                money(row.FX),
		Tax:               money(row.Tax),
		Net:               money(row.Net),
	}
	if withMonth {
		dto.Month = row.Month.String()
	}
	return dto
}

// BuildReport converts a result into its wire form.
func BuildReport(result *pricing.Result) *ReportDTO {
	report := &ReportDTO{
		ScenarioID: string(result.ScenarioID),
		From:       result.Range.From.String(),
		To:         result.Range.To.String(),
		Mode:       string(result.Mode),
		Rows:       make([]MonthlyRowDTO, len(result.Rows)),
		Total:      toMonthlyRowDTO(result.Total, false),
	}
	for i, row := range result.Rows {
		report.Rows[i] = toMonthlyRowDTO(row, true)
	}
	for _, c := range result.Cash {
		report.Cash = append(report.Cash, CashEffectDTO{
			RebateID: string(c.RebateID),
			Month:    c.Month.String(),
			Amount:   money(c.Amount),
		})
	}
	for _, issue := range result.Issues {
		report.Issues = append(report.Issues, IssueDTO{
			ID:      issue.ID,
			Source:  issue.Source,
			Message: issue.Message,
		})
	}
	return report
}

// BuildPreview converts a line preview into its wire form.
func BuildPreview(p *pricing.LinePreview, m pricing.Month) *PreviewDTO {
	return &PreviewDTO{
		Month:                m.String(),
		BasePrice:            money(p.BasePrice),
		FormulationFactor:    factor(p.FormulationFactor),
		EscalationMultiplier: factor(p.EscalationMultiplier),
		UnitPrice:            money(p.UnitPrice),
		Quantity:             p.Quantity.String(),
		LineTotal:            money(p.LineTotal),
		Currency:             p.Currency,
	}
}

// WriteJSON renders a result as indented JSON.
func WriteJSON(w io.Writer, result *pricing.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(BuildReport(result))
}

// WritePreviewJSON renders a line preview as indented JSON.
func WritePreviewJSON(w io.Writer, p *pricing.LinePreview, m pricing.Month) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(BuildPreview(p, m))
}
