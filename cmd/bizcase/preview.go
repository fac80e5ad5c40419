package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/warp/bizcase-engine/output"
	"github.com/warp/bizcase-engine/pricing"
)

var (
	previewScenario   string
	previewLineID     string
	previewMonth      string
	previewConfigPath string
	previewJSON       bool
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Explain one line's unit price at a given month",
	Long:  "Shows the pricing chain for a single line: base price, formulation factor, escalation multiplier, unit price and line total.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, closeStore, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		if previewConfigPath != "" {
			if err := loadBundle(ctx, st, previewConfigPath); err != nil {
				return err
			}
		}

		m, err := pricing.ParseMonth(previewMonth)
		if err != nil {
			return eris.Wrapf(err, "parse --month %q", previewMonth)
		}

		s, err := st.GetScenario(ctx, pricing.ScenarioID(previewScenario))
		if err != nil {
			return err
		}

		line, err := findLine(s, previewLineID)
		if err != nil {
			return err
		}

		agg := pricing.NewAggregator(st, nil)
		p, err := agg.PreviewLine(ctx, *line, s.DefaultPolicyID, m)
		if err != nil {
			return err
		}

		if previewJSON {
			return output.WritePreviewJSON(os.Stdout, p, m)
		}
		output.WritePreviewTable(os.Stdout, p, m)
		return nil
	},
}

// findLine resolves --line against the scenario; a scenario with exactly one
// line does not need the flag.
func findLine(s *pricing.Scenario, id string) (*pricing.Line, error) {
	if id == "" {
		if len(s.Lines) == 1 {
			return &s.Lines[0], nil
		}
		return nil, eris.Errorf("scenario %s has %d lines, pick one with --line", s.ID, len(s.Lines))
	}
	for i := range s.Lines {
		if s.Lines[i].ID == pricing.LineID(id) {
			return &s.Lines[i], nil
		}
	}
	return nil, eris.Errorf("line %s not found in scenario %s", id, s.ID)
}

func init() {
	previewCmd.Flags().StringVar(&previewScenario, "scenario", "", "scenario ID (required)")
	previewCmd.Flags().StringVar(&previewLineID, "line", "", "line ID (optional when the scenario has one line)")
	previewCmd.Flags().StringVar(&previewMonth, "month", "", "target month, YYYY-MM (required)")
	previewCmd.Flags().StringVar(&previewConfigPath, "config", "", "business-case JSON bundle to apply first")
	previewCmd.Flags().BoolVar(&previewJSON, "json", false, "emit JSON instead of the table")
	_ = previewCmd.MarkFlagRequired("scenario")
	_ = previewCmd.MarkFlagRequired("month")
	rootCmd.AddCommand(previewCmd)
}
