package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/bizcase-engine/output"
	"github.com/warp/bizcase-engine/pricing"
)

var (
	computeScenarios  []string
	computeConfigPath string
	computeFrom       string
	computeTo         string
	computeMode       string
	computeStrict     bool
	computeFormat     string
	computeOut        string
)

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Compute monthly projections for one or more scenarios",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, closeStore, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		if computeConfigPath != "" {
			if err := loadBundle(ctx, st, computeConfigPath); err != nil {
				return err
			}
		}

		rng, err := parseRangeFlags(computeFrom, computeTo)
		if err != nil {
			return err
		}
		mode, err := parseModeFlag(computeMode)
		if err != nil {
			return err
		}

		if computeFormat == "xlsx" && computeOut == "" {
			return eris.New("--out is required for xlsx output")
		}
		if computeFormat == "xlsx" && len(computeScenarios) > 1 {
			return eris.New("xlsx output supports a single scenario per file")
		}

		reqs := make([]pricing.ComputeRequest, len(computeScenarios))
		for i, id := range computeScenarios {
			reqs[i] = pricing.ComputeRequest{
				ScenarioID: pricing.ScenarioID(id),
				Range:      rng,
				Mode:       mode,
				Strict:     computeStrict,
			}
		}

		agg := pricing.NewAggregator(st, zap.L())

		results, err := agg.ComputePortfolio(ctx, reqs, cfg.Compute.MaxConcurrent)
		if err != nil {
			return eris.Wrap(err, "compute")
		}

		var w io.Writer = os.Stdout
		if computeOut != "" && computeFormat != "xlsx" {
			f, err := os.Create(computeOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", computeOut)
			}
			defer f.Close()
			w = f
		}

		issues := 0
		for _, res := range results {
			issues += len(res.Issues)
			if err := renderResult(w, res); err != nil {
				return err
			}
		}

		zap.L().Info("computation complete",
			zap.Int("scenarios", len(results)),
			zap.Int("issues", issues),
		)
		return nil
	},
}

func renderResult(w io.Writer, res *pricing.Result) error {
	switch computeFormat {
	case "table":
		output.WriteTable(w, res)
		return nil
	case "csv":
		output.WriteCSV(w, res)
		return nil
	case "json":
		return output.WriteJSON(w, res)
	case "xlsx":
		return output.WriteXLSX(computeOut, res)
	default:
		return eris.Errorf("unknown format: %s (want table, csv, json or xlsx)", computeFormat)
	}
}

// parseRangeFlags turns --from/--to into a window override. Both or neither.
func parseRangeFlags(from, to string) (*pricing.MonthRange, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	if from == "" || to == "" {
		return nil, eris.New("--from and --to must be set together")
	}

	f, err := pricing.ParseMonth(from)
	if err != nil {
		return nil, eris.Wrapf(err, "parse --from %q", from)
	}
	t, err := pricing.ParseMonth(to)
	if err != nil {
		return nil, eris.Wrapf(err, "parse --to %q", to)
	}

	rng, err := pricing.NewMonthRange(f, t)
	if err != nil {
		return nil, eris.Wrapf(err, "range %s..%s", from, to)
	}
	return &rng, nil
}

func parseModeFlag(s string) (pricing.EvaluationMode, error) {
	switch s {
	case "", "monthly":
		return pricing.ModeMonthly, nil
	case "ytd":
		return pricing.ModeYTD, nil
	default:
		return "", eris.Errorf("unknown evaluation mode: %s (want monthly or ytd)", s)
	}
}

func init() {
	computeCmd.Flags().StringSliceVar(&computeScenarios, "scenario", nil, "scenario ID (repeatable)")
	computeCmd.Flags().StringVar(&computeConfigPath, "config", "", "business-case JSON bundle to apply before computing")
	computeCmd.Flags().StringVar(&computeFrom, "from", "", "window start, YYYY-MM (defaults to the scenario window)")
	computeCmd.Flags().StringVar(&computeTo, "to", "", "window end, YYYY-MM")
	computeCmd.Flags().StringVar(&computeMode, "mode", "monthly", "tier evaluation mode: monthly or ytd")
	computeCmd.Flags().BoolVar(&computeStrict, "strict", false, "fail on the first data gap instead of reporting issues")
	computeCmd.Flags().StringVar(&computeFormat, "format", "table", "output format: table, csv, json or xlsx")
	computeCmd.Flags().StringVar(&computeOut, "out", "", "output file (stdout when unset; required for xlsx)")
	_ = computeCmd.MarkFlagRequired("scenario")
	rootCmd.AddCommand(computeCmd)
}
