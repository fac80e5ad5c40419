package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/bizcase-engine/factory"
)

var (
	importXLSXPath   string
	importSheet      string
	importConfigPath string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import index points or a business-case bundle into the store",
	Long:  "Upserts index points from an XLSX sheet (code/month/value columns) and/or applies a business-case JSON bundle. Existing points for the same series and month are overwritten.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if importXLSXPath == "" && importConfigPath == "" {
			return eris.New("one of --xlsx or --config is required")
		}

		st, closeStore, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		if importConfigPath != "" {
			if err := loadBundle(ctx, st, importConfigPath); err != nil {
				return err
			}
			zap.L().Info("bundle imported", zap.String("config", importConfigPath))
		}

		if importXLSXPath != "" {
			imp, err := factory.ReadIndexPointsXLSX(importXLSXPath, importSheet)
			if err != nil {
				return eris.Wrap(err, "read xlsx")
			}
			if err := imp.Apply(ctx, st); err != nil {
				return eris.Wrap(err, "apply import")
			}

			zap.L().Info("index points imported",
				zap.Int("series", len(imp.Series)),
				zap.Int("points", len(imp.Points)),
				zap.String("xlsx", importXLSXPath),
			)
		}

		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importXLSXPath, "xlsx", "", "XLSX file with index points")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "sheet name (first sheet when unset)")
	importCmd.Flags().StringVar(&importConfigPath, "config", "", "business-case JSON bundle")
	rootCmd.AddCommand(importCmd)
}
