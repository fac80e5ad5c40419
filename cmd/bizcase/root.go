/*
bizcase is the command-line front end of the pricing engine.

PURPOSE:
  Three workflows over one configured store: seed it (import), project a
  scenario over its window (compute), and explain a single line's price at
  one month (preview).

COMMANDS:
  bizcase import  --xlsx points.xlsx | --config case.json
  bizcase compute --scenario scn-1 [--from 2025-01 --to 2027-12] [--format table|csv|json|xlsx]
  bizcase preview --scenario scn-1 --line line-1 --month 2025-06

CONFIGURATION:
  bizcase.yaml in the working directory plus BIZCASE_* environment
  variables; see the config package for keys and defaults.
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/bizcase-engine/config"
	"github.com/warp/bizcase-engine/factory"
	"github.com/warp/bizcase-engine/pricing"
	memstore "github.com/warp/bizcase-engine/pricing/store"
	"github.com/warp/bizcase-engine/store/postgres"
	"github.com/warp/bizcase-engine/store/sqlite"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "bizcase",
	Short: "Business case pricing and rebate computation",
	Long:  "Projects CRM business cases month by month: formulation-priced lines, escalation policies, volume rebates and their lagged cash effects over a scenario window.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := cfg.Validate(); err != nil {
			return err
		}

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// initStore opens the configured store backend. The returned closer is safe
// to defer for every driver.
func initStore(ctx context.Context) (pricing.Store, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		return memstore.NewMemory(), func() {}, nil
	case "sqlite":
		st, err := sqlite.New(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case "postgres":
		st, err := postgres.New(ctx, cfg.Store.DatabaseURL, &postgres.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, nil, eris.Wrap(err, "migrate store")
		}
		return st, func() { _ = st.Close() }, nil
	default:
		return nil, nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// loadBundle parses a business-case JSON file and applies it to the store.
func loadBundle(ctx context.Context, st pricing.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "read config bundle %s", path)
	}

	bundle, err := factory.NewFactory().ParseConfig(data)
	if err != nil {
		return err
	}
	if err := bundle.Apply(ctx, st); err != nil {
		return err
	}

	zap.L().Debug("bundle applied",
		zap.String("path", path),
		zap.Int("series", len(bundle.Series)),
		zap.Int("formulations", len(bundle.Formulations)),
		zap.Int("policies", len(bundle.Policies)),
		zap.Int("scenarios", len(bundle.Scenarios)),
	)
	return nil
}
