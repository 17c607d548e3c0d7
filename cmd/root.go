// Package cmd defines the CLI commands for the aeoscan executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenlix/aeoscan/internal/config"
	"github.com/xenlix/aeoscan/internal/logging"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aeoscan",
		Short: "URL scanner scoring pages for answer-engine readiness",
		Long: `aeoscan fetches a page, extracts its structure and business signals,
and scores it against an AEO/GEO rule table. The serve command runs the
full HTTP service with background workers; the scan command runs a single
scan in the foreground.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; env vars use the AEOSCAN_ prefix)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newScanCmd())

	return cmd
}

// loadConfigAndLogger is shared setup for all subcommands.
func loadConfigAndLogger() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
