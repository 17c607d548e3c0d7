package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenlix/aeoscan/internal/app"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scan service",
		Long: `Starts the HTTP API, the background scan workers and the job reaper.
The process runs until SIGINT or SIGTERM and shuts down gracefully.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer a.Close()

	logger.Info("starting scan service", zap.Int("port", cfg.Server.Port), zap.Int("workers", cfg.Scan.Workers))
	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("run service: %w", err)
	}
	logger.Info("scan service stopped")
	return nil
}
