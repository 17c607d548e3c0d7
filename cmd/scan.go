package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xenlix/aeoscan/internal/app"
	"github.com/xenlix/aeoscan/internal/config"
	"github.com/xenlix/aeoscan/internal/scan"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan URL",
		Short: "Scan a single URL and print the report",
		Long: `Runs the full scan pipeline against one URL in the foreground and
prints the resulting report as JSON. No HTTP server or queue is started.`,
		Args: cobra.ExactArgs(1),
		RunE: runScanCommand,
	}
}

func runScanCommand(cmd *cobra.Command, args []string) error {
	target := args[0]
	if err := scan.ValidateTargetURL(target); err != nil {
		return err
	}

	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	// One-shot scans always use in-process backends.
	cfg.DB.DSN = ""
	cfg.Queue = config.QueueConfig{Backend: "memory", Depth: 1}

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer a.Close()

	job, err := a.ScanOnce(cmd.Context(), target)
	if err != nil {
		return err
	}
	if job.State != scan.StateFullReady {
		return errors.New("scan failed: " + job.ErrorText)
	}

	out, err := json.MarshalIndent(job.Full, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	cmd.Println(string(out))
	return nil
}
