package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ntanasko/floorsync/internal/listing"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Runs a single sync and exits",
		Long: `Executes one full reconciliation against the source site and exits.
Useful for cron-external scheduling and for verifying configuration
before deploying the service.`,
		RunE: runSync,
	}
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	run, err := a.reconciler.Run(ctx)
	if err != nil {
		return fmt.Errorf("sync run: %w", err)
	}
	if run.Status != listing.RunStatusCompleted {
		return fmt.Errorf("sync finished with status %s: %s", run.Status, run.StatusText)
	}
	a.logger.Info("sync completed",
		zap.Int("created", run.Stats.Created),
		zap.Int("updated", run.Stats.Updated),
		zap.Int("deactivated", run.Stats.Deactivated),
		zap.Int("errors", run.Stats.Errors),
	)
	return nil
}
