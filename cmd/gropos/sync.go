package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Deliver queued work to the backend",
	Long: `Sync drains the outbound queue once and reports the result.

With --watch the worker keeps running, draining on a timer with
exponential backoff while the backend is unreachable and reacting to
backend push nudges.`,
	Example: `  gropos sync
  gropos sync --watch`,
	RunE: runSync,
}

var syncWatch bool

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVarP(&syncWatch, "watch", "w", false,
		"Keep syncing until interrupted")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if syncWatch {
		return runSyncWatch(ctx)
	}

	outcome := apiClient.Worker.SyncNow(ctx)

	if jsonOutput {
		printJSON(outcome)
	} else if outcome.Success {
		printSuccess("Synced %d item(s), queue empty", outcome.ItemsSynced)
	} else {
		printWarning("Synced %d item(s), %d remaining", outcome.ItemsSynced, outcome.Remaining)
		for _, e := range outcome.Errors {
			printError("  %s", e)
		}
	}

	return nil
}

func runSyncWatch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := apiClient.Start(ctx); err != nil {
		return err
	}
	defer apiClient.Stop()

	states := apiClient.Worker.StateChanges()
	go func() {
		for state := range states {
			if state.IsSyncing {
				continue
			}
			logger.WithFields(map[string]interface{}{
				"pending":  state.PendingItems,
				"failures": state.ConsecutiveFailures,
			}).Debug("Worker state")
		}
	}()

	printInfo("Sync worker running, press Ctrl-C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	<-sigChan

	printWarning("\nStopping...")
	return nil
}
