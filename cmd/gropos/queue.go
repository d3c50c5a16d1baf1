package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the outbound queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending items",
	RunE:  runQueueList,
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd)
}

func runQueueList(cmd *cobra.Command, args []string) error {
	items, err := apiClient.Queue.Items(context.Background())
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(items)
		return nil
	}

	if len(items) == 0 {
		printInfo("Queue empty")
		return nil
	}

	for _, item := range items {
		printInfo("%s  %-15s attempts=%d  enqueued=%s",
			item.ID, item.Type, item.Attempts,
			item.EnqueuedAt.Format(time.RFC3339))
		if item.LastError != "" {
			printWarning("    last error: %s", item.LastError)
		}
	}

	printInfo("\n%d item(s) pending", len(items))
	return nil
}
