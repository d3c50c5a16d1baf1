package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirakosyanara/gropos-sub007/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session and queue status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	pending, err := apiClient.Queue.PendingCount(ctx)
	if err != nil {
		return err
	}

	authState := apiClient.Auth.State()

	// Probe with a short deadline so status stays snappy offline.
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	online := apiClient.Ping(probeCtx)
	cancel()

	if jsonOutput {
		printJSON(map[string]interface{}{
			"auth":    authState,
			"online":  online,
			"pending": pending,
			"worker":  apiClient.Worker.State(),
		})
		return nil
	}

	switch authState.Phase {
	case models.AuthAuthenticated:
		printSuccess("Session: authenticated (expires %s)",
			authState.ExpiresAt.Format(time.RFC3339))
	case models.AuthTokenExpired:
		printWarning("Session: token expired")
	default:
		printWarning("Session: %s", authState.Phase)
	}

	if online {
		printSuccess("Backend: reachable")
	} else {
		printWarning("Backend: unreachable")
	}

	printInfo("Pending items: %d", pending)
	return nil
}
