package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/syncbridge/syncbridge/pkg/client"
	"github.com/syncbridge/syncbridge/pkg/types"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Trigger an immediate sync pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		result, err := c.ForceSync(ctx)
		if err != nil {
			return fmt.Errorf("failed to force sync: %w", err)
		}
		fmt.Printf("Observed %d change events, retried %d unsynced entries\n",
			result.EventsObserved, result.EntriesRetried)
		return nil
	},
}

var backlogCmd = &cobra.Command{
	Use:   "backlog",
	Short: "Drain the OCR enrichment queue now",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		processed, err := c.ProcessBacklog(ctx)
		if err != nil {
			return fmt.Errorf("failed to process backlog: %w", err)
		}
		fmt.Printf("Processed %d documents\n", processed)
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <file-id> <winner>",
	Short: "Resolve a frozen conflict in favor of side A or B",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var winner types.Side
		switch args[1] {
		case "A", "a":
			winner = types.SideA
		case "B", "b":
			winner = types.SideB
		default:
			return fmt.Errorf("winner must be A or B, got %q", args[1])
		}

		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if err := c.ResolveConflict(ctx, args[0], winner); err != nil {
			return fmt.Errorf("failed to resolve conflict: %w", err)
		}
		fmt.Printf("Conflict on %s resolved in favor of side %s\n", args[0], winner)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(backlogCmd)
	rootCmd.AddCommand(resolveCmd)
}
