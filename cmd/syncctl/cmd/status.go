package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/syncbridge/syncbridge/pkg/client"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		report, err := c.Health(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch health: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, _ := json.MarshalIndent(report, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Status: %s\n\n", report.Status)
		names := make([]string, 0, len(report.Components))
		for name := range report.Components {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "COMPONENT\tHEALTHY")
		for _, name := range names {
			fmt.Fprintf(w, "%s\t%v\n", name, report.Components[name])
		}
		return w.Flush()
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show sync and enrichment counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		m, err := c.GetMetrics(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch metrics: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, _ := json.MarshalIndent(m, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Files tracked:   %d (%d synced, %d pending)\n",
			m.Sync.TotalFiles, m.Sync.SyncedFiles, m.Sync.PendingOperations)
		fmt.Printf("Success rate:    %.1f%%\n", m.Sync.SuccessRate*100)
		fmt.Printf("Conflicts:       %d\n", m.Sync.ConflictsCount)
		fmt.Printf("Errors:          %d\n", m.Sync.ErrorsCount)
		fmt.Printf("Storage used:    A=%d bytes, B=%d bytes\n", m.Sync.StorageUsedA, m.Sync.StorageUsedB)
		if !m.Sync.LastSyncAt.IsZero() {
			fmt.Printf("Last sync:       %s\n", m.Sync.LastSyncAt.Format(time.RFC3339))
		}
		fmt.Printf("OCR processed:   %d (%d ok, %d failed, avg confidence %.2f, queue %d)\n",
			m.Enrichment.TotalProcessed, m.Enrichment.Successful, m.Enrichment.Failed,
			m.Enrichment.AvgConfidence, m.Enrichment.QueueDepth)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(metricsCmd)
	statusCmd.Flags().Bool("json", false, "Output as JSON")
	metricsCmd.Flags().Bool("json", false, "Output as JSON")
}
