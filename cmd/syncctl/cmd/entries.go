package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/syncbridge/syncbridge/pkg/client"
)

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "List tracked files and their sync state",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		status, _ := cmd.Flags().GetString("status")
		entries, err := c.ListEntries(ctx, status)
		if err != nil {
			return fmt.Errorf("failed to list entries: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("No entries found")
			return nil
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, _ := json.MarshalIndent(entries, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PATH\tSTATUS\tSIZE\tMODIFIED\tENRICHED")
		for _, e := range entries {
			modified := ""
			if !e.LastModified.IsZero() {
				modified = e.LastModified.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%v\n", e.Path, e.SyncStatus, e.Size, modified, e.Enriched)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(entriesCmd)
	entriesCmd.Flags().Bool("json", false, "Output as JSON")
	entriesCmd.Flags().String("status", "", "Filter by sync status (synced, pending, conflict, error, deleted)")
}
