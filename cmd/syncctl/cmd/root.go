package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	baseURL string
	apiKey  string
)

var rootCmd = &cobra.Command{
	Use:   "syncctl",
	Short: "syncctl - Inspect and control a running syncbridge server",
	Long: `syncctl is a command-line tool for operating a syncbridge server.

It provides commands to check health, read sync metrics, list tracked
entries, trigger immediate sync passes, drain the OCR backlog, and resolve
conflicts that the manual strategy left frozen.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", getEnvOrDefault("SYNCBRIDGE_API_URL", "http://localhost:8080"), "syncbridge API base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("SYNCBRIDGE_API_KEY"), "syncbridge API key")
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}
