package main

import (
	"os"

	"github.com/alfredjeanlab/reflex/internal/client"
	"github.com/alfredjeanlab/reflex/internal/ui"
	"github.com/spf13/cobra"
)

var (
	httpURL    string
	authToken  string
	jsonOutput bool

	reflexClient client.ReflexClient
)

func defaultHTTPURL() string {
	if s := os.Getenv("REFLEX_HTTP_URL"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

var rootCmd = &cobra.Command{
	Use:   "reflex <command>",
	Short: "CLI client for the Reflex automation service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		reflexClient = client.NewHTTPClient(httpURL, authToken)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if reflexClient != nil {
			reflexClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("REFLEX_AUTH_TOKEN"), "bearer token for the server")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "events", Title: "Events & Tasks:"},
		&cobra.Group{ID: "listeners", Title: "Listeners:"},
		&cobra.Group{ID: "conversations", Title: "Conversations:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Events & Tasks
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(auditCmd)

	// Listeners
	rootCmd.AddCommand(listenerCmd)

	// Conversations
	rootCmd.AddCommand(messageCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
