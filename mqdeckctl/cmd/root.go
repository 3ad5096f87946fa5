package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mqdeck/mqdeck/broker"
	"github.com/mqdeck/mqdeck/graph"
)

var (
	// Global flags
	endpoint     string
	outputFormat string
	yesFlag      bool // --yes: skip confirmation prompts for destructive operations

	// Shared state set during PersistentPreRun
	client broker.API
)

// rootCmd is the base command for mqdeckctl.
var rootCmd = &cobra.Command{
	Use:   "mqdeckctl",
	Short: "mqdeck CLI — manage broker bridges, loggers, device connections, and certificates",
	Long: `mqdeckctl is the operator-facing CLI for a mqdeck-managed MQTT broker.
It talks to the broker's GraphQL admin endpoint and covers the same
operations as the web console: entity CRUD, enable/disable, address
mappings, OPC UA certificate trust, and archive import/export.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if client != nil {
			// Injected by a test.
			return nil
		}
		ep := endpoint
		if ep == "" {
			ep = os.Getenv("MQDECK_GRAPHQL_ENDPOINT")
		}
		if ep == "" {
			ep = "http://localhost:4000/graphql"
		}
		client = broker.NewClient(graph.New(ep))
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// SetClient allows tests to inject a fake API client.
func SetClient(c broker.API) {
	client = c
}

// RootCmd exposes the root command for tests.
func RootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "broker GraphQL endpoint (default $MQDECK_GRAPHQL_ENDPOINT)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table or json")
	rootCmd.PersistentFlags().BoolVar(&yesFlag, "yes", false, "skip confirmation prompts")
}
