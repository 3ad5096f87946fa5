package cmd

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mqdeck/mqdeck/mqdeckctl/pkg/tui"
)

// dashboardCmd launches the interactive TUI dashboard.
var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Launch the interactive terminal dashboard",
	Long: `Launch a terminal dashboard showing the broker's bridges, loggers,
device connections and decoders with live status. Data is refreshed
every 5 seconds from the broker's GraphQL admin endpoint.

Key bindings:
  Tab / Shift+Tab  Move between entity tabs
  1-6              Jump directly to a tab
  r                Force an immediate refresh
  q / Ctrl+C       Quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := tea.NewProgram(tui.New(client), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
