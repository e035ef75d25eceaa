package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCommand assembles the ccmonitor command tree.
func NewRootCommand() *cobra.Command {
	var global globalFlags

	rootCmd := &cobra.Command{
		Use:   "ccmonitor",
		Short: "Claude usage accounting and limit estimation",
		Long: `ccmonitor groups usage events into session windows, estimates per-window
limits for the selected plan and publishes usage snapshots to a JSON state
file, a Prometheus endpoint or the terminal.`,
		SilenceUsage: true,
	}

	global.bind(rootCmd)
	rootCmd.AddCommand(
		NewMonitorCommand(&global),
		NewStatusCommand(&global),
	)
	return rootCmd
}
