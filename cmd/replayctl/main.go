package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var (
	flagURL   string
	flagJSON  bool
	flagDebug bool
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "replayctl",
		Short: "CLI for the replay server",
		Long:  "A command-line interface for inspecting live replay sessions and stored replay reports.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "Replay server URL (env: UI_REPLAY_URL)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug output")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "replayctl %s (commit: %s, built: %s)\n", Version, Commit, BuildDate)
		},
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newReportsCmd())
	rootCmd.AddCommand(newSessionsCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
