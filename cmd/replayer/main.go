package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is the application version (set during build).
	Version = "dev"

	// Commit is the git commit hash (set during build).
	Commit = "unknown"

	// BuildDate is the build date (set during build).
	BuildDate = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "replayer",
	Short: "Recorded UI flow replay engine",
	Long: `Replays recorded browser flows step by step against a live browser,
waiting for pages to settle, answering native dialogs, following popups and
comparing screenshots against their recorded baselines.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "replayer %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
