// Goalguardd sequences trading-strategy goal runs through evidence
// gates, walk-forward validation, and a promotion scorecard.
//
// Usage:
//
//	# Execute the goals in a goal file
//	goalguardd run goals.yaml
//
//	# Use an explicit config file
//	goalguardd run --config /etc/goalguard/config.yaml goals.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "goalguardd",
	Short: "Goal orchestration daemon for trading-strategy promotion",
	Long: `goalguardd drives trading-strategy goals through a gated workflow:
strategy generation, backtesting, dev and product evidence gates,
walk-forward validation, and a non-compensatory promotion scorecard.
Failed cycles are diagnosed and retried through a bounded reflexion loop.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show detailed version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("goalguardd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
