package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "moai-rank",
	Short: "Token usage leaderboard service",
	Long: `moai-rank collects signed session usage reports, ranks participants by a
composite score for daily, weekly, monthly and all-time periods, and serves
the resulting leaderboards over HTTP.

Configuration is read from the environment (and an optional .env file).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
