package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge data past its retention horizon",
	Long: `Delete usage events, daily aggregates and activity logs older than the
configured retention (90 days by default) and daily rankings older than
30 days. Weekly, monthly and all-time rankings are kept.`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := NewAppContext(ctx, true)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	summary, err := app.RetentionService().Sweep(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage events removed:     %d (before %s)\n", summary.UsageEvents, summary.UsageCutoff)
	fmt.Fprintf(out, "Daily aggregates removed: %d\n", summary.DailyAggregates)
	fmt.Fprintf(out, "Daily rankings removed:   %d (before %s)\n", summary.DailyRankings, summary.DailyRankingCutoff)
	fmt.Fprintf(out, "Activity logs removed:    %d\n", summary.ActivityLogs)
	return nil
}
