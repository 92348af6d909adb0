package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/modu-ai/moai-rank/internal/domain"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Recompute leaderboard rankings",
	Long: `Recompute rankings for every period, or only the ones named with --period.

Exits non-zero when any period failed.

Examples:
  moai-rank rank                          # All periods
  moai-rank rank --period daily --period weekly`,
	RunE: runRank,
}

var rankPeriods []string

func init() {
	rootCmd.AddCommand(rankCmd)
	rankCmd.Flags().StringSliceVar(&rankPeriods, "period", nil, "Period to rank (daily, weekly, monthly, all_time); repeatable")
}

func runRank(cmd *cobra.Command, args []string) error {
	periods := domain.Periods
	if len(rankPeriods) > 0 {
		periods = nil
		for _, raw := range rankPeriods {
			p, err := domain.ParsePeriod(raw)
			if err != nil {
				return err
			}
			periods = append(periods, p)
		}
	}

	ctx := cmd.Context()
	app, err := NewAppContext(ctx, true)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	summary := app.RankingService().RunPeriods(ctx, periods)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PERIOD\tSTART\tSTATUS\tUSERS\tREMOVED\tDURATION")
	fmt.Fprintln(w, "------\t-----\t------\t-----\t-------\t--------")
	for _, r := range summary.Results {
		status := "ok"
		if !r.Success {
			status = "failed: " + r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%dms\n",
			r.Period, r.PeriodStart, status, r.UsersRanked, r.Removed, r.DurationMs)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d periods failed", summary.Failed, len(summary.Results))
	}
	return nil
}
