package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/modu-ai/moai-rank/internal/domain"
	"github.com/modu-ai/moai-rank/internal/util"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage leaderboard participants",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a user and issue an API key",
	Long: `Register a user and print their API key.

The key is shown only once; only its hash is stored.

Examples:
  moai-rank user create --username alice --display-name "Alice"`,
	RunE: runUserCreate,
}

var userRotateCmd = &cobra.Command{
	Use:   "rotate-key <id|username>",
	Short: "Issue a new API key, revoking the current one",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserRotate,
}

var userPrivacyCmd = &cobra.Command{
	Use:   "privacy <id|username> <on|off>",
	Short: "Show or hide a user's identity on public leaderboards",
	Args:  cobra.ExactArgs(2),
	RunE:  runUserPrivacy,
}

var userShowCmd = &cobra.Command{
	Use:   "show <id|username>",
	Short: "Show a user and their current ranks",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserShow,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE:  runUserList,
}

var (
	userUsername    string
	userDisplayName string
)

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd, userRotateCmd, userPrivacyCmd, userShowCmd, userListCmd)

	userCreateCmd.Flags().StringVar(&userUsername, "username", "", "Unique username (required)")
	userCreateCmd.Flags().StringVar(&userDisplayName, "display-name", "", "Display name (defaults to the username)")
	_ = userCreateCmd.MarkFlagRequired("username")
}

func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *AppContext) error) error {
	ctx := cmd.Context()
	app, err := NewAppContext(ctx, true)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())
	return fn(ctx, app)
}

func printCredentials(out io.Writer, user *domain.User, key string) {
	fmt.Fprintf(out, "User ID:  %s\n", user.ID)
	fmt.Fprintf(out, "Username: %s\n", user.Username)
	fmt.Fprintf(out, "API key:  %s\n", key)
	fmt.Fprintln(out, "\nStore this key now; it cannot be shown again.")
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *AppContext) error {
		creds, err := app.UserService().Create(ctx, userUsername, userDisplayName)
		if err != nil {
			return err
		}
		printCredentials(cmd.OutOrStdout(), creds.User, creds.APIKey)
		return nil
	})
}

func runUserRotate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *AppContext) error {
		creds, err := app.UserService().RotateKey(ctx, args[0])
		if err != nil {
			return err
		}
		printCredentials(cmd.OutOrStdout(), creds.User, creds.APIKey)
		return nil
	})
}

func runUserPrivacy(cmd *cobra.Command, args []string) error {
	var enabled bool
	switch args[1] {
	case "on", "true", "private":
		enabled = true
	case "off", "false", "public":
	default:
		return fmt.Errorf("privacy must be on or off, got %q", args[1])
	}

	return withApp(cmd, func(ctx context.Context, app *AppContext) error {
		user, err := app.UserService().SetPrivacy(ctx, args[0], enabled)
		if err != nil {
			return err
		}
		state := "public"
		if user.PrivacyMode {
			state = "private"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.Username, state)
		return nil
	})
}

func runUserShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *AppContext) error {
		user, err := app.UserService().Show(ctx, args[0])
		if err != nil {
			return err
		}
		ranks, err := app.LeaderboardService().ForUser(ctx, user)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "User ID:      %s\n", user.ID)
		fmt.Fprintf(out, "Username:     %s\n", user.Username)
		fmt.Fprintf(out, "Display name: %s\n", user.DisplayName)
		fmt.Fprintf(out, "Key prefix:   %s\n", user.APIKeyPrefix)
		fmt.Fprintf(out, "Private:      %t\n", user.PrivacyMode)
		fmt.Fprintf(out, "Sessions:     %d\n", ranks.Totals.SessionCount)
		fmt.Fprintf(out, "Tokens:       %s\n\n", util.FormatTokens(ranks.Totals.TotalTokens))

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PERIOD\tSTART\tRANK\tSCORE\tTOKENS")
		fmt.Fprintln(w, "------\t-----\t----\t-----\t------")
		for _, r := range ranks.Rankings {
			rank := "-"
			if r.Rank != nil {
				rank = fmt.Sprintf("%d/%d", *r.Rank, r.TotalParticipants)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n",
				r.Period, r.PeriodStart, rank, r.CompositeScore, util.FormatTokens(r.TotalTokens))
		}
		return w.Flush()
	})
}

func runUserList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *AppContext) error {
		list, err := app.UserService().List(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No users found")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSERNAME\tKEY PREFIX\tPRIVATE\tCREATED")
		fmt.Fprintln(w, "--\t--------\t----------\t-------\t-------")
		for _, u := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
				u.ID, u.Username, u.APIKeyPrefix, u.PrivacyMode, u.CreatedAt.Format("2006-01-02"))
		}
		return w.Flush()
	})
}
