package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/modu-ai/moai-rank/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [version]",
	Short: "Run database migrations",
	Long: `Run database migrations.

Without arguments, runs all pending migrations (up).
With a version number, migrates to that specific version (up or down as needed).

Examples:
  moai-rank migrate           # Run all pending migrations
  moai-rank migrate 0         # Roll back all migrations
  moai-rank migrate --force 1 # Clear a dirty flag and record version 1`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrate,
}

var migrateForce bool

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "Record the given version without running migrations")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app, err := NewAppContext(ctx, false)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	m, err := migrate.New(app.DB, app.Log)
	if err != nil {
		return err
	}
	if err := m.EnsureTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	current, dirty, err := m.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Current version: %d", current)
	if dirty {
		fmt.Fprint(out, " (dirty)")
	}
	fmt.Fprintln(out)

	var target int
	if len(args) == 1 {
		if target, err = strconv.Atoi(args[0]); err != nil || target < 0 {
			return fmt.Errorf("invalid version number: %s", args[0])
		}
	}

	if migrateForce {
		if len(args) == 0 {
			return fmt.Errorf("--force requires a version")
		}
		if err := m.Force(ctx, target); err != nil {
			return err
		}
		fmt.Fprintf(out, "Forced version %d\n", target)
		return nil
	}

	var applied int
	switch {
	case len(args) == 0:
		applied, err = m.Up(ctx)
	case target > current:
		applied, err = m.UpTo(ctx, target)
	case target < current:
		applied, err = m.DownTo(ctx, target)
	default:
		fmt.Fprintln(out, "Already at target version")
		return nil
	}
	if err != nil {
		return err
	}

	current, _, err = m.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Applied %d migration(s), now at version %d\n", applied, current)
	return nil
}
