package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/modu-ai/moai-rank/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API server.

Pending migrations are applied on startup unless --no-migrate is given.

Examples:
  moai-rank serve                # Listen on ADDR (default :8080)
  moai-rank serve --addr :3000   # Listen on port 3000`,
	RunE: runServe,
}

var (
	serveAddr      string
	serveNoMigrate bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides ADDR)")
	serveCmd.Flags().BoolVar(&serveNoMigrate, "no-migrate", false, "Skip applying pending migrations")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewAppContext(ctx, !serveNoMigrate)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	cfg := app.Config
	addr := cfg.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	server := web.NewServer(web.Config{
		Addr:            addr,
		CronSecret:      cfg.CronSecret,
		MaxBodyBytes:    cfg.Ingest.MaxBodyBytes,
		RateLimit:       cfg.Ingest.RateLimit,
		RateWindow:      cfg.Ingest.RateWindow,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, web.Services{
		Ingest:      app.IngestService(),
		Leaderboard: app.LeaderboardService(),
		Ranking:     app.RankingService(),
		Retention:   app.RetentionService(),
		Limiter:     app.Limiter,
	}, app.Log)

	if cfg.CronSecret == "" {
		app.Log.Warn("CRON_SECRET is not set, cron endpoints will reject every request")
	}
	return server.Start(ctx)
}
