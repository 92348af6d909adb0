package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modu-ai/moai-rank/internal/ports"
)

func TestAppContextFieldTypes(t *testing.T) {
	// Compile-time verification that AppContext uses port interfaces.
	var a AppContext
	var _ ports.Cache = a.Cache             //nolint:staticcheck
	var _ ports.RateLimiter = a.Limiter     //nolint:staticcheck
	var _ ports.MetricsExporter = a.Metrics //nolint:staticcheck
}

func TestAppContextClose_Empty(t *testing.T) {
	a := &AppContext{}
	assert.NoError(t, a.Close(context.Background()))
}

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "file:"+filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("REDIS_URL", "")
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestUserLifecycle(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "user", "create", "--username", "alice", "--display-name", "Alice")
	require.NoError(t, err, out)
	key := regexp.MustCompile(`moai_rank_[0-9a-f]{48}`).FindString(out)
	require.NotEmpty(t, key, out)

	out, err = run(t, "user", "rotate-key", "alice")
	require.NoError(t, err, out)
	rotated := regexp.MustCompile(`moai_rank_[0-9a-f]{48}`).FindString(out)
	assert.NotEqual(t, key, rotated)

	out, err = run(t, "user", "privacy", "alice", "on")
	require.NoError(t, err, out)
	assert.Contains(t, out, "alice is now private")

	out, err = run(t, "user", "list")
	require.NoError(t, err, out)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, rotated[:18])

	out, err = run(t, "user", "show", "alice")
	require.NoError(t, err, out)
	assert.Contains(t, out, "all_time")

	_, err = run(t, "user", "privacy", "alice", "maybe")
	assert.Error(t, err)
}

func TestRankAndCleanup(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "rank", "--period", "daily")
	require.NoError(t, err, out)
	assert.Contains(t, out, "daily")
	assert.NotContains(t, out, "weekly")

	out, err = run(t, "cleanup")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Usage events removed")

	_, err = run(t, "rank", "--period", "yearly")
	assert.Error(t, err)
	rankPeriods = nil
}

func TestMigrateCommand(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "migrate")
	require.NoError(t, err, out)
	assert.Contains(t, out, "now at version 1")

	out, err = run(t, "migrate", "0")
	require.NoError(t, err, out)
	assert.Contains(t, out, "now at version 0")

	_, err = run(t, "migrate", "abc")
	assert.Error(t, err)
}
