package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modu-ai/moai-rank/internal/adapters/cache"
	"github.com/modu-ai/moai-rank/internal/adapters/ratelimit"
	"github.com/modu-ai/moai-rank/internal/adapters/sqldb"
	"github.com/modu-ai/moai-rank/internal/ingest"
	"github.com/modu-ai/moai-rank/internal/leaderboard"
	"github.com/modu-ai/moai-rank/internal/ports/portsmock"
	"github.com/modu-ai/moai-rank/internal/ranking"
	"github.com/modu-ai/moai-rank/internal/retention"
	"github.com/modu-ai/moai-rank/internal/testutil"
	"github.com/modu-ai/moai-rank/internal/users"
	"github.com/modu-ai/moai-rank/internal/web"
)

const cronSecret = "s3cret-token"

var serverNow = time.Date(2026, time.March, 12, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db      *sqldb.DB
	handler http.Handler
	apiKey  string
	userID  string
}

func newFixture(t *testing.T, rateLimit int) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	repos := sqldb.NewRepositories(db)
	clock := func() time.Time { return serverNow }
	metrics := &portsmock.RecordingExporter{}
	memory := cache.NewMemory().WithClock(clock)

	creds, err := users.NewService(repos.Users, repos.Activities, nil).WithClock(clock).
		Create(context.Background(), "alice", "Alice")
	require.NoError(t, err)

	svc := web.Services{
		Ingest:      ingest.NewService(repos.Users, repos.Usage, metrics, nil, ingest.Options{}).WithClock(clock),
		Leaderboard: leaderboard.NewService(repos.Rankings, repos.Usage, memory, metrics, nil).WithClock(clock),
		Ranking:     ranking.NewService(repos.Usage, repos.Rankings, memory, metrics, nil, ranking.Options{}).WithClock(clock),
		Retention:   retention.NewService(repos.Usage, repos.Rankings, repos.Activities, nil, retention.Options{}).WithClock(clock),
		Limiter:     ratelimit.NewMemory().WithClock(clock),
	}
	server := web.NewServer(web.Config{CronSecret: cronSecret, RateLimit: rateLimit, RateWindow: time.Minute}, svc, nil)
	return &fixture{db: db, handler: server.Handler(), apiKey: creds.APIKey, userID: creds.User.ID}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func (f *fixture) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func (f *fixture) signed(t *testing.T, path string, body []byte, ts time.Time) *http.Request {
	t.Helper()
	stamp := strconv.FormatInt(ts.Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", f.apiKey)
	req.Header.Set("X-Timestamp", stamp)
	req.Header.Set("X-Signature", ingest.Sign(f.apiKey, stamp, body))
	return req
}

func sessionJSON(endedAt time.Time, input, output int64) map[string]any {
	return map[string]any{
		"sessionHash":  fmt.Sprintf("%064x", endedAt.UnixNano()),
		"endedAt":      endedAt.Format(time.RFC3339),
		"modelName":    "claude-sonnet",
		"inputTokens":  input,
		"outputTokens": output,
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestHealth(t *testing.T) {
	f := newFixture(t, 100)
	rec, env := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestCreateSession(t *testing.T) {
	f := newFixture(t, 100)
	body := mustJSON(t, sessionJSON(serverNow.Add(-time.Hour), 1000, 500))

	rec, env := f.do(t, f.signed(t, "/api/v1/sessions", body, serverNow))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.NotEmpty(t, created.SessionID)

	rec, env = f.do(t, f.signed(t, "/api/v1/sessions", body, serverNow))
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "DUPLICATE_SESSION", env.Error.Code)
	assert.Equal(t, "Session already recorded", env.Error.Message)
}

func TestCreateSession_Unauthorized(t *testing.T) {
	f := newFixture(t, 100)
	body := mustJSON(t, sessionJSON(serverNow.Add(-time.Hour), 1000, 500))

	tests := []struct {
		name   string
		mutate func(r *http.Request)
	}{
		{"bad signature", func(r *http.Request) { r.Header.Set("X-Signature", "00ff") }},
		{"unknown key", func(r *http.Request) { r.Header.Set("X-API-Key", "moai_rank_doesnotexist") }},
		{"missing key", func(r *http.Request) { r.Header.Del("X-API-Key") }},
		{"stale timestamp", func(r *http.Request) {
			stamp := strconv.FormatInt(serverNow.Add(-301*time.Second).Unix(), 10)
			r.Header.Set("X-Timestamp", stamp)
			r.Header.Set("X-Signature", ingest.Sign(f.apiKey, stamp, body))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.signed(t, "/api/v1/sessions", body, serverNow)
			tt.mutate(req)
			rec, env := f.do(t, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
			assert.Equal(t, "Invalid credentials", env.Error.Message, "failures are indistinguishable")
		})
	}
}

func TestCreateSession_Validation(t *testing.T) {
	f := newFixture(t, 100)
	report := sessionJSON(serverNow.Add(-time.Hour), -5, 500)
	report["sessionHash"] = "short"

	rec, env := f.do(t, f.signed(t, "/api/v1/sessions", mustJSON(t, report), serverNow))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Details, "inputTokens")
	assert.Contains(t, env.Error.Details, "sessionHash")

	rec, env = f.do(t, f.signed(t, "/api/v1/sessions", []byte("{not json"), serverNow))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestCreateSession_RateLimited(t *testing.T) {
	f := newFixture(t, 2)

	for i := range 2 {
		body := mustJSON(t, sessionJSON(serverNow.Add(-time.Duration(i+1)*time.Minute), 10, 10))
		rec, _ := f.do(t, f.signed(t, "/api/v1/sessions", body, serverNow))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	body := mustJSON(t, sessionJSON(serverNow.Add(-10*time.Minute), 10, 10))
	rec, env := f.do(t, f.signed(t, "/api/v1/sessions", body, serverNow))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", env.Error.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestCreateSessionBatch(t *testing.T) {
	f := newFixture(t, 100)
	first := sessionJSON(serverNow.Add(-2*time.Hour), 100, 50)
	invalid := sessionJSON(serverNow.Add(-3*time.Hour), 100, 50)
	invalid["endedAt"] = "yesterday"
	body := mustJSON(t, map[string]any{"sessions": []any{
		first,
		sessionJSON(serverNow.AddDate(0, 0, -40), 700, 300),
		first,
		invalid,
	}})

	rec, env := f.do(t, f.signed(t, "/api/v1/sessions/batch", body, serverNow))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result ingest.BatchResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Results, 4)
	assert.Equal(t, ingest.StatusDuplicate, result.Results[2].Status)
	assert.Equal(t, ingest.StatusFailed, result.Results[3].Status)
	assert.Equal(t, "VALIDATION_ERROR", result.Results[3].Error.Code)

	rec, env = f.do(t, f.signed(t, "/api/v1/sessions/batch", mustJSON(t, map[string]any{"sessions": []any{}}), serverNow))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestCreateSessionBatch_MalformedItemsFailIndividually(t *testing.T) {
	f := newFixture(t, 100)
	wrongType := sessionJSON(serverNow.Add(-2*time.Hour), 100, 50)
	wrongType["inputTokens"] = "abc"
	missingOutput := sessionJSON(serverNow.Add(-3*time.Hour), 100, 50)
	delete(missingOutput, "outputTokens")
	body := mustJSON(t, map[string]any{"sessions": []any{
		sessionJSON(serverNow.Add(-time.Hour), 100, 50),
		wrongType,
		missingOutput,
	}})

	rec, env := f.do(t, f.signed(t, "/api/v1/sessions/batch", body, serverNow))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result ingest.BatchResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Results, 3)
	assert.Equal(t, ingest.StatusCreated, result.Results[0].Status)

	require.NotNil(t, result.Results[1].Error)
	assert.Equal(t, "VALIDATION_ERROR", result.Results[1].Error.Code)
	assert.Contains(t, result.Results[1].Error.Details, "inputTokens")

	require.NotNil(t, result.Results[2].Error)
	assert.Equal(t, "VALIDATION_ERROR", result.Results[2].Error.Code)
	assert.Equal(t, "is required", result.Results[2].Error.Details["outputTokens"])
}

func TestCreateSession_MissingTokenCounts(t *testing.T) {
	f := newFixture(t, 100)
	report := sessionJSON(serverNow.Add(-time.Hour), 100, 50)
	delete(report, "inputTokens")
	delete(report, "outputTokens")

	rec, env := f.do(t, f.signed(t, "/api/v1/sessions", mustJSON(t, report), serverNow))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Equal(t, "is required", env.Error.Details["inputTokens"])
	assert.Equal(t, "is required", env.Error.Details["outputTokens"])

	var rows int
	require.NoError(t, f.db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM token_usage`).Scan(&rows))
	assert.Zero(t, rows)
}

func (f *fixture) cron(t *testing.T, path, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return f.do(t, req)
}

func TestCronRequiresSecret(t *testing.T) {
	f := newFixture(t, 100)
	for _, path := range []string{"/api/cron/calculate-rankings", "/api/cron/cleanup"} {
		rec, _ := f.cron(t, path, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		rec, _ = f.cron(t, path, "wrong")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestRankingFlow(t *testing.T) {
	f := newFixture(t, 100)

	body := mustJSON(t, sessionJSON(time.Date(2026, time.March, 11, 15, 0, 0, 0, time.UTC), 1000, 500))
	rec, _ := f.do(t, f.signed(t, "/api/v1/sessions", body, serverNow))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := f.cron(t, "/api/cron/calculate-rankings", cronSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary ranking.Summary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 4, summary.Succeeded)

	rec, env = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/leaderboard?period=daily&limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var page leaderboard.Page
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, "2026-03-11", page.PeriodStart)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "alice", page.Entries[0].Username)
	assert.Equal(t, int64(1), page.Entries[0].Rank)
	assert.False(t, page.Pagination.HasMore)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rank", nil)
	req.Header.Set("X-API-Key", f.apiKey)
	rec, env = f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var ranks leaderboard.UserRanks
	require.NoError(t, json.Unmarshal(env.Data, &ranks))
	require.NotNil(t, ranks.Rankings[0].Rank)
	assert.Equal(t, int64(1), *ranks.Rankings[0].Rank)
	assert.Equal(t, int64(1500), ranks.Totals.TotalTokens)

	rec, _ = f.cron(t, "/api/cron/cleanup", cronSecret)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLeaderboard_BadParameters(t *testing.T) {
	f := newFixture(t, 100)
	for _, q := range []string{"period=yearly", "limit=0", "limit=101", "limit=abc", "offset=-1"} {
		rec, env := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/leaderboard?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, "VALIDATION_ERROR", env.Error.Code, q)
	}
}

func TestVerify(t *testing.T) {
	f := newFixture(t, 100)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/verify", nil)
	req.Header.Set("X-API-Key", f.apiKey)
	rec, env := f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, f.userID, data["userId"])
	assert.Equal(t, f.apiKey[:18], data["apiKeyPrefix"])

	req = httptest.NewRequest(http.MethodGet, "/api/v1/verify", nil)
	req.Header.Set("X-API-Key", "moai_rank_nope")
	rec, _ = f.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, 100)
	rec, env := f.do(t, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}
