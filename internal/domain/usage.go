package domain

import "time"

// UsageEvent is one reported coding session. It is immutable once stored.
type UsageEvent struct {
	ID                  string
	UserID              string
	SessionHash         string
	AnonymousProjectID  *string
	EndedAt             time.Time
	ModelName           *string
	InputTokens         int64
	OutputTokens        int64
	CacheCreationTokens int64
	CacheReadTokens     int64
	CreatedAt           time.Time
}

// Day returns the calendar day (UTC) the event is aggregated into.
func (e *UsageEvent) Day() string {
	return e.EndedAt.UTC().Format(DateLayout)
}

// DailyAggregate accumulates one user's usage for one calendar day.
type DailyAggregate struct {
	UserID            string
	Date              string
	TotalInputTokens  int64
	TotalOutputTokens int64
	TotalCacheTokens  int64
	SessionCount      int64
	AvgEfficiency     float64
	CompositeScore    float64
}

// Add folds an event into the aggregate.
func (a *DailyAggregate) Add(e *UsageEvent) {
	a.TotalInputTokens += e.InputTokens
	a.TotalOutputTokens += e.OutputTokens
	a.TotalCacheTokens += e.CacheCreationTokens + e.CacheReadTokens
	a.SessionCount++
}

// Rescore refreshes the cached scores from the running totals. A single day
// carries no streak context, so the streak term is zero.
func (a *DailyAggregate) Rescore() {
	a.AvgEfficiency = EfficiencyScore(a.TotalInputTokens, a.TotalOutputTokens)
	a.CompositeScore = CompositeScore(a.TotalInputTokens, a.TotalOutputTokens, a.SessionCount, 0)
}

// UsageTotals is the per-user sum of raw usage over a window.
type UsageTotals struct {
	UserID       string
	InputTokens  int64
	OutputTokens int64
	SessionCount int64
}

// TotalTokens returns input plus output tokens.
func (t UsageTotals) TotalTokens() int64 {
	return t.InputTokens + t.OutputTokens
}

// ActivityLog is an audit trail entry.
type ActivityLog struct {
	ID           string
	UserID       *string
	Action       string
	ResourceType string
	ResourceID   *string
	Details      map[string]any
	IPAddress    *string
	CreatedAt    time.Time
}

// Audit actions.
const (
	ActionSessionCreated       = "session_created"
	ActionSessionsBatchCreated = "sessions_batch_created"
	ActionAPIKeyGenerated      = "api_key_generated"
	ActionAPIKeyRotated        = "api_key_rotated"
	ActionPrivacyChanged       = "privacy_mode_changed"
)
