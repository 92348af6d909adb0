package domain

import (
	"fmt"
	"time"
)

// RankingEntry is one user's position for one period snapshot.
type RankingEntry struct {
	ID              string
	UserID          string
	PeriodType      Period
	PeriodStart     string
	RankPosition    int64
	TotalTokens     int64
	CompositeScore  float64
	SessionCount    int64
	EfficiencyScore float64
	UpdatedAt       time.Time
}

// RankedUser is a ranking row joined with the owning user's public fields.
type RankedUser struct {
	RankingEntry
	Username    string
	DisplayName string
	AvatarURL   *string
	PrivacyMode bool
}

// LeaderboardEntry is the public, redacted view of a ranking row.
type LeaderboardEntry struct {
	Rank            int64   `json:"rank"`
	UserID          string  `json:"userId,omitempty"`
	Username        string  `json:"username"`
	DisplayName     string  `json:"displayName"`
	AvatarURL       *string `json:"avatarUrl"`
	TotalTokens     int64   `json:"totalTokens"`
	CompositeScore  float64 `json:"compositeScore"`
	SessionCount    int64   `json:"sessionCount"`
	EfficiencyScore float64 `json:"efficiencyScore"`
	IsPrivate       bool    `json:"isPrivate"`
}

// AnonymousName is the placeholder shown for private users.
func AnonymousName(rank int64) string {
	return fmt.Sprintf("User #%d", rank)
}

// Redact converts a ranked user into its public form. Private users keep
// their rank and totals but lose identity and avatar.
func (r RankedUser) Redact() LeaderboardEntry {
	entry := LeaderboardEntry{
		Rank:            r.RankPosition,
		UserID:          r.UserID,
		Username:        r.Username,
		DisplayName:     r.DisplayName,
		AvatarURL:       r.AvatarURL,
		TotalTokens:     r.TotalTokens,
		CompositeScore:  r.CompositeScore,
		SessionCount:    r.SessionCount,
		EfficiencyScore: r.EfficiencyScore,
	}
	if r.PrivacyMode {
		name := AnonymousName(r.RankPosition)
		entry.UserID = ""
		entry.Username = name
		entry.DisplayName = name
		entry.AvatarURL = nil
		entry.IsPrivate = true
	}
	if entry.DisplayName == "" {
		entry.DisplayName = entry.Username
	}
	return entry
}
