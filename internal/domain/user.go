package domain

import "time"

// User is a leaderboard participant.
type User struct {
	ID           string
	Username     string
	DisplayName  string
	AvatarURL    *string
	PrivacyMode  bool
	APIKeyHash   string
	APIKeyPrefix string
	UserSalt     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
