package domain

import "testing"

func TestRankedUser_Redact(t *testing.T) {
	avatar := "https://example.com/a.png"

	public := RankedUser{
		RankingEntry: RankingEntry{UserID: "u1", RankPosition: 1, TotalTokens: 1500, CompositeScore: 10, SessionCount: 2},
		Username:     "alice",
		AvatarURL:    &avatar,
	}
	got := public.Redact()
	if got.UserID != "u1" || got.Username != "alice" || got.DisplayName != "alice" || got.AvatarURL == nil || got.IsPrivate {
		t.Errorf("public redact = %+v, want identity kept", got)
	}

	private := RankedUser{
		RankingEntry: RankingEntry{UserID: "u2", RankPosition: 7, TotalTokens: 900, CompositeScore: 5, SessionCount: 1},
		Username:     "bob",
		DisplayName:  "Bob",
		AvatarURL:    &avatar,
		PrivacyMode:  true,
	}
	got = private.Redact()
	if got.UserID != "" {
		t.Errorf("private UserID = %q, want empty", got.UserID)
	}
	if got.Username != "User #7" || got.DisplayName != "User #7" {
		t.Errorf("private names = %q/%q, want User #7", got.Username, got.DisplayName)
	}
	if got.AvatarURL != nil {
		t.Error("private AvatarURL should be nil")
	}
	if got.Rank != 7 || got.TotalTokens != 900 || !got.IsPrivate {
		t.Errorf("private entry lost rank data: %+v", got)
	}
}
