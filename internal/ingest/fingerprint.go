package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/modu-ai/moai-rank/internal/util"
)

// FingerprintInput is everything a session fingerprint is derived from.
type FingerprintInput struct {
	UserID              string
	UserSalt            string
	InputTokens         int64
	OutputTokens        int64
	CacheCreationTokens int64
	CacheReadTokens     int64
	ModelName           string
	EndedAt             time.Time
}

// Fingerprint returns the 64 hex char dedup key of a session. The salt is
// secret to the server, so clients cannot forge another user's fingerprint.
func Fingerprint(in FingerprintInput) string {
	raw := fmt.Sprintf("%s:%s:%d:%d:%d:%d:%s:%s",
		in.UserID,
		in.UserSalt,
		in.InputTokens,
		in.OutputTokens,
		in.CacheCreationTokens,
		in.CacheReadTokens,
		in.ModelName,
		util.FormatTimestamp(in.EndedAt),
	)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
