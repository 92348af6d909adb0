package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/modu-ai/moai-rank/internal/domain"
)

// DefaultReplayWindow is the largest accepted distance between a request
// timestamp and the server clock.
const DefaultReplayWindow = 300 * time.Second

// Sign returns hex(HMAC-SHA256(apiKey, timestamp + ":" + body)).
func Sign(apiKey, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(apiKey))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(":"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the request signature and its timestamp window.
// Every failure returns domain.ErrUnauthorized so callers learn nothing about
// which check failed.
func VerifySignature(apiKey, timestamp, signature string, body []byte, now time.Time, window time.Duration) error {
	if apiKey == "" || timestamp == "" || signature == "" {
		return domain.ErrUnauthorized
	}

	sec, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return domain.ErrUnauthorized
	}
	skew := now.Sub(time.Unix(sec, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > window {
		return domain.ErrUnauthorized
	}

	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return domain.ErrUnauthorized
	}
	want, _ := hex.DecodeString(Sign(apiKey, timestamp, body))
	if !hmac.Equal(got, want) {
		return domain.ErrUnauthorized
	}
	return nil
}
