package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/modu-ai/moai-rank/internal/domain"
)

func TestSign(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("moai_rank_key"))
	mac.Write([]byte(`1700000000:{"a":1}`))
	want := hex.EncodeToString(mac.Sum(nil))

	if got := Sign("moai_rank_key", "1700000000", []byte(`{"a":1}`)); got != want {
		t.Errorf("Sign() = %s, want %s", got, want)
	}
}

func TestVerifySignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	key := "moai_rank_key"
	body := []byte(`{"sessionHash":"x"}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	good := Sign(key, ts, body)

	tests := []struct {
		name      string
		key       string
		timestamp string
		signature string
		body      []byte
		wantErr   bool
	}{
		{"valid", key, ts, good, body, false},
		{"uppercase hex accepted", key, ts, upper(good), body, false},
		{"edge of window", key, strconv.FormatInt(now.Unix()-300, 10), Sign(key, strconv.FormatInt(now.Unix()-300, 10), body), body, false},
		{"expired", key, strconv.FormatInt(now.Unix()-301, 10), Sign(key, strconv.FormatInt(now.Unix()-301, 10), body), body, true},
		{"future", key, strconv.FormatInt(now.Unix()+301, 10), Sign(key, strconv.FormatInt(now.Unix()+301, 10), body), body, true},
		{"tampered body", key, ts, good, []byte(`{"sessionHash":"y"}`), true},
		{"wrong key", "moai_rank_other", ts, good, body, true},
		{"missing signature", key, ts, "", body, true},
		{"non-hex signature", key, ts, "zz", body, true},
		{"non-numeric timestamp", key, "yesterday", good, body, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(tt.key, tt.timestamp, tt.signature, tt.body, now, DefaultReplayWindow)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrUnauthorized) {
					t.Errorf("expected ErrUnauthorized, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - 32
		}
	}
	return string(b)
}
