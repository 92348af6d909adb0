package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modu-ai/moai-rank/internal/domain"
	"github.com/modu-ai/moai-rank/internal/util"
)

func validReport() SessionReport {
	return SessionReport{
		SessionHash:  strings.Repeat("a", 64),
		EndedAt:      "2026-03-11T10:00:00Z",
		InputTokens:  util.Int64Ptr(1000),
		OutputTokens: util.Int64Ptr(500),
	}
}

func TestValidator_Validate(t *testing.T) {
	now := time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC)
	long := strings.Repeat("m", 51)

	tests := []struct {
		name      string
		mutate    func(*SessionReport)
		wantField string
	}{
		{"valid", func(*SessionReport) {}, ""},
		{"short hash", func(r *SessionReport) { r.SessionHash = "abc" }, "sessionHash"},
		{"non-hex hash", func(r *SessionReport) { r.SessionHash = strings.Repeat("z", 64) }, "sessionHash"},
		{"missing input", func(r *SessionReport) { r.InputTokens = nil }, "inputTokens"},
		{"missing output", func(r *SessionReport) { r.OutputTokens = nil }, "outputTokens"},
		{"zero tokens ok", func(r *SessionReport) { r.InputTokens, r.OutputTokens = util.Int64Ptr(0), util.Int64Ptr(0) }, ""},
		{"negative input", func(r *SessionReport) { r.InputTokens = util.Int64Ptr(-1) }, "inputTokens"},
		{"too many output", func(r *SessionReport) { r.OutputTokens = util.Int64Ptr(MaxTokens + 1) }, "outputTokens"},
		{"too many cache read", func(r *SessionReport) { r.CacheReadTokens = MaxTokens + 1 }, "cacheReadTokens"},
		{"model too long", func(r *SessionReport) { r.ModelName = &long }, "modelName"},
		{"missing ended at", func(r *SessionReport) { r.EndedAt = "" }, "endedAt"},
		{"bad ended at", func(r *SessionReport) { r.EndedAt = "last tuesday" }, "endedAt"},
		{"future ended at", func(r *SessionReport) { r.EndedAt = "2026-03-12T00:06:00Z" }, "endedAt"},
		{"slightly future ok", func(r *SessionReport) { r.EndedAt = "2026-03-12T00:04:00Z" }, ""},
		{"old back-fill ok", func(r *SessionReport) { r.EndedAt = "2025-01-01T00:00:00Z" }, ""},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validReport()
			tt.mutate(&r)
			_, err := v.Validate(r, now)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := verr.Fields[tt.wantField]; !ok {
				t.Errorf("expected field %q in %v", tt.wantField, verr.Fields)
			}
		})
	}
}

func TestValidator_NormalizesEndedAt(t *testing.T) {
	r := validReport()
	r.EndedAt = "2026-03-11T19:00:00.123456+09:00"

	got, err := NewValidator().Validate(r, time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, time.March, 11, 10, 0, 0, 123_000_000, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDecodeReport_InvalidJSON(t *testing.T) {
	_, err := DecodeReport([]byte(`{"inputTokens": "lots"`))
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestDecodeReport_MissingTokenCounts(t *testing.T) {
	body := `{"sessionHash":"` + strings.Repeat("a", 64) + `","endedAt":"2026-03-11T10:00:00Z"}`
	r, err := DecodeReport([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = NewValidator().Validate(r, time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC))
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"inputTokens", "outputTokens"} {
		if verr.Fields[field] != "is required" {
			t.Errorf("field %s: got %q, want %q", field, verr.Fields[field], "is required")
		}
	}
}

func TestDecodeBatch(t *testing.T) {
	b, err := DecodeBatch([]byte(`{"sessions":[{"sessionHash":"a","inputTokens":5}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.Sessions) != 1 || b.Sessions[0].InputTokens == nil || *b.Sessions[0].InputTokens != 5 {
		t.Errorf("unexpected batch: %+v", b)
	}
}

func TestDecodeBatch_BadItemFailsAlone(t *testing.T) {
	now := time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC)
	hash := strings.Repeat("a", 64)
	body := `{"sessions":[` +
		`{"sessionHash":"` + hash + `","endedAt":"2026-03-11T10:00:00Z","inputTokens":10,"outputTokens":5},` +
		`{"sessionHash":"` + hash + `","endedAt":"2026-03-11T10:00:00Z","inputTokens":"abc","outputTokens":5},` +
		`42]}`

	b, err := DecodeBatch([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.Sessions) != 3 {
		t.Fatalf("expected 3 items, got %d", len(b.Sessions))
	}

	v := NewValidator()
	if _, err := v.Validate(b.Sessions[0], now); err != nil {
		t.Errorf("item 0: unexpected error: %v", err)
	}

	tests := []struct {
		index int
		field string
	}{
		{1, "inputTokens"},
		{2, "session"},
	}
	for _, tt := range tests {
		_, err := v.Validate(b.Sessions[tt.index], now)
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("item %d: expected ValidationError, got %v", tt.index, err)
		}
		if _, ok := verr.Fields[tt.field]; !ok {
			t.Errorf("item %d: expected field %q in %v", tt.index, tt.field, verr.Fields)
		}
	}
}

func TestDecodeBatch_MalformedBody(t *testing.T) {
	_, err := DecodeBatch([]byte(`{"sessions":[{"inputTokens":1}`))
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
