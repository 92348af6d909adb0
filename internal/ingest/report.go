package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/modu-ai/moai-rank/internal/domain"
	"github.com/modu-ai/moai-rank/internal/util"
)

const (
	// MaxTokens bounds every token counter of a single session.
	MaxTokens = 100_000_000
	// MaxFutureSkew is how far in the future a session may claim to have ended.
	MaxFutureSkew = 5 * time.Minute
)

// SessionReport is one session as submitted by a client.
type SessionReport struct {
	SessionHash         string  `json:"sessionHash" validate:"required,len=64,hexadecimal"`
	AnonymousProjectID  *string `json:"anonymousProjectId" validate:"omitempty,max=100"`
	EndedAt             string  `json:"endedAt" validate:"required"`
	ModelName           *string `json:"modelName" validate:"omitempty,max=50"`
	InputTokens         *int64  `json:"inputTokens" validate:"required,min=0,max=100000000"`
	OutputTokens        *int64  `json:"outputTokens" validate:"required,min=0,max=100000000"`
	CacheCreationTokens int64   `json:"cacheCreationTokens" validate:"min=0,max=100000000"`
	CacheReadTokens     int64   `json:"cacheReadTokens" validate:"min=0,max=100000000"`

	// decodeErr is set by DecodeBatch when this item could not be decoded.
	decodeErr error
}

// BatchReport is the body of a batch submission.
type BatchReport struct {
	Sessions []SessionReport
}

type batchBody struct {
	Sessions []json.RawMessage `json:"sessions"`
}

// DecodeReport parses a single session body.
func DecodeReport(body []byte) (SessionReport, error) {
	var r SessionReport
	if err := decodeJSON(body, &r); err != nil {
		return r, err
	}
	return r, nil
}

// DecodeBatch parses a batch body. Items are decoded one by one: an item that
// does not decode is kept in place and fails validation on its own.
func DecodeBatch(body []byte) (BatchReport, error) {
	var raw batchBody
	if err := decodeJSON(body, &raw); err != nil {
		return BatchReport{}, err
	}

	b := BatchReport{Sessions: make([]SessionReport, len(raw.Sessions))}
	for i, item := range raw.Sessions {
		if err := json.Unmarshal(item, &b.Sessions[i]); err != nil {
			b.Sessions[i] = SessionReport{decodeErr: itemDecodeError(err)}
		}
	}
	return b, nil
}

func decodeJSON(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("Invalid JSON body", map[string]string{"body": err.Error()})
	}
	return nil
}

func itemDecodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return domain.NewValidationError("Invalid session data", map[string]string{
			typeErr.Field: fmt.Sprintf("must be a %s", typeErr.Type),
		})
	}
	return domain.NewValidationError("Invalid session data", map[string]string{"session": "must be an object"})
}

// Validator checks session reports against their field rules.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Validate checks r and returns its parsed end time. now is used for the
// future skew bound.
func (val *Validator) Validate(r SessionReport, now time.Time) (time.Time, error) {
	if r.decodeErr != nil {
		return time.Time{}, r.decodeErr
	}

	fields := make(map[string]string)

	if err := val.v.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return time.Time{}, fmt.Errorf("validating session: %w", err)
		}
		for _, fe := range verrs {
			fields[fe.Field()] = describe(fe)
		}
	}

	var endedAt time.Time
	if _, bad := fields["endedAt"]; !bad {
		t, err := util.ParseTimestamp(r.EndedAt)
		switch {
		case err != nil:
			fields["endedAt"] = "must be an RFC 3339 timestamp"
		case t.After(now.Add(MaxFutureSkew)):
			fields["endedAt"] = "must not be in the future"
		default:
			endedAt = t.UTC().Truncate(time.Millisecond)
		}
	}

	if len(fields) > 0 {
		return time.Time{}, domain.NewValidationError("Invalid session data", fields)
	}
	return endedAt, nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "hexadecimal":
		return "must be hexadecimal"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}
