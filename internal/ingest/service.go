// Package ingest accepts signed session usage reports and stores them
// exactly once.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modu-ai/moai-rank/internal/domain"
	"github.com/modu-ai/moai-rank/internal/ports"
)

// DefaultMaxBatch is the largest accepted batch.
const DefaultMaxBatch = 100

// Batch item statuses.
const (
	StatusCreated   = "created"
	StatusDuplicate = "duplicate"
	StatusFailed    = "failed"
)

// Options tunes the service.
type Options struct {
	ReplayWindow time.Duration
	MaxBatch     int
}

// RequestMeta carries request facts recorded in the audit log.
type RequestMeta struct {
	IPAddress string
}

// Result is the outcome of a single ingestion.
type Result struct {
	SessionID string `json:"sessionId"`
}

// ItemError describes why one batch item was not stored.
type ItemError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// ItemResult is the outcome of one batch item, indexed to the input array.
type ItemResult struct {
	Index     int        `json:"index"`
	Status    string     `json:"status"`
	SessionID string     `json:"sessionId,omitempty"`
	Error     *ItemError `json:"error,omitempty"`
}

// BatchResult summarises a batch. Failed counts every item that was not
// stored, duplicates included.
type BatchResult struct {
	Succeeded  int          `json:"succeeded"`
	Duplicates int          `json:"duplicates"`
	Failed     int          `json:"failed"`
	Results    []ItemResult `json:"results"`
}

type Service struct {
	users     ports.UserRepository
	usage     ports.UsageRepository
	metrics   ports.MetricsExporter
	log       *zap.Logger
	validator *Validator
	opts      Options
	now       func() time.Time
}

func NewService(users ports.UserRepository, usage ports.UsageRepository, metrics ports.MetricsExporter, log *zap.Logger, opts Options) *Service {
	if opts.ReplayWindow <= 0 {
		opts.ReplayWindow = DefaultReplayWindow
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = DefaultMaxBatch
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		users:     users,
		usage:     usage,
		metrics:   metrics,
		log:       log,
		validator: NewValidator(),
		opts:      opts,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Authenticate resolves an API key to its user.
func (s *Service) Authenticate(ctx context.Context, apiKey string) (*domain.User, error) {
	if !domain.LooksLikeAPIKey(apiKey) {
		return nil, domain.ErrUnauthorized
	}
	user, err := s.users.GetByAPIKeyHash(ctx, domain.HashAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("resolving api key: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUnauthorized
	}
	return user, nil
}

// VerifyRequest authenticates apiKey and checks the request signature.
func (s *Service) VerifyRequest(ctx context.Context, apiKey, timestamp, signature string, body []byte) (*domain.User, error) {
	user, err := s.Authenticate(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if err := VerifySignature(apiKey, timestamp, signature, body, s.now(), s.opts.ReplayWindow); err != nil {
		s.log.Debug("signature rejected", zap.String("user_id", user.ID))
		return nil, err
	}
	return user, nil
}

// prepare validates r and builds the event with its server-side fingerprint.
func (s *Service) prepare(user *domain.User, r SessionReport, now time.Time) (*domain.UsageEvent, error) {
	endedAt, err := s.validator.Validate(r, now)
	if err != nil {
		return nil, err
	}

	model := ""
	if r.ModelName != nil {
		model = *r.ModelName
	}
	hash := Fingerprint(FingerprintInput{
		UserID:              user.ID,
		UserSalt:            user.UserSalt,
		InputTokens:         *r.InputTokens,
		OutputTokens:        *r.OutputTokens,
		CacheCreationTokens: r.CacheCreationTokens,
		CacheReadTokens:     r.CacheReadTokens,
		ModelName:           model,
		EndedAt:             endedAt,
	})
	if hash != r.SessionHash {
		s.log.Debug("client session hash differs from server fingerprint",
			zap.String("user_id", user.ID),
			zap.String("client_hash", r.SessionHash),
		)
	}

	return &domain.UsageEvent{
		ID:                  uuid.NewString(),
		UserID:              user.ID,
		SessionHash:         hash,
		AnonymousProjectID:  r.AnonymousProjectID,
		EndedAt:             endedAt,
		ModelName:           r.ModelName,
		InputTokens:         *r.InputTokens,
		OutputTokens:        *r.OutputTokens,
		CacheCreationTokens: r.CacheCreationTokens,
		CacheReadTokens:     r.CacheReadTokens,
		CreatedAt:           now,
	}, nil
}

// Ingest stores one session. A session whose fingerprint is already stored
// yields domain.ErrDuplicate and changes nothing.
func (s *Service) Ingest(ctx context.Context, user *domain.User, r SessionReport, meta RequestMeta) (*Result, error) {
	now := s.now().UTC()

	event, err := s.prepare(user, r, now)
	if err != nil {
		s.metrics.RecordIngest(ctx, ports.IngestRejected, 1)
		return nil, err
	}

	audit := s.auditEntry(user, domain.ActionSessionCreated, &event.ID, map[string]any{
		"inputTokens":  event.InputTokens,
		"outputTokens": event.OutputTokens,
		"modelName":    event.ModelName,
	}, meta, now)

	inserted, err := s.usage.RecordSession(ctx, event, audit)
	if err != nil {
		return nil, fmt.Errorf("recording session: %w", err)
	}
	if !inserted {
		s.metrics.RecordIngest(ctx, ports.IngestDuplicate, 1)
		return nil, domain.ErrDuplicate
	}

	s.metrics.RecordIngest(ctx, ports.IngestCreated, 1)
	s.log.Debug("session recorded", zap.String("user_id", user.ID), zap.String("session_id", event.ID))
	return &Result{SessionID: event.ID}, nil
}

// IngestBatch stores up to Options.MaxBatch sessions with the same per-item
// contract as Ingest. Duplicates inside the batch itself count as duplicates.
func (s *Service) IngestBatch(ctx context.Context, user *domain.User, reports []SessionReport, meta RequestMeta) (*BatchResult, error) {
	if len(reports) == 0 {
		return nil, domain.NewValidationError("Invalid batch", map[string]string{"sessions": "must contain at least 1 session"})
	}
	if len(reports) > s.opts.MaxBatch {
		return nil, domain.NewValidationError("Invalid batch", map[string]string{
			"sessions": fmt.Sprintf("must contain at most %d sessions", s.opts.MaxBatch),
		})
	}

	now := s.now().UTC()
	result := &BatchResult{Results: make([]ItemResult, len(reports))}

	events := make([]*domain.UsageEvent, len(reports))
	firstIndex := make(map[string]int, len(reports))
	var hashes []string
	for i, r := range reports {
		result.Results[i].Index = i

		event, err := s.prepare(user, r, now)
		if err != nil {
			result.Results[i].Status = StatusFailed
			result.Results[i].Error = itemError(err)
			continue
		}
		if _, seen := firstIndex[event.SessionHash]; seen {
			result.Results[i].Status = StatusDuplicate
			continue
		}
		firstIndex[event.SessionHash] = i
		events[i] = event
		hashes = append(hashes, event.SessionHash)
	}

	existing, err := s.usage.ExistingHashes(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("checking existing sessions: %w", err)
	}

	var fresh []*domain.UsageEvent
	for i, e := range events {
		if e == nil {
			continue
		}
		if existing[e.SessionHash] {
			result.Results[i].Status = StatusDuplicate
			events[i] = nil
			continue
		}
		fresh = append(fresh, e)
	}

	inserted := map[string]bool{}
	if len(fresh) > 0 {
		audit := s.auditEntry(user, domain.ActionSessionsBatchCreated, nil, map[string]any{
			"count": len(fresh),
		}, meta, now)
		inserted, err = s.usage.RecordSessions(ctx, fresh, audit)
		if err != nil {
			return nil, fmt.Errorf("recording sessions: %w", err)
		}
	}

	for i, e := range events {
		if e == nil {
			continue
		}
		if inserted[e.SessionHash] {
			result.Results[i].Status = StatusCreated
			result.Results[i].SessionID = e.ID
		} else {
			// Lost a race with a concurrent submission of the same session.
			result.Results[i].Status = StatusDuplicate
		}
	}

	rejected := 0
	for _, item := range result.Results {
		switch item.Status {
		case StatusCreated:
			result.Succeeded++
		case StatusDuplicate:
			result.Duplicates++
			result.Failed++
		default:
			rejected++
			result.Failed++
		}
	}

	s.metrics.RecordIngest(ctx, ports.IngestCreated, int64(result.Succeeded))
	s.metrics.RecordIngest(ctx, ports.IngestDuplicate, int64(result.Duplicates))
	s.metrics.RecordIngest(ctx, ports.IngestRejected, int64(rejected))

	s.log.Info("batch ingested",
		zap.String("user_id", user.ID),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *Service) auditEntry(user *domain.User, action string, resourceID *string, details map[string]any, meta RequestMeta, now time.Time) *domain.ActivityLog {
	entry := &domain.ActivityLog{
		ID:           uuid.NewString(),
		UserID:       &user.ID,
		Action:       action,
		ResourceType: "token_usage",
		ResourceID:   resourceID,
		Details:      details,
		CreatedAt:    now,
	}
	if meta.IPAddress != "" {
		ip := meta.IPAddress
		entry.IPAddress = &ip
	}
	return entry
}

func itemError(err error) *ItemError {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return &ItemError{Code: "VALIDATION_ERROR", Message: verr.Message, Details: verr.Fields}
	}
	return &ItemError{Code: "INTERNAL_ERROR", Message: "Internal error"}
}
