package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/modu-ai/moai-rank/internal/domain"
	"github.com/modu-ai/moai-rank/internal/ingest"
)

// signedRequest reads the body and authenticates the signature headers.
// It writes the error response itself and returns ok=false on failure.
func (s *Server) signedRequest(w http.ResponseWriter, r *http.Request) (*domain.User, []byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeServiceError(w, r, domain.NewValidationError("Request body too large", map[string]string{
				"body": fmt.Sprintf("must be at most %d bytes", s.cfg.MaxBodyBytes),
			}))
			return nil, nil, false
		}
		s.writeServiceError(w, r, domain.NewValidationError("Unreadable request body", nil))
		return nil, nil, false
	}

	user, err := s.svc.Ingest.VerifyRequest(r.Context(),
		r.Header.Get("X-API-Key"),
		r.Header.Get("X-Timestamp"),
		r.Header.Get("X-Signature"),
		body,
	)
	if err != nil {
		s.writeServiceError(w, r, err)
		return nil, nil, false
	}

	if err := s.checkRate(r, user); err != nil {
		s.writeServiceError(w, r, err)
		return nil, nil, false
	}
	return user, body, true
}

// checkRate applies the per-user ingestion budget. A limiter error lets the
// request through.
func (s *Server) checkRate(r *http.Request, user *domain.User) error {
	if s.svc.Limiter == nil {
		return nil
	}
	decision, err := s.svc.Limiter.Allow(r.Context(), "ingest:"+user.ID, s.cfg.RateLimit, s.cfg.RateWindow)
	if err != nil {
		s.log.Warn("rate limiter failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil
	}
	if !decision.Allowed {
		return &domain.RateLimitedError{RetryAfter: decision.RetryAfter}
	}
	return nil
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	user, body, ok := s.signedRequest(w, r)
	if !ok {
		return
	}

	report, err := ingest.DecodeReport(body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	result, err := s.svc.Ingest.Ingest(r.Context(), user, report, ingest.RequestMeta{IPAddress: clientIP(r)})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleCreateSessionBatch(w http.ResponseWriter, r *http.Request) {
	user, body, ok := s.signedRequest(w, r)
	if !ok {
		return
	}

	batch, err := ingest.DecodeBatch(body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	result, err := s.svc.Ingest.IngestBatch(r.Context(), user, batch.Sessions, ingest.RequestMeta{IPAddress: clientIP(r)})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
