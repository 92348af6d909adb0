package web

import (
	"net/http"
	"strconv"

	"github.com/modu-ai/moai-rank/internal/domain"
	"github.com/modu-ai/moai-rank/internal/leaderboard"
)

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fields := map[string]string{}

	period := domain.PeriodDaily
	if raw := q.Get("period"); raw != "" {
		p, err := domain.ParsePeriod(raw)
		if err != nil {
			fields["period"] = "must be one of daily, weekly, monthly, all_time"
		}
		period = p
	}
	limit, ok := intParam(q.Get("limit"), leaderboard.DefaultLimit)
	if !ok {
		fields["limit"] = "must be an integer"
	}
	offset, ok := intParam(q.Get("offset"), 0)
	if !ok {
		fields["offset"] = "must be an integer"
	}
	if len(fields) > 0 {
		s.writeServiceError(w, r, domain.NewValidationError("Invalid query parameters", fields))
		return
	}

	page, err := s.svc.Leaderboard.Get(r.Context(), period, limit, offset)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	ranks, err := s.svc.Leaderboard.ForUser(r.Context(), userFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ranks)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":        true,
		"userId":       user.ID,
		"username":     user.Username,
		"apiKeyPrefix": user.APIKeyPrefix,
		"privacyMode":  user.PrivacyMode,
		"createdAt":    user.CreatedAt,
	})
}

func intParam(raw string, fallback int) (int, bool) {
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
