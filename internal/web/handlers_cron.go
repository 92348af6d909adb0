package web

import (
	"net/http"
	"strings"

	"github.com/modu-ai/moai-rank/internal/domain"
)

// handleCalculateRankings runs the ranking batch. It always answers 200 with
// the per-period summary; failures are reported inside it.
func (s *Server) handleCalculateRankings(w http.ResponseWriter, r *http.Request) {
	periods := domain.Periods
	if raw := r.URL.Query().Get("period"); raw != "" {
		periods = nil
		for _, name := range strings.Split(raw, ",") {
			p, err := domain.ParsePeriod(name)
			if err != nil {
				s.writeServiceError(w, r, domain.NewValidationError("Invalid query parameters", map[string]string{
					"period": "must be one of daily, weekly, monthly, all_time",
				}))
				return
			}
			periods = append(periods, p)
		}
	}

	writeJSON(w, http.StatusOK, s.svc.Ranking.RunPeriods(r.Context(), periods))
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Retention.Sweep(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
