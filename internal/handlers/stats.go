package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/bountyboard/bounty-server/internal/services"
)

// StatsHandler serves aggregate views
type StatsHandler struct {
	svc    *services.StatsService
	logger *zap.SugaredLogger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(svc *services.StatsService, logger *zap.SugaredLogger) *StatsHandler {
	return &StatsHandler{svc: svc, logger: logger}
}

// Researcher handles GET /api/v1/stats/researchers/{id}
func (h *StatsHandler) Researcher(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	s, err := h.svc.ResearcherStats(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, "fetch researcher stats")
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// Company handles GET /api/v1/stats/companies/{id}
func (h *StatsHandler) Company(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	s, err := h.svc.CompanyStats(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "fetch company stats")
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// Leaderboard handles GET /api/v1/stats/leaderboard?timeframe=
func (h *StatsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Leaderboard(r.Context(), r.URL.Query().Get("timeframe"))
	if err != nil {
		respondServiceError(w, h.logger, err, "fetch leaderboard")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// Analytics handles GET /api/v1/stats/analytics
func (h *StatsHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	a, err := h.svc.Analytics(r.Context(), actor)
	if err != nil {
		respondServiceError(w, h.logger, err, "fetch analytics")
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// Consistency handles GET /api/v1/stats/consistency
func (h *StatsHandler) Consistency(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	drift, err := h.svc.Consistency(r.Context(), actor)
	if err != nil {
		respondServiceError(w, h.logger, err, "check counters")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"consistent": len(drift) == 0,
		"drift":      drift,
	})
}
