package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/bountyboard/bounty-server/internal/services"
)

// ActivityHandler serves the review history of reports
type ActivityHandler struct {
	svc    *services.ReportService
	logger *zap.SugaredLogger
}

// NewActivityHandler creates a new activity handler
func NewActivityHandler(svc *services.ReportService, logger *zap.SugaredLogger) *ActivityHandler {
	return &ActivityHandler{svc: svc, logger: logger}
}

// ByReport handles GET /api/v1/reports/{id}/events
func (h *ActivityHandler) ByReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	events, err := h.svc.Events(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "fetch report history")
		return
	}
	respondJSON(w, http.StatusOK, events)
}
