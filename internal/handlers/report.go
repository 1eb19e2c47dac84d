package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bountyboard/bounty-server/internal/models"
	"github.com/bountyboard/bounty-server/internal/services"
)

// ReportHandler handles report submission and review endpoints
type ReportHandler struct {
	svc    *services.ReportService
	logger *zap.SugaredLogger
}

// NewReportHandler creates a new report handler
func NewReportHandler(svc *services.ReportService, logger *zap.SugaredLogger) *ReportHandler {
	return &ReportHandler{svc: svc, logger: logger}
}

// List handles GET /api/v1/reports?status=&severity=&program_id=
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var f models.ReportFilter
	if v := q.Get("status"); v != "" {
		status := models.Status(v)
		f.Status = &status
	}
	if v := q.Get("severity"); v != "" {
		sev := models.Severity(v)
		f.Severity = &sev
	}
	if v := q.Get("program_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid program_id filter")
			return
		}
		f.ProgramID = &id
	}

	reports, err := h.svc.List(r.Context(), actor, f)
	if err != nil {
		respondServiceError(w, h.logger, err, "list reports")
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

// Submit handles POST /api/v1/reports
func (h *ReportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var sub models.ReportSubmission
	if !decodeJSON(w, r, &sub) {
		return
	}

	report, err := h.svc.Submit(r.Context(), actor, &sub)
	if err != nil {
		respondServiceError(w, h.logger, err, "submit report")
		return
	}
	respondJSON(w, http.StatusCreated, report)
}

// Get handles GET /api/v1/reports/{id}
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	report, err := h.svc.Get(r.Context(), actor, id)
	if err != nil {
		respondServiceError(w, h.logger, err, "load report")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Update handles PUT /api/v1/reports/{id}
func (h *ReportHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var upd models.ReportContentUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}

	report, err := h.svc.UpdateContent(r.Context(), actor, id, &upd)
	if err != nil {
		respondServiceError(w, h.logger, err, "update report")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Delete handles DELETE /api/v1/reports/{id}
func (h *ReportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), actor, id); err != nil {
		respondServiceError(w, h.logger, err, "delete report")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transition handles POST /api/v1/reports/{id}/status
func (h *ReportHandler) Transition(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req models.TransitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	report, err := h.svc.Transition(r.Context(), actor, id, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "change report status")
		return
	}
	respondJSON(w, http.StatusOK, report)
}
