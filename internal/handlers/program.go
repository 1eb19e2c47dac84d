package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bountyboard/bounty-server/internal/models"
	"github.com/bountyboard/bounty-server/internal/services"
)

// ProgramHandler handles bounty program endpoints
type ProgramHandler struct {
	svc    *services.ProgramService
	logger *zap.SugaredLogger
}

// NewProgramHandler creates a new program handler
func NewProgramHandler(svc *services.ProgramService, logger *zap.SugaredLogger) *ProgramHandler {
	return &ProgramHandler{svc: svc, logger: logger}
}

// List handles GET /api/v1/programs?active=&industry=&company_id=&min_bounty=
func (h *ProgramHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.ProgramFilter{Industry: q.Get("industry")}

	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid active filter")
			return
		}
		f.Active = &active
	}
	if v := q.Get("company_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid company_id filter")
			return
		}
		f.CompanyID = &id
	}
	if v := q.Get("min_bounty"); v != "" {
		minBounty, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid min_bounty filter")
			return
		}
		f.MinBounty = &minBounty
	}

	programs, err := h.svc.List(r.Context(), f)
	if err != nil {
		respondServiceError(w, h.logger, err, "list programs")
		return
	}
	respondJSON(w, http.StatusOK, programs)
}

// Get handles GET /api/v1/programs/{id}
func (h *ProgramHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	p, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, "load program")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Create handles POST /api/v1/programs
func (h *ProgramHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var in models.ProgramInput
	if !decodeJSON(w, r, &in) {
		return
	}

	p, err := h.svc.Create(r.Context(), actor, &in)
	if err != nil {
		respondServiceError(w, h.logger, err, "create program")
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// Update handles PUT /api/v1/programs/{id}
func (h *ProgramHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var in models.ProgramInput
	if !decodeJSON(w, r, &in) {
		return
	}

	p, err := h.svc.Update(r.Context(), actor, id, &in)
	if err != nil {
		respondServiceError(w, h.logger, err, "update program")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /api/v1/programs/{id}
func (h *ProgramHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), actor, id); err != nil {
		respondServiceError(w, h.logger, err, "delete program")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BountyRange handles POST /api/v1/programs/bounty-range.
// The body is a reward structure keyed by severity.
func (h *ProgramHandler) BountyRange(w http.ResponseWriter, r *http.Request) {
	var structure map[models.Severity]string
	if !decodeJSON(w, r, &structure) {
		return
	}

	rng, err := h.svc.ComputeBounty(structure)
	if err != nil {
		respondServiceError(w, h.logger, err, "compute bounty range")
		return
	}
	respondJSON(w, http.StatusOK, rng)
}
