package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/bountyboard/bounty-server/internal/models"
	"github.com/bountyboard/bounty-server/internal/services"
)

// AccountHandler handles signup, login and account endpoints
type AccountHandler struct {
	svc    *services.AccountService
	logger *zap.SugaredLogger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(svc *services.AccountService, logger *zap.SugaredLogger) *AccountHandler {
	return &AccountHandler{svc: svc, logger: logger}
}

// Signup handles POST /api/v1/auth/signup
func (h *AccountHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.svc.Signup(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "create account")
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// Login handles POST /api/v1/auth/login
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.svc.Login(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "log in")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Me handles GET /api/v1/accounts/me
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	account, err := h.svc.Get(r.Context(), actor.ID)
	if err != nil {
		respondServiceError(w, h.logger, err, "load account")
		return
	}
	respondJSON(w, http.StatusOK, account)
}

// Get handles GET /api/v1/accounts/{id}
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	account, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, "load account")
		return
	}
	respondJSON(w, http.StatusOK, account)
}

// Delete handles DELETE /api/v1/accounts/{id}
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), actor, id); err != nil {
		respondServiceError(w, h.logger, err, "delete account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
