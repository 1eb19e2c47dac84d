// Package handlers contains HTTP request handlers for the bounty API.
// Handlers parse requests, call services, and return JSON responses.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bountyboard/bounty-server/internal/auth"
	"github.com/bountyboard/bounty-server/internal/models"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

// Helper: respond with JSON
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Helper: respond with error
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps a service error onto its HTTP status. Errors
// outside the service taxonomy are logged and hidden behind a 500.
func respondServiceError(w http.ResponseWriter, logger *zap.SugaredLogger, err error, action string) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		logger.Errorw("Request failed", "action", action, "error", err)
		respondError(w, status, "Failed to "+action)
		return
	}
	respondJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// decodeJSON reads a bounded JSON body into dst, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// uuidParam parses a UUID route parameter
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

// requireActor returns the authenticated caller set by middleware.RequireAuth
func requireActor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Authorization required")
		return models.Actor{}, false
	}
	return actor, true
}
