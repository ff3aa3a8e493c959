package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"rentscore/middleware"
	"rentscore/models"
	"rentscore/services"
	"rentscore/utils"

	"github.com/gorilla/mux"
)

// writeJSON sends v with the given status
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.LogError("failed to write response: %v", err)
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps service errors to HTTP status codes. Unknown errors are
// logged and hidden behind a 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrExpired):
		writeErrorMessage(w, http.StatusGone, err.Error())
	case errors.Is(err, services.ErrConflict):
		writeErrorMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrForbidden):
		writeErrorMessage(w, http.StatusForbidden, "Access denied")
	default:
		utils.LogError("request failed: %v", err)
		utils.GetMetrics().RecordError(err)
		writeErrorMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeBody reads a JSON request body into dst
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// pathID parses a numeric route variable
func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)[name], 10, 32)
	if err != nil || id == 0 {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// queryID parses an optional numeric query parameter; missing means 0
func queryID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// currentUser returns the caller or writes 401
func currentUser(w http.ResponseWriter, r *http.Request) (middleware.Identity, bool) {
	identity, err := middleware.GetUserFromContext(r)
	if err != nil {
		writeErrorMessage(w, http.StatusUnauthorized, "Unauthorized")
		return middleware.Identity{}, false
	}
	return identity, true
}

// currentTenant returns the caller when they act as a tenant
func currentTenant(w http.ResponseWriter, r *http.Request) (middleware.Identity, bool) {
	identity, ok := currentUser(w, r)
	if !ok {
		return identity, false
	}
	if identity.Role != models.UserRoleTenant {
		writeErrorMessage(w, http.StatusForbidden, "Access denied")
		return identity, false
	}
	return identity, true
}
