package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"parkdash/backend/services/dashboard/internal/http/middleware"
	"parkdash/backend/services/dashboard/internal/models"
	"parkdash/backend/services/dashboard/internal/session"
)

const maxBodyBytes = 1 << 16

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type validationPayload struct {
	Error  string `json:"error"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// writeServiceError maps core errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var vErr *models.ValidationError
	var sErr *models.ServerError
	var cErr *models.ConnectionError

	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, validationPayload{Error: vErr.Error(), Field: vErr.Field, Reason: vErr.Reason})
	case errors.Is(err, models.ErrInvalidCredentials), errors.Is(err, models.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, models.ErrVehicleNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrLoginInProgress),
		errors.Is(err, models.ErrAlreadyAuthenticated),
		errors.Is(err, models.ErrPaymentInProgress),
		errors.Is(err, models.ErrNoPendingPayment),
		errors.Is(err, models.ErrPaymentCancelled),
		errors.Is(err, models.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrSessionClosed), errors.Is(err, models.ErrGatewayClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &sErr):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &cErr):
		logger.Warn("parking api unreachable", zap.Error(err))
		writeError(w, http.StatusBadGateway, "parking api unavailable")
	default:
		logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, target interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return models.NewValidationError("body", err.Error())
	}
	return nil
}

// vehicleFromPath reads the {country}/{reg} route segments.
func vehicleFromPath(r *http.Request) models.VehicleID {
	return models.NewVehicleID(r.PathValue("reg"), r.PathValue("country"))
}

func currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, models.ErrNotAuthenticated.Error())
	}
	return sess, ok
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
