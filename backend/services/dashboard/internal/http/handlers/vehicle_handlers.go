package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"parkdash/backend/services/dashboard/internal/models"
)

// VehicleHandlers forward manual commands. A 202 means the server accepted the command;
// the view changes once the stream event or roster refresh arrives.
type VehicleHandlers struct {
	logger *zap.Logger
}

// NewVehicleHandlers returns handler struct.
func NewVehicleHandlers(logger *zap.Logger) *VehicleHandlers {
	return &VehicleHandlers{logger: logger}
}

type entryRequest struct {
	RegistrationNo string `json:"registration_no"`
	Country        string `json:"country"`
	Floor          *int   `json:"floor"`
}

type floorRequest struct {
	Floor *int `json:"floor"`
}

var accepted = map[string]string{"status": "accepted"}

// Entry handles POST /api/entry.
func (h *VehicleHandlers) Entry(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	var req entryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if req.Floor == nil {
		writeServiceError(w, h.logger, models.NewValidationError("floor", "is required"))
		return
	}
	id := models.NewVehicleID(req.RegistrationNo, req.Country)
	if err := sess.ManualEntry(r.Context(), id, *req.Floor); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, accepted)
}

// Exit handles DELETE /api/entry/{country}/{reg}.
func (h *VehicleHandlers) Exit(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	if err := sess.ManualExit(r.Context(), vehicleFromPath(r)); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, accepted)
}

// UpdateFloor handles PATCH /api/entry/{country}/{reg}.
func (h *VehicleHandlers) UpdateFloor(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	var req floorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if req.Floor == nil {
		writeServiceError(w, h.logger, models.NewValidationError("floor", "is required"))
		return
	}
	if err := sess.UpdateFloor(r.Context(), vehicleFromPath(r), *req.Floor); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, accepted)
}
