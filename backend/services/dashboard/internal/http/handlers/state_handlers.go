package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"parkdash/backend/services/dashboard/internal/clients"
	"parkdash/backend/services/dashboard/internal/journal"
	"parkdash/backend/services/dashboard/internal/view"
)

// HistorySource returns finished stays for the logged-in operator.
type HistorySource interface {
	History(ctx context.Context) (map[string][]clients.HistoryRecord, error)
}

// StateHandlers serve the facility view of the live session.
type StateHandlers struct {
	history HistorySource
	logger  *zap.Logger
}

// NewStateHandlers returns handler struct.
func NewStateHandlers(history HistorySource, logger *zap.Logger) *StateHandlers {
	return &StateHandlers{history: history, logger: logger}
}

// State handles GET /api/state.
func (h *StateHandlers) State(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view.FromSource(sess))
}

// Vehicles handles GET /api/vehicles?q=.
func (h *StateHandlers) Vehicles(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view.Rows(sess.Search(r.URL.Query().Get("q"))))
}

// Refresh handles POST /api/refresh: it waits for a roster refresh and returns the new view.
func (h *StateHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	if err := sess.Refresh(r.Context()); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view.FromSource(sess))
}

// Activity handles GET /api/activity?limit=.
func (h *StateHandlers) Activity(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	entries, err := sess.Activity(r.Context(), queryInt(r, "limit", journal.DefaultCapacity))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Activity(entries))
}

// History handles GET /api/history.
func (h *StateHandlers) History(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentSession(w, r); !ok {
		return
	}
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "history not available")
		return
	}
	history, err := h.history.History(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
