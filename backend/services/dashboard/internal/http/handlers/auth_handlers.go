package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"parkdash/backend/services/dashboard/internal/gateway"
)

// AuthHandlers drives the operator login lifecycle.
type AuthHandlers struct {
	gateway *gateway.Gateway
	logger  *zap.Logger
}

// NewAuthHandlers returns handler struct.
func NewAuthHandlers(gw *gateway.Gateway, logger *zap.Logger) *AuthHandlers {
	return &AuthHandlers{gateway: gw, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authStatus struct {
	State     string `json:"state"`
	User      string `json:"user,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Login handles POST /api/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	sess, err := h.gateway.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, authStatus{
		State:     h.gateway.State().String(),
		User:      h.gateway.User(),
		SessionID: sess.ID(),
	})
}

// Logout handles POST /api/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.gateway.Logout(r.Context()); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, authStatus{State: h.gateway.State().String()})
}

// Status handles GET /api/auth.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	resp := authStatus{State: h.gateway.State().String(), User: h.gateway.User()}
	if sess, err := h.gateway.Session(); err == nil {
		resp.SessionID = sess.ID()
	}
	writeJSON(w, http.StatusOK, resp)
}
