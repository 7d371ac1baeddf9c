package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"parkdash/backend/services/dashboard/internal/view"
)

// submitTimeout bounds a payment submission once the operator has confirmed it.
const submitTimeout = 30 * time.Second

// PaymentHandlers expose the quote, confirm and cancel workflow.
type PaymentHandlers struct {
	logger        *zap.Logger
	submitTimeout time.Duration
}

// NewPaymentHandlers returns handler struct.
func NewPaymentHandlers(logger *zap.Logger) *PaymentHandlers {
	return &PaymentHandlers{logger: logger, submitTimeout: submitTimeout}
}

type paymentsResponse struct {
	Pending []view.PaymentView `json:"pending"`
	Recent  []view.PaymentView `json:"recent"`
}

// Initiate handles POST /api/payments/{country}/{reg}. It answers with the quoted fee.
func (h *PaymentHandlers) Initiate(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	req, err := sess.InitiatePayment(r.Context(), vehicleFromPath(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Payment(req))
}

// Confirm handles POST /api/payments/{country}/{reg}/confirm. The submission outlives
// the request: a console that disconnects mid-submit must not turn a charge into Failed.
func (h *PaymentHandlers) Confirm(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.submitTimeout)
	defer cancel()
	req, err := sess.ConfirmPayment(ctx, vehicleFromPath(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Payment(req))
}

// Cancel handles DELETE /api/payments/{country}/{reg}.
func (h *PaymentHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	req, err := sess.CancelPayment(vehicleFromPath(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Payment(req))
}

// Get handles GET /api/payments/{country}/{reg}.
func (h *PaymentHandlers) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	req, found := sess.Payment(vehicleFromPath(r))
	if !found {
		writeError(w, http.StatusNotFound, "no payment for vehicle")
		return
	}
	writeJSON(w, http.StatusOK, view.Payment(req))
}

// List handles GET /api/payments.
func (h *PaymentHandlers) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, paymentsResponse{
		Pending: view.Payments(sess.PendingPayments()),
		Recent:  view.Payments(sess.RecentPayments()),
	})
}
