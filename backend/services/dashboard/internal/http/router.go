package httpserver

import (
	"net/http"

	"parkdash/backend/services/dashboard/internal/http/handlers"
	"parkdash/backend/services/dashboard/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	AuthHandlers    *handlers.AuthHandlers
	StateHandlers   *handlers.StateHandlers
	VehicleHandlers *handlers.VehicleHandlers
	PaymentHandlers *handlers.PaymentHandlers
	HealthHandler   http.HandlerFunc
	MetricsHandler  http.Handler
	StateStream     http.HandlerFunc
}

// NewRouter wires the console routes. Everything under /api except login and the auth
// status requires a live session.
func NewRouter(deps RouterDeps, sessionMiddleware func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /health", deps.HealthHandler)
	if deps.MetricsHandler != nil {
		mux.Handle("GET /metrics", deps.MetricsHandler)
	}
	if deps.StateStream != nil {
		mux.Handle("GET /ws/state", deps.StateStream)
	}

	mux.HandleFunc("POST /api/login", deps.AuthHandlers.Login)
	mux.HandleFunc("POST /api/logout", deps.AuthHandlers.Logout)
	mux.HandleFunc("GET /api/auth", deps.AuthHandlers.Status)

	authenticated := func(handler http.HandlerFunc) http.Handler {
		return middleware.Chain(handler, sessionMiddleware)
	}

	mux.Handle("GET /api/state", authenticated(deps.StateHandlers.State))
	mux.Handle("GET /api/vehicles", authenticated(deps.StateHandlers.Vehicles))
	mux.Handle("POST /api/refresh", authenticated(deps.StateHandlers.Refresh))
	mux.Handle("GET /api/activity", authenticated(deps.StateHandlers.Activity))
	mux.Handle("GET /api/history", authenticated(deps.StateHandlers.History))

	mux.Handle("POST /api/entry", authenticated(deps.VehicleHandlers.Entry))
	mux.Handle("DELETE /api/entry/{country}/{reg}", authenticated(deps.VehicleHandlers.Exit))
	mux.Handle("PATCH /api/entry/{country}/{reg}", authenticated(deps.VehicleHandlers.UpdateFloor))

	mux.Handle("GET /api/payments", authenticated(deps.PaymentHandlers.List))
	mux.Handle("POST /api/payments/{country}/{reg}", authenticated(deps.PaymentHandlers.Initiate))
	mux.Handle("GET /api/payments/{country}/{reg}", authenticated(deps.PaymentHandlers.Get))
	mux.Handle("DELETE /api/payments/{country}/{reg}", authenticated(deps.PaymentHandlers.Cancel))
	mux.Handle("POST /api/payments/{country}/{reg}/confirm", authenticated(deps.PaymentHandlers.Confirm))

	return mux
}
