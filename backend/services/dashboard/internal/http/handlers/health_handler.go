package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks that the parking API answers.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

type healthResponse struct {
	Status    string `json:"status"`
	Upstream  string `json:"upstream,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
}

// NewHealthHandler returns GET /health handler. With ?upstream=1 it also pings the
// parking API; an unreachable API is reported, not failed.
func NewHealthHandler(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		if pinger != nil && r.URL.Query().Get("upstream") != "" {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			latency, err := pinger.Ping(ctx)
			if err != nil {
				resp.Upstream = "unreachable"
			} else {
				resp.Upstream = "ok"
				resp.LatencyMS = latency.Milliseconds()
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
