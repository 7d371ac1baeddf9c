package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"parkdash/backend/services/dashboard/internal/models"
	"parkdash/backend/services/dashboard/internal/session"
)

type contextKey string

const sessionKey contextKey = "session"

// SessionProvider returns the live operator session.
type SessionProvider interface {
	Session() (*session.Session, error)
}

// RequireSession rejects requests while no operator is logged in and puts the live
// session into the request context.
func RequireSession(provider SessionProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := provider.Session()
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, models.ErrGatewayClosed) {
					status = http.StatusServiceUnavailable
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext retrieves the session stored by RequireSession.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(*session.Session)
	return sess, ok && sess != nil
}
