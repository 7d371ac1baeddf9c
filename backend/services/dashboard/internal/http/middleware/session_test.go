package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkdash/backend/services/dashboard/internal/models"
	"parkdash/backend/services/dashboard/internal/session"
)

type providerFunc func() (*session.Session, error)

func (f providerFunc) Session() (*session.Session, error) { return f() }

func TestRequireSessionRejectsWithJSONError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not authenticated", models.ErrNotAuthenticated, http.StatusUnauthorized},
		{"gateway closed", fmt.Errorf("shutting down: %w", models.ErrGatewayClosed), http.StatusServiceUnavailable},
		{"message needing escapes", errors.New(`token "abc" rejected` + "\n\\"), http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })
			provider := providerFunc(func() (*session.Session, error) { return nil, tc.err })

			rec := httptest.NewRecorder()
			RequireSession(provider)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))

			assert.False(t, called)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.err.Error(), body["error"])
		})
	}
}
