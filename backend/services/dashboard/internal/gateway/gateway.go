package gateway

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"parkdash/backend/services/dashboard/internal/clients"
	"parkdash/backend/services/dashboard/internal/models"
	"parkdash/backend/services/dashboard/internal/session"
)

// State of the operator login.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticating
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "anonymous"
	}
}

// Authenticator checks credentials against the parking API.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (clients.LoginResult, error)
}

// Logouter ends the server-side session for the given credentials.
type Logouter interface {
	Logout(ctx context.Context, creds clients.Credentials) error
}

// LogoutFunc adapts a function to Logouter.
type LogoutFunc func(ctx context.Context, creds clients.Credentials) error

func (f LogoutFunc) Logout(ctx context.Context, creds clients.Credentials) error {
	return f(ctx, creds)
}

// SessionFactory builds a not-yet-started session for freshly verified credentials.
type SessionFactory func(creds clients.Credentials) *session.Session

// Gateway owns the login lifecycle. At most one session exists at a time and it only
// exists while the gateway is authenticated.
type Gateway struct {
	auth     Authenticator
	logout   Logouter
	factory  SessionFactory
	logger   *zap.Logger
	onChange func(*session.Session)

	mu      sync.Mutex
	state   State
	user    string
	creds   clients.Credentials
	session *session.Session
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithSessionHook is called with the new session after login and with nil after logout.
// It runs under the gateway lock and must not call back into the gateway.
func WithSessionHook(fn func(*session.Session)) Option {
	return func(g *Gateway) {
		g.onChange = fn
	}
}

// New returns an anonymous gateway.
func New(auth Authenticator, logout Logouter, factory SessionFactory, logger *zap.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		auth:    auth,
		logout:  logout,
		factory: factory,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the login state.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// User returns the logged-in operator name, or "".
func (g *Gateway) User() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.user
}

// Session returns the live session.
func (g *Gateway) Session() (*session.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateClosed {
		return nil, models.ErrGatewayClosed
	}
	if g.session == nil {
		return nil, models.ErrNotAuthenticated
	}
	return g.session, nil
}

// Credentials returns the credentials of the logged-in operator.
func (g *Gateway) Credentials() (clients.Credentials, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case StateClosed:
		return clients.Credentials{}, models.ErrGatewayClosed
	case StateAuthenticated:
		return g.creds, nil
	default:
		return clients.Credentials{}, models.ErrNotAuthenticated
	}
}

// Login verifies the credentials and starts a new session. A second login while the
// first is still running is rejected, never queued.
func (g *Gateway) Login(ctx context.Context, username, password string) (*session.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, models.NewValidationError("username", "is required")
	}
	if password == "" {
		return nil, models.NewValidationError("password", "is required")
	}

	g.mu.Lock()
	switch g.state {
	case StateAuthenticating:
		g.mu.Unlock()
		return nil, models.ErrLoginInProgress
	case StateAuthenticated:
		g.mu.Unlock()
		return nil, models.ErrAlreadyAuthenticated
	case StateClosed:
		g.mu.Unlock()
		return nil, models.ErrGatewayClosed
	}
	g.state = StateAuthenticating
	g.mu.Unlock()

	res, err := g.auth.Login(ctx, username, password)

	g.mu.Lock()
	if g.state != StateAuthenticating {
		// Closed while the request was in flight.
		g.mu.Unlock()
		return nil, models.ErrGatewayClosed
	}
	if err != nil {
		g.state = StateAnonymous
		g.mu.Unlock()
		g.logger.Warn("login failed", zap.String("user", username), zap.Error(err))
		return nil, err
	}

	sess := g.factory(res.Credentials)
	g.session = sess
	g.creds = res.Credentials
	g.user = username
	g.state = StateAuthenticated
	sess.Start()
	g.notify(sess)
	g.mu.Unlock()

	g.logger.Info("operator logged in", zap.String("user", username), zap.String("session_id", sess.ID()))
	return sess, nil
}

// Logout closes the session synchronously, then tells the server. A failing server
// logout is logged only; local state is already gone.
func (g *Gateway) Logout(ctx context.Context) error {
	g.mu.Lock()
	switch g.state {
	case StateAuthenticating:
		g.mu.Unlock()
		return models.ErrLoginInProgress
	case StateClosed:
		g.mu.Unlock()
		return models.ErrGatewayClosed
	case StateAnonymous:
		g.mu.Unlock()
		return models.ErrNotAuthenticated
	}
	creds := g.teardownLocked(ctx)
	g.state = StateAnonymous
	g.notify(nil)
	g.mu.Unlock()

	g.serverLogout(ctx, creds)
	return nil
}

// Close logs out if needed and rejects every later call.
func (g *Gateway) Close(ctx context.Context) {
	g.mu.Lock()
	if g.state == StateClosed {
		g.mu.Unlock()
		return
	}
	wasAuthenticated := g.state == StateAuthenticated
	creds := g.teardownLocked(ctx)
	g.state = StateClosed
	if wasAuthenticated {
		g.notify(nil)
	}
	g.mu.Unlock()

	if wasAuthenticated {
		g.serverLogout(ctx, creds)
	}
	g.logger.Info("gateway closed")
}

func (g *Gateway) teardownLocked(ctx context.Context) clients.Credentials {
	creds := g.creds
	if g.session != nil {
		g.session.Close(ctx)
		g.logger.Info("operator logged out", zap.String("user", g.user), zap.String("session_id", g.session.ID()))
	}
	g.session = nil
	g.creds = clients.Credentials{}
	g.user = ""
	return creds
}

func (g *Gateway) serverLogout(ctx context.Context, creds clients.Credentials) {
	if g.logout == nil {
		return
	}
	if err := g.logout.Logout(ctx, creds); err != nil {
		g.logger.Warn("server logout failed", zap.Error(err))
	}
}

func (g *Gateway) notify(sess *session.Session) {
	if g.onChange != nil {
		g.onChange(sess)
	}
}
