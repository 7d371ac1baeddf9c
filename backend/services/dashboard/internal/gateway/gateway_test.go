package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"parkdash/backend/services/dashboard/internal/clients"
	"parkdash/backend/services/dashboard/internal/models"
	"parkdash/backend/services/dashboard/internal/money"
	"parkdash/backend/services/dashboard/internal/session"
	"parkdash/backend/services/dashboard/internal/stream"
)

type fakeAuth struct {
	gate  chan struct{}
	calls atomic.Int32
	err   error
}

func (a *fakeAuth) Login(ctx context.Context, username, password string) (clients.LoginResult, error) {
	a.calls.Add(1)
	if a.gate != nil {
		select {
		case <-a.gate:
		case <-ctx.Done():
			return clients.LoginResult{}, ctx.Err()
		}
	}
	if a.err != nil {
		return clients.LoginResult{}, a.err
	}
	creds := clients.Credentials{Username: username, Password: password}
	return clients.LoginResult{Credentials: creds}, nil
}

type serverAPI struct {
	mu     sync.Mutex
	roster []models.RosterEntry
}

func (s *serverAPI) setRoster(entries ...models.RosterEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roster = entries
}

func (s *serverAPI) ListVehicles(context.Context) ([]models.RosterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RosterEntry(nil), s.roster...), nil
}

func (s *serverAPI) QuoteFee(context.Context, models.VehicleID) (money.Amount, error) {
	return money.MustParse("1"), nil
}

func (s *serverAPI) SubmitPayment(context.Context, models.VehicleID, money.Amount) error { return nil }

func (s *serverAPI) RegisterEntry(context.Context, models.VehicleID, int) error { return nil }

func (s *serverAPI) RegisterExit(context.Context, models.VehicleID) error { return nil }

func (s *serverAPI) UpdateFloor(context.Context, models.VehicleID, int) error { return nil }

type chanConn struct {
	msgs   chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *chanConn) ReadMessage() (int, []byte, error) {
	select {
	case m := <-c.msgs:
		return 1, m, nil
	case <-c.closed:
		return 0, nil, errors.New("closed")
	}
}

func (c *chanConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type chanDialer struct {
	mu    sync.Mutex
	conns []*chanConn
}

func (d *chanDialer) Dial(context.Context, string, http.Header) (stream.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := &chanConn{msgs: make(chan []byte, 8), closed: make(chan struct{})}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *chanDialer) last() *chanConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type fixture struct {
	auth      *fakeAuth
	api       *serverAPI
	dialer    *chanDialer
	logouts   []clients.Credentials
	factories atomic.Int32
	hooks     []*session.Session
	gw        *Gateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{auth: &fakeAuth{}, api: &serverAPI{}, dialer: &chanDialer{}}
	logger := zaptest.NewLogger(t)
	factory := func(creds clients.Credentials) *session.Session {
		f.factories.Add(1)
		return session.New(session.Options{
			API:            f.api,
			Dialer:         f.dialer,
			StreamURL:      "ws://parking.test/ws/stats",
			Header:         creds.Header,
			DefaultCountry: "PL",
		}, logger)
	}
	logout := LogoutFunc(func(_ context.Context, creds clients.Credentials) error {
		f.logouts = append(f.logouts, creds)
		return errors.New("server unreachable")
	})
	f.gw = New(f.auth, logout, factory, logger, WithSessionHook(func(s *session.Session) {
		f.hooks = append(f.hooks, s)
	}))
	t.Cleanup(func() { f.gw.Close(context.Background()) })
	return f
}

func entry(reg string) models.RosterEntry {
	return models.RosterEntry{Vehicle: models.NewVehicleID(reg, "PL"), Floor: 1, Spot: models.UnknownSpot}
}

func waitLoaded(t *testing.T, sess *session.Session) {
	t.Helper()
	require.Eventually(t, func() bool {
		return sess.Snapshot().RosterLoaded && sess.StreamState() == stream.StateConnected
	}, time.Second, time.Millisecond)
}

func TestLoginRequiresCredentials(t *testing.T) {
	f := newFixture(t)
	var vErr *models.ValidationError

	_, err := f.gw.Login(context.Background(), " ", "pw")
	assert.ErrorAs(t, err, &vErr)
	_, err = f.gw.Login(context.Background(), "op", "")
	assert.ErrorAs(t, err, &vErr)
	assert.Zero(t, f.auth.calls.Load())
	assert.Equal(t, StateAnonymous, f.gw.State())
}

func TestConcurrentLoginIsRejected(t *testing.T) {
	f := newFixture(t)
	f.auth.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.gw.Login(context.Background(), "op", "pw")
		done <- err
	}()
	require.Eventually(t, func() bool { return f.gw.State() == StateAuthenticating }, time.Second, time.Millisecond)

	_, err := f.gw.Login(context.Background(), "other", "pw")
	assert.ErrorIs(t, err, models.ErrLoginInProgress)
	assert.ErrorIs(t, f.gw.Logout(context.Background()), models.ErrLoginInProgress)

	close(f.auth.gate)
	require.NoError(t, <-done)
	assert.Equal(t, StateAuthenticated, f.gw.State())
	assert.Equal(t, "op", f.gw.User())
	assert.Equal(t, int32(1), f.auth.calls.Load())
	assert.Equal(t, int32(1), f.factories.Load())
}

func TestFailedLoginLeavesNoState(t *testing.T) {
	f := newFixture(t)
	f.auth.err = models.ErrInvalidCredentials

	_, err := f.gw.Login(context.Background(), "op", "wrong")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Equal(t, StateAnonymous, f.gw.State())
	assert.Zero(t, f.factories.Load())

	_, err = f.gw.Session()
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
	assert.ErrorIs(t, f.gw.Logout(context.Background()), models.ErrNotAuthenticated)
	assert.Empty(t, f.hooks)
}

func TestLoginWhileAuthenticated(t *testing.T) {
	f := newFixture(t)
	_, err := f.gw.Login(context.Background(), "op", "pw")
	require.NoError(t, err)

	_, err = f.gw.Login(context.Background(), "op", "pw")
	assert.ErrorIs(t, err, models.ErrAlreadyAuthenticated)
	assert.Equal(t, int32(1), f.factories.Load())
}

func TestLogoutThenLoginHasNoResidue(t *testing.T) {
	f := newFixture(t)
	f.api.setRoster(entry("WA12345"), entry("KR98765"))

	first, err := f.gw.Login(context.Background(), "op", "pw")
	require.NoError(t, err)
	waitLoaded(t, first)

	firstConn := f.dialer.last()
	firstConn.msgs <- []byte(`{"type":"EMERGENCY_STATUS","is_locked":true,"msg":"evacuate"}`)
	firstConn.msgs <- []byte(`{"type":"PAYMENT_SUCCESS","reg_no":"WA12345","country":"PL","amount":20}`)
	require.Eventually(t, func() bool {
		agg := first.Snapshot().Aggregate
		return agg.Locked && agg.Revenue == money.MustParse("20")
	}, time.Second, time.Millisecond)

	require.NoError(t, f.gw.Logout(context.Background()), "server logout failure is not reported")
	assert.Equal(t, StateAnonymous, f.gw.State())
	assert.True(t, first.Closed())
	select {
	case <-firstConn.closed:
	default:
		t.Fatal("first stream still open after logout")
	}
	require.Len(t, f.logouts, 1)
	assert.Equal(t, "op", f.logouts[0].Username)

	f.api.setRoster(entry("GD55555"))
	second, err := f.gw.Login(context.Background(), "op", "pw")
	require.NoError(t, err)
	waitLoaded(t, second)

	snap := second.Snapshot()
	require.Len(t, snap.Roster, 1)
	assert.Equal(t, "GD55555", snap.Roster[0].Vehicle.RegistrationNo)
	assert.Equal(t, models.Aggregate{Occupancy: 1}, snap.Aggregate)
	assert.NotEqual(t, first.ID(), second.ID())

	assert.Equal(t, []*session.Session{first, nil, second}, f.hooks)
}

func TestCloseIsTerminal(t *testing.T) {
	f := newFixture(t)
	sess, err := f.gw.Login(context.Background(), "op", "pw")
	require.NoError(t, err)

	f.gw.Close(context.Background())
	assert.Equal(t, StateClosed, f.gw.State())
	assert.True(t, sess.Closed())

	_, err = f.gw.Login(context.Background(), "op", "pw")
	assert.ErrorIs(t, err, models.ErrGatewayClosed)
	_, err = f.gw.Session()
	assert.ErrorIs(t, err, models.ErrGatewayClosed)
	assert.ErrorIs(t, f.gw.Logout(context.Background()), models.ErrGatewayClosed)
}

func TestCloseDuringLoginDiscardsResult(t *testing.T) {
	f := newFixture(t)
	f.auth.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.gw.Login(context.Background(), "op", "pw")
		done <- err
	}()
	require.Eventually(t, func() bool { return f.gw.State() == StateAuthenticating }, time.Second, time.Millisecond)

	f.gw.Close(context.Background())
	close(f.auth.gate)
	assert.ErrorIs(t, <-done, models.ErrGatewayClosed)
	assert.Zero(t, f.factories.Load())
}
