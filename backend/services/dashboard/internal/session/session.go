package session

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"parkdash/backend/libs/clock"
	"parkdash/backend/services/dashboard/internal/journal"
	"parkdash/backend/services/dashboard/internal/metrics"
	"parkdash/backend/services/dashboard/internal/models"
	"parkdash/backend/services/dashboard/internal/payment"
	"parkdash/backend/services/dashboard/internal/roster"
	"parkdash/backend/services/dashboard/internal/state"
	"parkdash/backend/services/dashboard/internal/stream"
	"parkdash/backend/services/dashboard/internal/validation"
)

const (
	defaultAuditTimeout   = 2 * time.Second
	defaultJournalTimeout = 2 * time.Second
)

// API is the part of the parking REST API a session drives.
type API interface {
	roster.Fetcher
	payment.API
	RegisterEntry(ctx context.Context, id models.VehicleID, floor int) error
	RegisterExit(ctx context.Context, id models.VehicleID) error
	UpdateFloor(ctx context.Context, id models.VehicleID, floor int) error
}

// AuditLog persists raw stream messages.
type AuditLog interface {
	Save(ctx context.Context, sessionID, messageType string, payload []byte) error
}

// Options wires a session to its collaborators. API, Dialer and StreamURL are required.
type Options struct {
	API       API
	Dialer    stream.Dialer
	StreamURL string

	// Header returns the stream handshake headers.
	Header func() http.Header

	Journal journal.Journal

	// NewJournal builds the journal from the session id when Journal is nil.
	NewJournal func(sessionID string) journal.Journal

	Audit   AuditLog
	Metrics *metrics.Metrics
	Clock   clock.Clock

	DefaultCountry string
	StreamOptions  []stream.Option
	FetchTimeout   time.Duration
	RecentPayments int

	// OnStreamState is called after every stream state transition.
	OnStreamState func(stream.State)
}

// Session owns everything that belongs to one login: the facility store, the roster
// synchronizer, the payment coordinator, the event stream and the activity journal.
// Closing it tears all of them down; nothing is shared with the next session.
type Session struct {
	id      string
	logger  *zap.Logger
	clock   clock.Clock
	api     API
	audit   AuditLog
	journal journal.Journal

	ctx    context.Context
	cancel context.CancelFunc

	store    *state.Store
	roster   *roster.Synchronizer
	payments *payment.Coordinator
	stream   *stream.Client

	closeOnce sync.Once
}

// New builds a session. Nothing touches the network until Start.
func New(opts Options, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	if opts.Header == nil {
		opts.Header = func() http.Header { return http.Header{} }
	}

	id := uuid.NewString()
	if opts.Journal == nil && opts.NewJournal != nil {
		opts.Journal = opts.NewJournal(id)
	}
	if opts.Journal == nil {
		opts.Journal = journal.NewMemoryJournal(journal.DefaultCapacity)
	}
	logger = logger.With(zap.String("session_id", id))
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:      id,
		logger:  logger,
		clock:   opts.Clock,
		api:     opts.API,
		audit:   opts.Audit,
		journal: opts.Journal,
		ctx:     ctx,
		cancel:  cancel,
	}

	s.store = state.NewStore(logger.Named("store"),
		state.WithClock(opts.Clock),
		state.WithDefaultCountry(opts.DefaultCountry),
		state.WithMetrics(opts.Metrics),
	)
	s.roster = roster.NewSynchronizer(ctx, opts.API, s.store, logger.Named("roster"),
		roster.WithClock(opts.Clock),
		roster.WithMetrics(opts.Metrics),
		roster.WithTimeout(opts.FetchTimeout),
	)
	s.payments = payment.NewCoordinator(opts.API, logger.Named("payment"),
		payment.WithClock(opts.Clock),
		payment.WithMetrics(opts.Metrics),
		payment.WithRecentLimit(opts.RecentPayments),
		payment.WithSettledHook(func(models.VehicleID) { s.roster.Trigger("payment submitted") }),
	)

	m := opts.Metrics
	onState := opts.OnStreamState
	streamOpts := append([]stream.Option{
		stream.WithHeader(opts.Header),
		stream.WithStateObserver(func(st stream.State) {
			m.SetStreamState(int(st))
			if onState != nil {
				onState(st)
			}
		}),
		stream.WithRetryObserver(func(time.Duration) { m.IncReconnect() }),
	}, opts.StreamOptions...)
	s.stream = stream.NewClient(opts.StreamURL, opts.Dialer, s, logger.Named("stream"), streamOpts...)

	return s
}

// ID is the session identifier used for journal keys and audit rows.
func (s *Session) ID() string {
	return s.id
}

// Start opens the event stream and fetches the initial roster.
func (s *Session) Start() {
	if s.ctx.Err() != nil {
		return
	}
	s.stream.Connect()
	s.roster.Trigger("login")
	s.logger.Info("session started")
}

// Process handles one raw stream message: audit, apply, journal, and schedule a roster
// refresh for structural events. It runs on the stream read loop.
func (s *Session) Process(ctx context.Context, raw []byte) error {
	if s.ctx.Err() != nil {
		return nil
	}

	ev, err := models.ParseEvent(raw)
	if err != nil {
		s.saveAudit("INVALID", raw)
		return err
	}
	s.saveAudit(string(ev.Type), raw)

	outcome := s.store.Apply(ev)
	if outcome != state.OutcomeIgnored {
		jctx, cancel := context.WithTimeout(ctx, defaultJournalTimeout)
		if err := s.journal.Append(jctx, journal.FromEvent(ev, string(outcome), s.clock.Now())); err != nil {
			s.logger.Warn("failed to journal event", zap.String("type", string(ev.Type)), zap.Error(err))
		}
		cancel()
	}
	if ev.Type.Structural() {
		s.roster.Trigger(string(ev.Type))
	}
	return nil
}

func (s *Session) saveAudit(messageType string, raw []byte) {
	if s.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, defaultAuditTimeout)
	defer cancel()
	if err := s.audit.Save(ctx, s.id, messageType, raw); err != nil {
		s.logger.Warn("failed to save stream message", zap.String("type", messageType), zap.Error(err))
	}
}

// Snapshot returns the current facility state.
func (s *Session) Snapshot() state.Snapshot {
	return s.store.Snapshot()
}

// Subscribe forwards store change notifications.
func (s *Session) Subscribe() (<-chan state.Change, func()) {
	return s.store.Subscribe()
}

// Search filters the roster by a case-insensitive substring of "COUNTRY/REG".
func (s *Session) Search(q string) []models.VehicleSession {
	snap := s.store.Snapshot()
	q = strings.ToUpper(strings.TrimSpace(q))
	if q == "" {
		return snap.Roster
	}
	out := make([]models.VehicleSession, 0)
	for _, v := range snap.Roster {
		if strings.Contains(v.Vehicle.String(), q) {
			out = append(out, v)
		}
	}
	return out
}

// ManualEntry registers a vehicle on the server. Local state changes only through the
// resulting stream event and roster refresh.
func (s *Session) ManualEntry(ctx context.Context, id models.VehicleID, floor int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validation.Registration(id); err != nil {
		return err
	}
	if err := validation.Floor(floor); err != nil {
		return err
	}
	if err := s.api.RegisterEntry(ctx, id, floor); err != nil {
		return err
	}
	s.logger.Info("manual entry registered", zap.Stringer("vehicle", id), zap.Int("floor", floor))
	s.roster.Trigger("manual entry")
	return nil
}

// ManualExit registers a vehicle exit on the server.
func (s *Session) ManualExit(ctx context.Context, id models.VehicleID) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validation.Identity(id); err != nil {
		return err
	}
	if err := s.api.RegisterExit(ctx, id); err != nil {
		return err
	}
	s.logger.Info("manual exit registered", zap.Stringer("vehicle", id))
	s.roster.Trigger("manual exit")
	return nil
}

// UpdateFloor moves a vehicle on the server.
func (s *Session) UpdateFloor(ctx context.Context, id models.VehicleID, floor int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validation.Identity(id); err != nil {
		return err
	}
	if err := validation.Floor(floor); err != nil {
		return err
	}
	if err := s.api.UpdateFloor(ctx, id, floor); err != nil {
		return err
	}
	s.logger.Info("floor updated", zap.Stringer("vehicle", id), zap.Int("floor", floor))
	s.roster.Trigger("floor update")
	return nil
}

// InitiatePayment quotes the fee for a vehicle.
func (s *Session) InitiatePayment(ctx context.Context, id models.VehicleID) (payment.Request, error) {
	if err := validation.Identity(id); err != nil {
		return payment.Request{}, err
	}
	return s.payments.Initiate(ctx, id)
}

// ConfirmPayment submits the quoted fee.
func (s *Session) ConfirmPayment(ctx context.Context, id models.VehicleID) (payment.Request, error) {
	return s.payments.Confirm(ctx, id)
}

// CancelPayment abandons an unsubmitted payment.
func (s *Session) CancelPayment(id models.VehicleID) (payment.Request, error) {
	return s.payments.Cancel(id)
}

// Payment returns the active or latest payment for a vehicle.
func (s *Session) Payment(id models.VehicleID) (payment.Request, bool) {
	return s.payments.Get(id)
}

// PendingPayments lists payments that have not finished.
func (s *Session) PendingPayments() []payment.Request {
	return s.payments.Pending()
}

// RecentPayments lists finished payments, newest first.
func (s *Session) RecentPayments() []payment.Request {
	return s.payments.Recent()
}

// Activity returns the newest journal entries.
func (s *Session) Activity(ctx context.Context, limit int) ([]journal.Entry, error) {
	return s.journal.Recent(ctx, limit)
}

// StreamState reports the event stream connection state.
func (s *Session) StreamState() stream.State {
	return s.stream.State()
}

// RosterStatus reports roster refresh bookkeeping.
func (s *Session) RosterStatus() roster.Status {
	return s.roster.Status()
}

// Refresh fetches the roster now and waits for the result.
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.roster.Refresh(ctx)
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.ctx.Err() != nil
}

// Close tears the session down: the stream and any pending reconnect are stopped,
// late roster and payment results are dropped, and all facility data is discarded.
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.cancel()
		s.stream.Close()
		s.payments.Close()
		s.roster.Close()
		s.store.Reset()
		s.store.Close()
		if err := s.journal.Clear(ctx); err != nil {
			s.logger.Warn("failed to clear activity journal", zap.Error(err))
		}
		s.logger.Info("session closed")
	})
}

func (s *Session) checkOpen() error {
	if s.ctx.Err() != nil {
		return models.ErrSessionClosed
	}
	return nil
}
