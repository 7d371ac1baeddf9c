package roster

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"parkdash/backend/libs/clock"
	"parkdash/backend/services/dashboard/internal/metrics"
	"parkdash/backend/services/dashboard/internal/models"
)

const defaultFetchTimeout = 10 * time.Second

// Fetcher loads the authoritative vehicle list.
type Fetcher interface {
	ListVehicles(ctx context.Context) ([]models.RosterEntry, error)
}

// Target receives fetched rosters.
type Target interface {
	ReplaceRoster(entries []models.RosterEntry)
}

// Status is what the console shows about roster freshness.
type Status struct {
	LastRefreshAt time.Time `json:"last_refresh_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	Refreshes     uint64    `json:"refreshes"`
	Coalesced     uint64    `json:"coalesced"`
	InFlight      bool      `json:"in_flight"`
}

// Synchronizer refreshes the roster on demand. At most one fetch runs at a time; triggers
// that arrive meanwhile collapse into a single follow-up fetch.
type Synchronizer struct {
	fetcher Fetcher
	target  Target
	logger  *zap.Logger
	metrics *metrics.Metrics
	clock   clock.Clock
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inFlight bool
	pending  bool
	idle     chan struct{}
	lastErr  error
	status   Status
}

// Option customizes a Synchronizer.
type Option func(*Synchronizer)

func WithClock(c clock.Clock) Option {
	return func(s *Synchronizer) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synchronizer) {
		s.metrics = m
	}
}

// WithTimeout bounds a single fetch.
func WithTimeout(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSynchronizer binds a fetcher to a target. Cancelling ctx detaches the synchronizer:
// later triggers are ignored and results of a fetch already running are dropped.
func NewSynchronizer(ctx context.Context, fetcher Fetcher, target Target, logger *zap.Logger, opts ...Option) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	idle := make(chan struct{})
	close(idle)

	ctx, cancel := context.WithCancel(ctx)
	s := &Synchronizer{
		fetcher: fetcher,
		target:  target,
		logger:  logger,
		clock:   clock.NewSystem(),
		timeout: defaultFetchTimeout,
		ctx:     ctx,
		cancel:  cancel,
		idle:    idle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger requests a refresh and returns immediately.
func (s *Synchronizer) Trigger(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	if s.inFlight {
		if s.pending {
			s.status.Coalesced++
			s.metrics.IncCoalesced()
			s.logger.Debug("roster refresh coalesced", zap.String("reason", reason))
			return
		}
		s.pending = true
		return
	}

	s.inFlight = true
	s.idle = make(chan struct{})
	s.wg.Add(1)
	go s.run(reason)
}

// Wait blocks until no fetch is running or pending.
func (s *Synchronizer) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh triggers a fetch and waits for it and any follow-up to finish.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	s.Trigger("manual")
	if err := s.Wait(ctx); err != nil {
		return err
	}
	if err := s.ctx.Err(); err != nil {
		return models.ErrSessionClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Status returns a copy of the refresh bookkeeping.
func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.InFlight = s.inFlight
	return st
}

// Close detaches the synchronizer and waits for the running fetch to return.
func (s *Synchronizer) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Synchronizer) run(reason string) {
	defer s.wg.Done()

	for {
		s.refresh(reason)

		s.mu.Lock()
		if !s.pending || s.ctx.Err() != nil {
			s.pending = false
			s.inFlight = false
			close(s.idle)
			s.mu.Unlock()
			return
		}
		s.pending = false
		s.mu.Unlock()
		reason = "follow-up"
	}
}

func (s *Synchronizer) refresh(reason string) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	started := s.clock.Now()
	entries, err := s.fetcher.ListVehicles(ctx)

	if s.ctx.Err() != nil {
		s.logger.Debug("roster result discarded after detach", zap.String("reason", reason))
		s.metrics.ObserveRefresh("discarded")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.lastErr = err
		s.status.LastError = err.Error()
		s.metrics.ObserveRefresh("error")
		s.logger.Warn("roster refresh failed", zap.String("reason", reason), zap.Error(err))
		return
	}

	s.target.ReplaceRoster(entries)
	s.lastErr = nil
	s.status.LastError = ""
	s.status.LastRefreshAt = started
	s.status.Refreshes++
	s.metrics.ObserveRefresh("ok")
	s.logger.Debug("roster refreshed", zap.String("reason", reason), zap.Int("vehicles", len(entries)))
}
