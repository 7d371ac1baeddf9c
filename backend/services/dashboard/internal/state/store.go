package state

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"parkdash/backend/libs/clock"
	"parkdash/backend/services/dashboard/internal/metrics"
	"parkdash/backend/services/dashboard/internal/models"
)

// Outcome describes what Apply did with an event.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeIgnored Outcome = "ignored"
	// OutcomeAnomaly means the event was applied but contradicted local state.
	OutcomeAnomaly Outcome = "anomaly"
)

// Causes reported on changes that do not come from a stream event.
const (
	CauseRosterRefresh = "ROSTER_REFRESH"
	CauseReset         = "RESET"
)

const defaultSubscriberBuffer = 32

// Snapshot is a deep copy of the store at one version.
type Snapshot struct {
	Version      uint64                  `json:"version"`
	Aggregate    models.Aggregate        `json:"aggregate"`
	Roster       []models.VehicleSession `json:"roster"`
	RosterLoaded bool                    `json:"roster_loaded"`
}

// Lookup finds a roster entry in the snapshot.
func (s Snapshot) Lookup(id models.VehicleID) (models.VehicleSession, bool) {
	for _, v := range s.Roster {
		if v.Vehicle == id {
			return v, true
		}
	}
	return models.VehicleSession{}, false
}

// Change is published to subscribers after every mutation.
type Change struct {
	Cause    string   `json:"cause"`
	Outcome  Outcome  `json:"outcome,omitempty"`
	Snapshot Snapshot `json:"snapshot"`
}

type subscriber struct {
	ch   chan Change
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Store is the canonical facility state. Apply, ReplaceRoster and Reset share one mutex,
// so mutations are serialized no matter how many goroutines feed the store.
type Store struct {
	mu             sync.Mutex
	clock          clock.Clock
	logger         *zap.Logger
	metrics        *metrics.Metrics
	defaultCountry string

	sessions     map[models.VehicleID]*models.VehicleSession
	agg          models.Aggregate
	rosterLoaded bool
	version      uint64
	closed       bool

	subs map[*subscriber]struct{}
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the clock used for entry timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithDefaultCountry sets the country assumed for events that omit it.
func WithDefaultCountry(country string) Option {
	return func(s *Store) {
		s.defaultCountry = strings.ToUpper(strings.TrimSpace(country))
	}
}

// WithMetrics publishes aggregate gauges and event counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// NewStore returns an empty store.
func NewStore(logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		clock:    clock.NewSystem(),
		logger:   logger,
		sessions: make(map[models.VehicleID]*models.VehicleSession),
		subs:     make(map[*subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply is the single entry point for stream events.
func (s *Store) Apply(ev models.Event) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return OutcomeIgnored
	}

	outcome := s.applyLocked(ev)
	s.metrics.ObserveEvent(string(ev.Type), string(outcome))
	if outcome != OutcomeIgnored {
		s.version++
		s.publishLocked(string(ev.Type), outcome)
	}
	return outcome
}

func (s *Store) applyLocked(ev models.Event) Outcome {
	log := s.logger.With(zap.String("type", string(ev.Type)))

	switch ev.Type {
	case models.EventVehicleEntry:
		id, ok := s.resolveLocked(ev)
		if !ok {
			log.Warn("vehicle event without registration ignored")
			return OutcomeIgnored
		}
		if _, exists := s.sessions[id]; exists {
			log.Warn("duplicate entry for active vehicle ignored", zap.Stringer("vehicle", id))
			return OutcomeIgnored
		}
		s.sessions[id] = &models.VehicleSession{
			Vehicle:   id,
			Floor:     intOr(ev.Floor, models.UnknownFloor),
			Spot:      intOr(ev.Spot, models.UnknownSpot),
			EnteredAt: s.clock.Now(),
		}
		s.agg.Occupancy++
		return OutcomeApplied

	case models.EventVehicleExit:
		id, ok := s.resolveLocked(ev)
		if !ok {
			log.Warn("vehicle event without registration ignored")
			return OutcomeIgnored
		}
		if _, exists := s.sessions[id]; !exists {
			log.Warn("exit for unknown vehicle ignored", zap.Stringer("vehicle", id))
			return OutcomeIgnored
		}
		delete(s.sessions, id)
		if s.agg.Occupancy > 0 {
			s.agg.Occupancy--
		}
		return OutcomeApplied

	case models.EventVehicleUpdated:
		id, ok := s.resolveLocked(ev)
		if !ok {
			log.Warn("vehicle event without registration ignored")
			return OutcomeIgnored
		}
		if ev.Floor == nil {
			log.Debug("floor update without floor ignored", zap.Stringer("vehicle", id))
			return OutcomeIgnored
		}
		if sess, exists := s.sessions[id]; exists {
			sess.Floor = *ev.Floor
			if ev.Spot != nil {
				sess.Spot = *ev.Spot
			}
			return OutcomeApplied
		}
		log.Warn("floor update for unknown vehicle, treating as entry", zap.Stringer("vehicle", id))
		s.sessions[id] = &models.VehicleSession{
			Vehicle:   id,
			Floor:     *ev.Floor,
			Spot:      models.UnknownSpot,
			EnteredAt: s.clock.Now(),
			Anomalous: true,
		}
		s.agg.Occupancy++
		return OutcomeAnomaly

	case models.EventPaymentSuccess:
		if ev.Amount == nil {
			log.Warn("payment event without amount ignored", zap.String("reg_no", ev.RegistrationNo))
			return OutcomeIgnored
		}
		if ev.Amount.IsNegative() {
			log.Warn("payment event with negative amount ignored",
				zap.String("reg_no", ev.RegistrationNo), zap.Stringer("amount", ev.Amount))
			return OutcomeIgnored
		}
		revenue, err := s.agg.Revenue.CheckedAdd(*ev.Amount)
		if err != nil {
			log.Warn("payment event would overflow revenue, ignored",
				zap.String("reg_no", ev.RegistrationNo), zap.Stringer("amount", ev.Amount),
				zap.Stringer("revenue", s.agg.Revenue))
			return OutcomeIgnored
		}
		s.agg.Revenue = revenue

		id, ok := s.resolveLocked(ev)
		if !ok {
			log.Warn("payment without registration counted towards revenue only", zap.Stringer("amount", ev.Amount))
			return OutcomeAnomaly
		}
		sess, exists := s.sessions[id]
		if !exists {
			log.Warn("payment for unknown vehicle counted towards revenue only",
				zap.Stringer("vehicle", id), zap.Stringer("amount", ev.Amount))
			return OutcomeAnomaly
		}
		if sess.Paid {
			log.Info("repeated payment for paid vehicle", zap.Stringer("vehicle", id), zap.Stringer("amount", ev.Amount))
		}
		sess.Paid = true
		return OutcomeApplied

	case models.EventEmergencyStatus:
		s.agg.Locked = ev.IsLocked
		s.agg.AlertMessage = ev.Message
		if ev.IsLocked {
			log.Warn("facility locked", zap.String("msg", ev.Message))
		} else {
			log.Info("facility unlocked", zap.String("msg", ev.Message))
		}
		return OutcomeApplied

	default:
		log.Debug("unknown event type ignored")
		return OutcomeIgnored
	}
}

// resolveLocked maps an event onto an identity. When the feed omits the country the
// registration is matched against active sessions first, then the default country is used.
func (s *Store) resolveLocked(ev models.Event) (models.VehicleID, bool) {
	id := models.NewVehicleID(ev.RegistrationNo, ev.Country)
	if id.IsZero() {
		return id, false
	}
	if id.Country != "" {
		return id, true
	}

	var match models.VehicleID
	matches := 0
	for known := range s.sessions {
		if known.RegistrationNo == id.RegistrationNo {
			match = known
			matches++
		}
	}
	if matches == 1 {
		return match, true
	}
	id.Country = s.defaultCountry
	return id, true
}

// ReplaceRoster swaps roster membership for a fetched snapshot. Fetched paid flags win;
// entry timestamps already known locally are kept. The first replace after a reset seeds
// occupancy from the roster size; later ones leave the stream tally alone.
func (s *Store) ReplaceRoster(entries []models.RosterEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	now := s.clock.Now()
	next := make(map[models.VehicleID]*models.VehicleSession, len(entries))
	for _, e := range entries {
		id := models.NewVehicleID(e.Vehicle.RegistrationNo, e.Vehicle.Country)
		if id.IsZero() {
			continue
		}
		sess := &models.VehicleSession{
			Vehicle:   id,
			Floor:     e.Floor,
			Spot:      e.Spot,
			Paid:      e.Paid,
			EnteredAt: now,
		}
		if prev, ok := s.sessions[id]; ok {
			sess.EnteredAt = prev.EnteredAt
		}
		next[id] = sess
	}

	added, removed := diffMembership(s.sessions, next)
	if added > 0 || removed > 0 {
		s.logger.Info("roster membership reconciled",
			zap.Int("added", added), zap.Int("removed", removed), zap.Int("size", len(next)))
	}

	s.sessions = next
	if !s.rosterLoaded {
		s.agg.Occupancy = len(next)
		s.rosterLoaded = true
	}
	s.version++
	s.publishLocked(CauseRosterRefresh, OutcomeApplied)
}

func diffMembership(prev, next map[models.VehicleID]*models.VehicleSession) (added, removed int) {
	for id := range next {
		if _, ok := prev[id]; !ok {
			added++
		}
	}
	for id := range prev {
		if _, ok := next[id]; !ok {
			removed++
		}
	}
	return added, removed
}

// Reset discards all facility data.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.sessions = make(map[models.VehicleID]*models.VehicleSession)
	s.agg = models.Aggregate{}
	s.rosterLoaded = false
	s.version++
	s.publishLocked(CauseReset, "")
}

// Close resets the store, closes every subscription and turns later mutations into no-ops.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.sessions = make(map[models.VehicleID]*models.VehicleSession)
	s.agg = models.Aggregate{}
	s.rosterLoaded = false
	s.closed = true
	for sub := range s.subs {
		sub.close()
		delete(s.subs, sub)
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	roster := make([]models.VehicleSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		roster = append(roster, *sess)
	}
	sort.Slice(roster, func(i, j int) bool {
		return roster[i].Vehicle.Less(roster[j].Vehicle)
	})
	return Snapshot{
		Version:      s.version,
		Aggregate:    s.agg,
		Roster:       roster,
		RosterLoaded: s.rosterLoaded,
	}
}

// Subscribe registers for change notifications. A subscriber that falls behind misses
// intermediate changes; Snapshot always returns the latest state.
func (s *Store) Subscribe() (<-chan Change, func()) {
	sub := &subscriber{ch: make(chan Change, defaultSubscriberBuffer)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	return sub.ch, func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
		sub.close()
	}
}

func (s *Store) publishLocked(cause string, outcome Outcome) {
	s.metrics.SetAggregate(s.agg.Occupancy, s.agg.Revenue.Float64(), s.agg.Locked)
	if len(s.subs) == 0 {
		return
	}
	change := Change{Cause: cause, Outcome: outcome, Snapshot: s.snapshotLocked()}
	for sub := range s.subs {
		select {
		case sub.ch <- change:
		default:
			s.logger.Debug("dropping change for slow subscriber", zap.Uint64("version", change.Snapshot.Version))
		}
	}
}

func intOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}
