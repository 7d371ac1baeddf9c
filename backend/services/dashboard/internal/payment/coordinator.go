package payment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"parkdash/backend/libs/clock"
	"parkdash/backend/services/dashboard/internal/metrics"
	"parkdash/backend/services/dashboard/internal/models"
	"parkdash/backend/services/dashboard/internal/money"
)

const defaultRecentLimit = 50

// Phase of a payment request.
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseQuoting              Phase = "quoting"
	PhaseAwaitingConfirmation Phase = "awaiting_confirmation"
	PhaseSubmitting           Phase = "submitting"
	PhaseSettled              Phase = "settled"
	PhaseCancelled            Phase = "cancelled"
	PhaseFailed               Phase = "failed"
)

// Terminal reports whether the request can no longer change.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseSettled, PhaseCancelled, PhaseFailed:
		return true
	default:
		return false
	}
}

// Request is one operator-initiated payment.
type Request struct {
	ID        uuid.UUID        `json:"id"`
	Vehicle   models.VehicleID `json:"vehicle"`
	Fee       money.Amount     `json:"fee"`
	Phase     Phase            `json:"phase"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// API is the server side of the payment flow.
type API interface {
	QuoteFee(ctx context.Context, id models.VehicleID) (money.Amount, error)
	SubmitPayment(ctx context.Context, id models.VehicleID, amount money.Amount) error
}

// Coordinator runs quote, confirm and submit for each vehicle and never lets two
// non-terminal requests exist for the same vehicle.
type Coordinator struct {
	api         API
	logger      *zap.Logger
	metrics     *metrics.Metrics
	clock       clock.Clock
	onSettled   func(models.VehicleID)
	recentLimit int

	mu     sync.Mutex
	active map[models.VehicleID]*Request
	recent []Request
	closed bool
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) {
		if c != nil {
			co.clock = c
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(co *Coordinator) {
		co.metrics = m
	}
}

// WithSettledHook is called, outside the coordinator lock, after a payment is accepted.
func WithSettledHook(fn func(models.VehicleID)) Option {
	return func(co *Coordinator) {
		co.onSettled = fn
	}
}

// WithRecentLimit bounds how many finished requests are kept for display.
func WithRecentLimit(n int) Option {
	return func(co *Coordinator) {
		if n > 0 {
			co.recentLimit = n
		}
	}
}

// NewCoordinator builds a coordinator.
func NewCoordinator(api API, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	co := &Coordinator{
		api:         api,
		logger:      logger,
		clock:       clock.NewSystem(),
		recentLimit: defaultRecentLimit,
		active:      make(map[models.VehicleID]*Request),
	}
	for _, opt := range opts {
		opt(co)
	}
	return co
}

// Initiate asks the server for the fee and leaves the request awaiting confirmation.
func (c *Coordinator) Initiate(ctx context.Context, id models.VehicleID) (Request, error) {
	if id.IsZero() {
		return Request{}, models.NewValidationError("registration_no", "must not be empty")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Request{}, models.ErrSessionClosed
	}
	if cur, ok := c.active[id]; ok {
		c.mu.Unlock()
		c.logger.Info("payment already in progress", zap.Stringer("vehicle", id), zap.String("phase", string(cur.Phase)))
		return *cur, models.ErrPaymentInProgress
	}
	now := c.clock.Now()
	req := &Request{
		ID:        uuid.New(),
		Vehicle:   id,
		Phase:     PhaseQuoting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.active[id] = req
	c.metrics.ObservePayment(string(PhaseQuoting))
	c.mu.Unlock()

	fee, err := c.api.QuoteFee(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return *req, models.ErrSessionClosed
	}
	if c.active[id] != req || req.Phase != PhaseQuoting {
		c.logger.Info("late fee quote discarded", zap.Stringer("vehicle", id))
		return *req, models.ErrPaymentCancelled
	}
	if err != nil {
		c.finishLocked(req, PhaseFailed, err)
		return *req, fmt.Errorf("quote fee: %w", err)
	}
	if fee.IsNegative() {
		err := models.NewValidationError("fee", "server quoted a negative fee")
		c.finishLocked(req, PhaseFailed, err)
		return *req, err
	}

	req.Fee = fee
	c.transitionLocked(req, PhaseAwaitingConfirmation)
	c.logger.Info("fee quoted", zap.Stringer("vehicle", id), zap.Stringer("fee", fee))
	return *req, nil
}

// Confirm submits the quoted amount. The paid flag is left to the PAYMENT_SUCCESS event.
func (c *Coordinator) Confirm(ctx context.Context, id models.VehicleID) (Request, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Request{}, models.ErrSessionClosed
	}
	req, ok := c.active[id]
	if !ok {
		c.mu.Unlock()
		return Request{}, models.ErrNoPendingPayment
	}
	if req.Phase != PhaseAwaitingConfirmation {
		snapshot := *req
		c.mu.Unlock()
		return snapshot, fmt.Errorf("confirm from %s: %w", snapshot.Phase, models.ErrInvalidTransition)
	}
	c.transitionLocked(req, PhaseSubmitting)
	amount := req.Fee
	c.mu.Unlock()

	err := c.api.SubmitPayment(ctx, id, amount)

	c.mu.Lock()
	if c.closed {
		snapshot := *req
		c.mu.Unlock()
		return snapshot, models.ErrSessionClosed
	}
	if err != nil {
		c.finishLocked(req, PhaseFailed, err)
		snapshot := *req
		c.mu.Unlock()
		return snapshot, fmt.Errorf("submit payment: %w", err)
	}
	c.finishLocked(req, PhaseSettled, nil)
	snapshot := *req
	c.mu.Unlock()

	c.logger.Info("payment submitted", zap.Stringer("vehicle", id), zap.Stringer("amount", amount))
	if c.onSettled != nil {
		c.onSettled(id)
	}
	return snapshot, nil
}

// Cancel abandons a request that has not been submitted yet.
func (c *Coordinator) Cancel(id models.VehicleID) (Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Request{}, models.ErrSessionClosed
	}
	req, ok := c.active[id]
	if !ok {
		return Request{}, models.ErrNoPendingPayment
	}
	if req.Phase == PhaseSubmitting {
		return *req, fmt.Errorf("cancel while submitting: %w", models.ErrInvalidTransition)
	}
	c.finishLocked(req, PhaseCancelled, nil)
	return *req, nil
}

// Get returns the active request for a vehicle, or the latest finished one.
func (c *Coordinator) Get(id models.VehicleID) (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req, ok := c.active[id]; ok {
		return *req, true
	}
	for i := len(c.recent) - 1; i >= 0; i-- {
		if c.recent[i].Vehicle == id {
			return c.recent[i], true
		}
	}
	return Request{}, false
}

// Pending lists non-terminal requests ordered by vehicle.
func (c *Coordinator) Pending() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Request, 0, len(c.active))
	for _, req := range c.active {
		out = append(out, *req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Vehicle.Less(out[j].Vehicle) })
	return out
}

// Recent lists finished requests, newest first.
func (c *Coordinator) Recent() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Request, 0, len(c.recent))
	for i := len(c.recent) - 1; i >= 0; i-- {
		out = append(out, c.recent[i])
	}
	return out
}

// Close cancels every open request; results of calls still in flight are dropped.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	for _, req := range c.active {
		c.finishLocked(req, PhaseCancelled, models.ErrSessionClosed)
	}
	c.closed = true
}

func (c *Coordinator) transitionLocked(req *Request, phase Phase) {
	req.Phase = phase
	req.UpdatedAt = c.clock.Now()
	c.metrics.ObservePayment(string(phase))
}

func (c *Coordinator) finishLocked(req *Request, phase Phase, err error) {
	c.transitionLocked(req, phase)
	if err != nil {
		req.Error = err.Error()
		c.logger.Warn("payment request failed",
			zap.Stringer("vehicle", req.Vehicle), zap.String("phase", string(phase)), zap.Error(err))
	}
	if c.active[req.Vehicle] == req {
		delete(c.active, req.Vehicle)
	}
	c.recent = append(c.recent, *req)
	if len(c.recent) > c.recentLimit {
		c.recent = c.recent[len(c.recent)-c.recentLimit:]
	}
}
