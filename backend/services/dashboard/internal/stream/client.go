package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
	defaultJitter         = 0.2
)

// State of the stream connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Conn is the read side of one live connection.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	Close() error
}

// Dialer opens stream connections.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// MessageProcessor handles raw inbound messages, one at a time, in delivery order.
type MessageProcessor interface {
	Process(ctx context.Context, raw []byte) error
}

// ProcessorFunc adapts a function to MessageProcessor.
type ProcessorFunc func(ctx context.Context, raw []byte) error

func (f ProcessorFunc) Process(ctx context.Context, raw []byte) error {
	return f(ctx, raw)
}

// Client keeps exactly one logical connection to the event feed and reconnects with
// capped exponential backoff until closed.
type Client struct {
	url       string
	dialer    Dialer
	processor MessageProcessor
	logger    *zap.Logger
	header    func() http.Header
	observer  func(State)
	onRetry   func(time.Duration)
	backoff   *backoff.ExponentialBackOff

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	state  State
	conn   Conn
	timer  *time.Timer
	closed bool
}

// Option customizes a Client.
type Option func(*Client)

// WithBackoff sets the first reconnect delay and the cap.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Client) {
		if initial > 0 {
			c.backoff.InitialInterval = initial
		}
		if max > 0 {
			c.backoff.MaxInterval = max
		}
	}
}

// WithJitter sets the randomization factor applied to reconnect delays.
func WithJitter(factor float64) Option {
	return func(c *Client) {
		if factor >= 0 && factor < 1 {
			c.backoff.RandomizationFactor = factor
		}
	}
}

// WithHeader supplies handshake headers (credentials) for every dial.
func WithHeader(fn func() http.Header) Option {
	return func(c *Client) {
		c.header = fn
	}
}

// WithStateObserver is called after every state transition.
func WithStateObserver(fn func(State)) Option {
	return func(c *Client) {
		c.observer = fn
	}
}

// WithRetryObserver is called whenever a reconnect is scheduled.
func WithRetryObserver(fn func(time.Duration)) Option {
	return func(c *Client) {
		c.onRetry = fn
	}
}

// NewClient builds a disconnected client.
func NewClient(url string, dialer Dialer, processor MessageProcessor, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultInitialBackoff
	b.MaxInterval = defaultMaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = defaultJitter

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		url:       url,
		dialer:    dialer,
		processor: processor,
		logger:    logger,
		header:    func() http.Header { return http.Header{} },
		backoff:   b,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.backoff.Reset()
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the connection unless one is already connecting or connected.
// It never blocks on the network.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.closed || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateConnecting
	c.wg.Add(1)
	c.mu.Unlock()

	c.notify(StateConnecting)
	go c.run()
}

// Close tears the connection down and cancels any pending reconnect. It waits for the
// read loop to exit, so it must not be called from inside the processor.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	prev := c.state
	c.state = StateDisconnected
	c.mu.Unlock()

	c.wg.Wait()
	if prev != StateDisconnected {
		c.notify(StateDisconnected)
	}
	c.logger.Info("event stream closed")
}

func (c *Client) run() {
	defer c.wg.Done()

	conn, err := c.dialer.Dial(c.ctx, c.url, c.header())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.state = StateDisconnected
		c.mu.Unlock()
		c.logger.Warn("event stream dial failed", zap.String("url", c.url), zap.Error(err))
		c.disconnected()
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	c.logger.Info("event stream connected", zap.String("url", c.url))
	c.notify(StateConnected)

	readErr := c.readLoop(conn)

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	_ = conn.Close()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.mu.Unlock()

	c.logger.Warn("event stream dropped", zap.Error(readErr))
	c.disconnected()
}

// disconnected reports the transition and only then arms the reconnect timer, so observers
// never see the next attempt before the drop.
func (c *Client) disconnected() {
	c.notify(StateDisconnected)

	c.mu.Lock()
	if c.closed || c.state != StateDisconnected || c.timer != nil {
		c.mu.Unlock()
		return
	}
	delay := c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.logger.Info("event stream reconnect scheduled", zap.Duration("retry_in", delay))
}

// readLoop resets the backoff on the first delivered message; a server that accepts
// and immediately drops connections keeps growing the reconnect delay.
func (c *Client) readLoop(conn Conn) error {
	received := false
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if !received {
			received = true
			c.mu.Lock()
			c.backoff.Reset()
			c.mu.Unlock()
		}
		if err := c.processor.Process(c.ctx, message); err != nil {
			c.logger.Warn("failed to process stream message", zap.Error(err))
		}
	}
}

func (c *Client) scheduleReconnectLocked() time.Duration {
	delay := c.backoff.NextBackOff()
	if delay < 0 {
		delay = c.backoff.MaxInterval
	}
	c.timer = time.AfterFunc(delay, c.Connect)
	if c.onRetry != nil {
		c.onRetry(delay)
	}
	return delay
}

func (c *Client) notify(s State) {
	if c.observer != nil {
		c.observer(s)
	}
}
