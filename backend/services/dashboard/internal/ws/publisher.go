package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"parkdash/backend/services/dashboard/internal/session"
	"parkdash/backend/services/dashboard/internal/state"
	"parkdash/backend/services/dashboard/internal/stream"
	"parkdash/backend/services/dashboard/internal/view"
)

const (
	MessageState     = "state"
	MessageLoggedOut = "logged_out"
)

// Message is what consoles receive.
type Message struct {
	Type  string          `json:"type"`
	Cause string          `json:"cause,omitempty"`
	State *view.StateView `json:"data,omitempty"`
}

// Publisher follows the live session and pushes every state change to all consoles.
type Publisher struct {
	manager *Manager
	logger  *zap.Logger

	mu      sync.Mutex
	current *session.Session
	unsub   func()
	wg      sync.WaitGroup
}

// NewPublisher builds a publisher broadcasting through manager.
func NewPublisher(manager *Manager, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{manager: manager, logger: logger}
}

// Attach switches to sess, or to the logged-out feed when sess is nil. It is used as the
// gateway session hook and never blocks on consoles.
func (p *Publisher) Attach(sess *session.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.unsub != nil {
		p.unsub()
		p.unsub = nil
	}
	p.current = sess
	if sess == nil {
		p.manager.Broadcast(p.encode(Message{Type: MessageLoggedOut}))
		return
	}

	changes, unsub := sess.Subscribe()
	p.unsub = unsub
	p.wg.Add(1)
	go p.forward(sess, changes)
	p.manager.Broadcast(p.render(sess, ""))
}

func (p *Publisher) forward(sess *session.Session, changes <-chan state.Change) {
	defer p.wg.Done()
	for change := range changes {
		v := view.New(change.Snapshot, sess.StreamState(), sess.RosterStatus())
		p.manager.Broadcast(p.encode(Message{Type: MessageState, Cause: change.Cause, State: &v}))
	}
}

// StreamChanged re-sends the current view so consoles see connection state changes.
func (p *Publisher) StreamChanged(st stream.State) {
	p.mu.Lock()
	sess := p.current
	p.mu.Unlock()
	if sess == nil || sess.Closed() {
		return
	}
	p.logger.Debug("stream state changed", zap.Stringer("state", st))
	p.manager.Broadcast(p.render(sess, "STREAM_STATE"))
}

// Current returns the message a newly connected console starts from.
func (p *Publisher) Current() []byte {
	p.mu.Lock()
	sess := p.current
	p.mu.Unlock()
	if sess == nil {
		return p.encode(Message{Type: MessageLoggedOut})
	}
	return p.render(sess, "")
}

// Close detaches from the session and waits for the forwarder to exit.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.unsub != nil {
		p.unsub()
		p.unsub = nil
	}
	p.current = nil
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Publisher) render(sess *session.Session, cause string) []byte {
	v := view.FromSource(sess)
	return p.encode(Message{Type: MessageState, Cause: cause, State: &v})
}

func (p *Publisher) encode(msg Message) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("failed to encode console message", zap.Error(err))
		return []byte(`{"type":"error"}`)
	}
	return data
}
