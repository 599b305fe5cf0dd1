package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/alejoacosta74/paradex-api/internal/backoff"
	"github.com/alejoacosta74/paradex-api/internal/config"
	"github.com/alejoacosta74/paradex-api/internal/events"
	"github.com/alejoacosta74/paradex-api/pkg/paradex"
)

// TokenSource supplies a valid bearer token for private-channel
// authorization. Implemented by the auth session.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// authAckTimeout bounds the wait for the server's auth acknowledgement.
const authAckTimeout = 10 * time.Second

// command asks the run loop to flush a registry change to the server.
// Commands coalesce per key: a subscribe followed by an unsubscribe for the
// same key leaves only the unsubscribe pending.
type command struct {
	subscribe bool
	key       Key
}

// Manager owns one streaming socket at a time and drives the
// connect/authenticate/subscribe/reconnect state machine. All connection
// state lives in the run loop goroutine; callers interact through
// Subscribe/Unsubscribe (which update the registry immediately and never
// block on the network) and observe health through State.
type Manager struct {
	cfg      config.Config
	url      string
	tokens   TokenSource
	registry *Registry
	bus      events.Bus
	policy   backoff.Policy
	dialer   *websocket.Dialer
	logger   *logrus.Entry

	pendingMu sync.Mutex
	pending   map[string]command
	wake      chan struct{}

	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	doneOnce sync.Once
	done     chan struct{}

	stateMu sync.RWMutex
	state   State
	termErr error
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithURL overrides the websocket endpoint (tests dial a local server).
func WithURL(url string) ManagerOption {
	return func(m *Manager) {
		m.url = url
	}
}

// NewManager builds a manager for the configured environment's websocket
// endpoint.
func NewManager(cfg config.Config, tokens TokenSource, registry *Registry, bus events.Bus, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:      cfg,
		url:      cfg.Environment.WSURL(),
		tokens:   tokens,
		registry: registry,
		bus:      bus,
		policy:   backoff.Policy{Initial: cfg.BackoffInitial, Cap: cfg.BackoffCap},
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:   logrus.WithField("component", "conn_manager"),
		pending:  make(map[string]command),
		wake:     make(chan struct{}, 1),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		state:    Disconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the connection loop. It returns immediately; health is
// observable through State and Err. Subsequent calls are no-ops.
func (m *Manager) Start(ctx context.Context) {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	go m.run(ctx)
}

// Stop transitions the manager to Closed, cancels the read loop, closes the
// socket and releases all subscription resources. Terminal: the manager
// cannot be restarted. Safe to call on a manager that was never started.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	if !m.started.Load() {
		m.finish()
	}
	<-m.done
	m.registry.Close()
}

// Done is closed when the run loop has fully exited.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// Err returns the terminal error, if the manager closed because of one
// (e.g. repeated auth rejections). Nil after a clean Stop.
func (m *Manager) Err() error {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.termErr
}

// Subscribe registers a callback for (channel, market). The registry is
// updated immediately so the caller never blocks on connection state; the
// subscribe request is sent now if Connected, otherwise flushed
// automatically when the next Connected state is reached.
func (m *Manager) Subscribe(channel paradex.Channel, market string, cb Callback) error {
	if m.isStopped() {
		return ErrClosed
	}
	m.registry.Add(channel, market, cb)
	m.enqueue(command{subscribe: true, key: Key{Channel: channel, Market: market}})
	return nil
}

// Unsubscribe removes the subscription for (channel, market). Frames that
// race the removal are dropped without error.
func (m *Manager) Unsubscribe(channel paradex.Channel, market string) error {
	if m.isStopped() {
		return ErrClosed
	}
	if m.registry.Remove(channel, market) {
		m.enqueue(command{subscribe: false, key: Key{Channel: channel, Market: market}})
	}
	return nil
}

func (m *Manager) isStopped() bool {
	select {
	case <-m.stopChan:
		return true
	default:
		return false
	}
}

// enqueue records a pending registry change and nudges the run loop. It
// never blocks, whatever the connection state: commands coalesce per key in
// the pending set, and the run loop drains the whole set whenever it holds
// a live connection.
func (m *Manager) enqueue(cmd command) {
	m.pendingMu.Lock()
	m.pending[cmd.key.Name()] = cmd
	m.pendingMu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// takePending removes and returns the pending command set.
func (m *Manager) takePending() map[string]command {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	if len(m.pending) == 0 {
		return nil
	}
	out := m.pending
	m.pending = make(map[string]command)
	return out
}

// flushPending writes the pending subscribe/unsubscribe frames for one
// connection. Subscribes already covered by the replay are skipped, as are
// unsubscribes for keys never sent on this connection. If the write fails
// the connection dies and the registry replay on the next connection makes
// the server state consistent again.
func (m *Manager) flushPending(w *writer, sent map[string]struct{}) error {
	for name, cmd := range m.takePending() {
		if cmd.subscribe {
			if _, ok := sent[name]; ok {
				continue
			}
			if err := w.writeJSON(subscribeFrame(cmd.key)); err != nil {
				return err
			}
			sent[name] = struct{}{}
			m.logger.Debugf("Subscribed to %s", name)
		} else {
			if _, ok := sent[name]; !ok {
				continue
			}
			delete(sent, name)
			if err := w.writeJSON(unsubscribeFrame(cmd.key)); err != nil {
				return err
			}
			m.logger.Debugf("Unsubscribed from %s", name)
		}
	}
	return nil
}

// run is the connection loop: dial, serve until the connection dies, back
// off, repeat. Transport errors retry forever; consecutive auth rejections
// are capped and become a terminal error.
func (m *Manager) run(ctx context.Context) {
	defer m.finish()

	dialAttempt := 0
	authRejects := 0

	for {
		select {
		case <-ctx.Done():
			m.setState(Closed)
			return
		case <-m.stopChan:
			m.setState(Closed)
			return
		default:
		}

		m.setState(Connecting)
		ws, _, err := m.dialer.DialContext(ctx, m.url, nil)
		if err != nil {
			m.logger.Warnf("Dial failed: %v", err)
			m.setState(Reconnecting)
			m.bus.Publish(events.TopicReconnect, events.Reconnect{Attempt: dialAttempt})
			if !m.waitBackoff(ctx, dialAttempt) {
				m.setState(Closed)
				return
			}
			dialAttempt++
			continue
		}
		dialAttempt = 0

		err = m.serve(ctx, ws)
		switch {
		case err == nil, errors.Is(err, ErrClosed), ctx.Err() != nil:
			m.setState(Closed)
			return
		case errors.Is(err, ErrAuthRejected):
			authRejects++
			m.logger.Errorf("Authentication rejected (%d/%d): %v", authRejects, m.cfg.AuthRejectMax, err)
			m.bus.Publish(events.TopicAuthRejected, events.AuthRejected{Rejections: authRejects, Reason: err.Error()})
			if authRejects >= m.cfg.AuthRejectMax {
				m.fail(err)
				return
			}
		default:
			m.logger.Warnf("Connection lost: %v", err)
			authRejects = 0
		}

		m.setState(Reconnecting)
		m.bus.Publish(events.TopicReconnect, events.Reconnect{Attempt: dialAttempt})
		if !m.waitBackoff(ctx, dialAttempt) {
			m.setState(Closed)
			return
		}
		dialAttempt++
	}
}

// serve drives one established connection: authenticate if any private
// subscriptions exist, replay the registry snapshot, then pump frames and
// commands until the connection dies or the manager stops.
func (m *Manager) serve(ctx context.Context, ws *websocket.Conn) error {
	w := newWriter(ws, m.cfg.WriteTimeout)
	defer w.close()

	msgChan := make(chan []byte, 256)
	errChan := make(chan error, 1)
	readerDone := make(chan struct{})
	defer close(readerDone)

	r := newReader(ws, msgChan, errChan, m.cfg.PingInterval+m.cfg.PongTimeout)
	go r.run(readerDone)

	m.setState(Authenticating)
	if m.registry.HasPrivate() {
		token, err := m.tokens.Token(ctx)
		if err != nil {
			// Endpoint-side auth failure: retriable, unlike an explicit
			// server rejection of the token below.
			return fmt.Errorf("acquiring session token: %w", err)
		}
		if err := m.authenticate(ctx, w, token, msgChan, errChan); err != nil {
			return err
		}
	}

	m.setState(Connected)

	// Replay the registry snapshot atomically, in original subscribe
	// order, before any queued caller command is processed. Channels with
	// snapshot-before-delta semantics rely on this ordering.
	sent := make(map[string]struct{})
	for _, key := range m.registry.Snapshot() {
		if err := w.writeJSON(subscribeFrame(key)); err != nil {
			return err
		}
		sent[key.Name()] = struct{}{}
		m.logger.Debugf("Subscribed to %s", key.Name())
	}

	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stopChan:
			return ErrClosed
		case err := <-errChan:
			return &TransportError{Err: err}
		case <-ticker.C:
			if err := w.ping(); err != nil {
				return err
			}
		case msg := <-msgChan:
			m.route(msg)
		case <-m.wake:
			if err := m.flushPending(w, sent); err != nil {
				return err
			}
		}
	}
}

// authenticate sends the bearer token as the first frame and waits for the
// server's acknowledgement. An error ack means the server rejected the
// token; that is surfaced as ErrAuthRejected, distinct from transport
// failures, so callers can react to a bad credential.
func (m *Manager) authenticate(ctx context.Context, w *writer, token string, msgChan <-chan []byte, errChan <-chan error) error {
	authID := uuid.NewString()
	frame := paradex.Request{
		ID:      authID,
		JSONRPC: "2.0",
		Method:  paradex.MethodAuth,
		Params:  paradex.RequestParams{Bearer: token},
	}
	if err := w.writeJSON(frame); err != nil {
		return err
	}

	timeout := time.NewTimer(authAckTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stopChan:
			return ErrClosed
		case err := <-errChan:
			return &TransportError{Err: err}
		case <-timeout.C:
			return &TransportError{Err: errors.New("timed out waiting for auth ack")}
		case msg := <-msgChan:
			var resp paradex.Response
			if err := json.Unmarshal(msg, &resp); err != nil {
				continue
			}
			if resp.ID != authID {
				m.route(msg)
				continue
			}
			if resp.Error != nil {
				return fmt.Errorf("%w: %s", ErrAuthRejected, resp.Error.Message)
			}
			m.logger.Debug("Authentication acknowledged")
			return nil
		}
	}
}

// route delivers one inbound frame. Data frames go to the matching
// subscription's queue; frames for unknown keys are dropped without error
// since they can race an unsubscribe.
func (m *Manager) route(msg []byte) {
	var resp paradex.Response
	if err := json.Unmarshal(msg, &resp); err != nil {
		m.logger.Debugf("Unparseable frame: %s", string(msg))
		return
	}

	switch {
	case resp.IsData():
		delivered, found := m.registry.Dispatch(resp.Params.Channel, resp.Params.Data)
		switch {
		case !found:
			m.logger.Debugf("No subscription for channel %s", resp.Params.Channel)
		case !delivered:
			m.logger.Warnf("Dispatch queue full, dropping frame for %s", resp.Params.Channel)
			m.bus.Publish(events.TopicDrop, events.Drop{Channel: resp.Params.Channel})
		default:
			m.bus.Publish(events.TopicFrame, events.Frame{Channel: resp.Params.Channel})
		}
	case resp.Error != nil:
		m.logger.Warnf("Server error frame: %d %s", resp.Error.Code, resp.Error.Message)
	case resp.IsAck():
		m.logger.Debugf("Ack for request %s", resp.ID)
	default:
		m.logger.Debugf("Unhandled frame: %s", string(msg))
	}
}

func (m *Manager) waitBackoff(ctx context.Context, attempt int) bool {
	delay := m.policy.Duration(attempt)
	m.logger.Debugf("Reconnecting in %s", delay)
	select {
	case <-ctx.Done():
		return false
	case <-m.stopChan:
		return false
	case <-time.After(delay):
		return true
	}
}

func (m *Manager) setState(s State) {
	m.stateMu.Lock()
	prev := m.state
	m.state = s
	m.stateMu.Unlock()

	if prev == s {
		return
	}
	m.logger.Infof("Connection state: %s -> %s", prev, s)
	m.bus.Publish(events.TopicStateChange, events.StateChange{From: prev.String(), To: s.String()})
}

func (m *Manager) finish() {
	m.doneOnce.Do(func() {
		close(m.done)
	})
}

// fail records a terminal error and closes the manager.
func (m *Manager) fail(err error) {
	m.stateMu.Lock()
	m.termErr = err
	m.stateMu.Unlock()
	m.setState(Closed)
}

func subscribeFrame(key Key) paradex.Request {
	return paradex.Request{
		ID:      uuid.NewString(),
		JSONRPC: "2.0",
		Method:  paradex.MethodSubscribe,
		Params:  paradex.RequestParams{Channel: key.Name()},
	}
}

func unsubscribeFrame(key Key) paradex.Request {
	return paradex.Request{
		ID:      uuid.NewString(),
		JSONRPC: "2.0",
		Method:  paradex.MethodUnsubscribe,
		Params:  paradex.RequestParams{Channel: key.Name()},
	}
}
