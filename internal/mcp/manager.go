package mcp

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of a Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DialFunc opens a fresh transport for one connection attempt.
type DialFunc func(ctx context.Context) (Transport, error)

// Manager owns at most one live session and hands it out on demand.
// Concurrent first calls to Acquire share a single connect; a failed
// connect leaves the manager Disconnected so the next Acquire retries.
// A session whose channel fails is dropped and the next Acquire dials
// again. Acquire after Release connects a fresh session.
type Manager struct {
	name   string
	dial   DialFunc
	logger *slog.Logger

	group singleflight.Group

	mu      sync.Mutex
	state   State
	client  *Client
	pending *attempt
	seq     uint64
}

// attempt is one in-flight connect. Its context is cancelled by Release
// or once every caller waiting on it has given up.
type attempt struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int

	// transport is set once dialed so Release can close it mid-handshake.
	transport Transport

	// Outcome, recorded when the attempt leaves m.pending.
	client *Client
	err    error
}

// NewManager creates a Manager in the Disconnected state.
func NewManager(name string, dial DialFunc, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		name:   name,
		dial:   dial,
		logger: logger.With("mcp_server", name),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLostLocked()
	return m.state
}

// dropLostLocked forgets a Connected session that is no longer alive.
// Such a session has already closed its transport. Caller must hold m.mu.
func (m *Manager) dropLostLocked() {
	if m.state != StateConnected || m.client.Alive() {
		return
	}
	m.logger.Warn("MCP session lost; next use reconnects")
	m.client = nil
	m.state = StateDisconnected
}

// Acquire returns the live, initialized session, connecting first if
// needed. ctx bounds this caller's wait. The connect itself runs until
// it finishes, Release cancels it, or every waiting caller gives up.
func (m *Manager) Acquire(ctx context.Context) (*Client, error) {
	m.mu.Lock()
	m.dropLostLocked()
	if m.state == StateConnected {
		c := m.client
		m.mu.Unlock()
		return c, nil
	}
	a := m.pending
	if a == nil {
		m.seq++
		actx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a = &attempt{key: strconv.FormatUint(m.seq, 10), ctx: actx, cancel: cancel}
		m.pending = a
		m.state = StateConnecting
	}
	a.waiters++
	m.mu.Unlock()

	ch := m.group.DoChan(a.key, func() (any, error) {
		return m.connect(a)
	})

	select {
	case <-ctx.Done():
		m.leave(a)
		return nil, ctx.Err()
	case res := <-ch:
		m.leave(a)
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Client), nil
	}
}

// leave drops one waiter from a. The last waiter out cancels the
// connect; if it is still pending the manager returns to Disconnected
// so the next Acquire starts a new attempt.
func (m *Manager) leave(a *attempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.waiters--
	if a.waiters > 0 {
		return
	}
	a.cancel()
	if m.pending == a {
		m.pending = nil
		m.state = StateDisconnected
	}
}

// connect runs inside the singleflight group for attempt a. A caller
// that reaches the group after a has settled gets the recorded outcome.
func (m *Manager) connect(a *attempt) (*Client, error) {
	m.mu.Lock()
	if m.pending != a {
		c, err := a.client, a.err
		m.mu.Unlock()
		if c == nil && err == nil {
			err = m.overtaken()
		}
		return c, err
	}
	m.mu.Unlock()

	m.logger.Info("connecting to MCP server")

	transport, err := m.dial(a.ctx)
	if err != nil {
		err = &ConnectionError{Server: m.name, Op: "open transport", Err: err}
		if !m.fail(a, err) {
			return nil, m.overtaken()
		}
		return nil, err
	}

	m.mu.Lock()
	if m.pending != a {
		m.mu.Unlock()
		_ = transport.Close()
		return nil, m.overtaken()
	}
	a.transport = transport
	m.mu.Unlock()

	client := NewClient(m.name, transport, m.logger)
	if err := client.Initialize(a.ctx); err != nil {
		_ = client.Shutdown()
		if !m.fail(a, err) {
			return nil, m.overtaken()
		}
		m.logger.Warn("MCP connect failed", "error", err)
		return nil, err
	}

	m.mu.Lock()
	if m.pending != a {
		m.mu.Unlock()
		_ = client.Shutdown()
		return nil, m.overtaken()
	}
	m.pending = nil
	a.client = client
	m.client = client
	m.state = StateConnected
	m.mu.Unlock()

	return client, nil
}

// fail clears a failed attempt and returns to Disconnected. It reports
// false when Release or the last waiter already cleared it.
func (m *Manager) fail(a *attempt, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != a {
		return false
	}
	a.err = err
	m.pending = nil
	m.state = StateDisconnected
	return true
}

func (m *Manager) overtaken() error {
	return &ConnectionError{Server: m.name, Op: "connect", Err: ErrSessionClosed}
}

// Release shuts down the live session, if any, and moves the manager
// to Closed. A connect still in flight is cancelled and its transport
// closed. Release is idempotent and safe to call concurrently with
// Acquire.
func (m *Manager) Release() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	m.state = StateClosed
	client := m.client
	m.client = nil
	a := m.pending
	m.pending = nil
	var inflight Transport
	if a != nil {
		inflight = a.transport
	}
	m.mu.Unlock()

	if a != nil {
		a.cancel()
		if inflight != nil {
			m.logger.Info("closing MCP transport of interrupted connect")
			_ = inflight.Close()
		}
	}
	if client == nil {
		return nil
	}
	m.logger.Info("releasing MCP session")
	return client.Shutdown()
}
