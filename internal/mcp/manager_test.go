package mcp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingDialer hands out initialized mock transports and counts dials.
type countingDialer struct {
	dials atomic.Int32
	err   error
	gate  chan struct{} // when non-nil, dials block until closed

	mu         sync.Mutex
	transports []*mockTransport
}

func (d *countingDialer) dial(ctx context.Context) (Transport, error) {
	d.dials.Add(1)
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	mt := newInitializedMock()
	d.mu.Lock()
	d.transports = append(d.transports, mt)
	d.mu.Unlock()
	return mt, nil
}

func TestManager_AcquireConnectsOnce(t *testing.T) {
	d := &countingDialer{gate: make(chan struct{})}
	m := NewManager("test", d.dial, nil)

	const callers = 10
	clients := make([]*Client, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := m.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			clients[i] = c
		}(i)
	}

	// Let every caller join the in-flight connect before it completes.
	time.Sleep(20 * time.Millisecond)
	close(d.gate)
	wg.Wait()

	if n := d.dials.Load(); n != 1 {
		t.Errorf("dialed %d times, want 1", n)
	}
	for i, c := range clients {
		if c != clients[0] {
			t.Errorf("caller %d got a different session", i)
		}
	}
	if n := d.transports[0].count("initialize"); n != 1 {
		t.Errorf("handshake ran %d times, want 1", n)
	}
	if m.State() != StateConnected {
		t.Errorf("state = %s, want connected", m.State())
	}
}

func TestManager_AcquireReusesSession(t *testing.T) {
	d := &countingDialer{}
	m := NewManager("test", d.dial, nil)

	first, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	second, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if first != second {
		t.Error("second Acquire returned a new session")
	}
	if n := d.dials.Load(); n != 1 {
		t.Errorf("dialed %d times, want 1", n)
	}
}

func TestManager_FailedConnectRetries(t *testing.T) {
	d := &countingDialer{err: errors.New("docker not found")}
	m := NewManager("test", d.dial, nil)

	_, err := m.Acquire(context.Background())
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("err = %v, want *ConnectionError", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", m.State())
	}

	d.err = nil
	if _, err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("retry Acquire: %v", err)
	}
	if n := d.dials.Load(); n != 2 {
		t.Errorf("dialed %d times, want 2", n)
	}
}

func TestManager_HandshakeFailureShutsTransport(t *testing.T) {
	mt := newMockTransport()
	mt.addError("initialize", -32600, "unsupported protocol")
	m := NewManager("test", func(context.Context) (Transport, error) { return mt, nil }, nil)

	if _, err := m.Acquire(context.Background()); err == nil {
		t.Fatal("expected error from failed handshake")
	}
	if !mt.closed {
		t.Error("transport left open after failed handshake")
	}
	if m.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", m.State())
	}
}

func TestManager_Release(t *testing.T) {
	d := &countingDialer{}
	m := NewManager("test", d.dial, nil)

	if _, err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := m.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := m.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	if !d.transports[0].closed {
		t.Error("transport not closed on release")
	}
	if m.State() != StateClosed {
		t.Errorf("state = %s, want closed", m.State())
	}

}

func TestManager_AcquireAfterReleaseReconnects(t *testing.T) {
	d := &countingDialer{}
	m := NewManager("test", d.dial, nil)

	first, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := m.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	second, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after Release: %v", err)
	}
	if second == first {
		t.Error("Acquire after Release returned the released session")
	}
	if n := d.dials.Load(); n != 2 {
		t.Errorf("dialed %d times, want 2", n)
	}
	if n := d.transports[1].count("initialize"); n != 1 {
		t.Errorf("new session handshake ran %d times, want 1", n)
	}
	if m.State() != StateConnected {
		t.Errorf("state = %s, want connected", m.State())
	}
	if err := m.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestManager_ReleaseWithoutConnect(t *testing.T) {
	d := &countingDialer{}
	m := NewManager("test", d.dial, nil)
	if err := m.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if d.dials.Load() != 0 {
		t.Error("Release dialed")
	}
}

func TestManager_ReleaseDuringConnect(t *testing.T) {
	d := &countingDialer{gate: make(chan struct{})}
	m := NewManager("test", d.dial, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Acquire(context.Background())
		errCh <- err
	}()

	// Wait for the connect to be in flight.
	for d.dials.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	if err := m.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	close(d.gate)

	if err := <-errCh; !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Acquire = %v, want ErrSessionClosed", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, mt := range d.transports {
		if !mt.closed {
			t.Errorf("transport %d opened after Release was not shut down", i)
		}
	}
	if m.State() != StateClosed {
		t.Errorf("state = %s, want closed", m.State())
	}
}

// hangingTransport never answers: Send blocks until its context ends
// or the transport is closed.
type hangingTransport struct {
	entered   chan struct{}
	enterOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32
}

func newHangingTransport() *hangingTransport {
	return &hangingTransport{entered: make(chan struct{}), done: make(chan struct{})}
}

func (h *hangingTransport) Send(ctx context.Context, _ *Request) (*Response, error) {
	h.enterOnce.Do(func() { close(h.entered) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return nil, ErrSessionClosed
	}
}

func (h *hangingTransport) Notify(context.Context, *Notification) error { return nil }

func (h *hangingTransport) Close() error {
	h.closes.Add(1)
	h.closeOnce.Do(func() { close(h.done) })
	return nil
}

// waitClosed polls until ht has been closed at least once.
func waitClosed(t *testing.T, ht *hangingTransport) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for ht.closes.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("transport of an abandoned handshake was never closed")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestManager_AbandonedHandshakeIsRetried(t *testing.T) {
	var mu sync.Mutex
	var transports []*hangingTransport
	m := NewManager("test", func(context.Context) (Transport, error) {
		ht := newHangingTransport()
		mu.Lock()
		transports = append(transports, ht)
		mu.Unlock()
		return ht, nil
	}, nil)
	defer m.Release()

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_, err := m.Acquire(ctx)
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Acquire %d = %v, want context.DeadlineExceeded", i, err)
		}
		if m.State() != StateDisconnected {
			t.Errorf("after Acquire %d state = %s, want disconnected", i, m.State())
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transports) != 2 {
		t.Fatalf("dialed %d times, want 2", len(transports))
	}
	for _, ht := range transports {
		waitClosed(t, ht)
	}
}

func TestManager_ReleaseClosesHungHandshake(t *testing.T) {
	ht := newHangingTransport()
	m := NewManager("test", func(context.Context) (Transport, error) { return ht, nil }, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Acquire(context.Background())
		errCh <- err
	}()

	select {
	case <-ht.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("handshake never started")
	}
	if m.State() != StateConnecting {
		t.Errorf("state = %s, want connecting", m.State())
	}

	if err := m.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ht.closes.Load() == 0 {
		t.Error("Release returned without closing the handshaking transport")
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrSessionClosed) {
			t.Errorf("Acquire = %v, want ErrSessionClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire still blocked after Release")
	}
	if m.State() != StateClosed {
		t.Errorf("state = %s, want closed", m.State())
	}
}

func TestManager_ReconnectsAfterLostSession(t *testing.T) {
	d := &countingDialer{}
	m := NewManager("test", d.dial, nil)
	defer m.Release()

	first, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	d.transports[0].sendErr["tools/call"] = errors.New("broken pipe")

	if result := first.CallTool(context.Background(), "get_me", nil); !result.IsError {
		t.Fatal("expected error result from broken transport")
	}
	if first.Alive() {
		t.Error("session still alive after transport failure")
	}
	if !d.transports[0].closed {
		t.Error("failed transport not closed")
	}
	if m.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", m.State())
	}

	second, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after failure: %v", err)
	}
	if second == first {
		t.Error("Acquire handed out the lost session")
	}
	if n := d.dials.Load(); n != 2 {
		t.Errorf("dialed %d times, want 2", n)
	}
	if n := d.transports[1].count("initialize"); n != 1 {
		t.Errorf("new session handshake ran %d times, want 1", n)
	}
}

func TestManager_AcquireRespectsContext(t *testing.T) {
	d := &countingDialer{gate: make(chan struct{})}
	defer close(d.gate)
	m := NewManager("test", d.dial, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := m.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire = %v, want context.DeadlineExceeded", err)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateClosed:       "closed",
		State(42):         "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
