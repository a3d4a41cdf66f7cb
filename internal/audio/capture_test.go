package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"meeting-capture-service/internal/transport"
)

// fakeStream feeds queued chunks, then blocks until closed.
type fakeStream struct {
	mu     sync.Mutex
	chunks [][]float32
	closed bool
	wake   chan struct{}
}

func newFakeStream(chunks ...[]float32) *fakeStream {
	return &fakeStream{chunks: chunks, wake: make(chan struct{}, 1)}
}

func (s *fakeStream) Read(ctx context.Context) ([]float32, error) {
	for {
		s.mu.Lock()
		if len(s.chunks) > 0 {
			chunk := s.chunks[0]
			s.chunks = s.chunks[1:]
			s.mu.Unlock()
			return chunk, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, io.EOF
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.wake:
		}
	}
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// fakeDevice returns a configured stream or error.
type fakeDevice struct {
	stream *fakeStream
	err    error
	opens  int
}

func (d *fakeDevice) Open(ctx context.Context, cfg DeviceConfig) (SampleStream, error) {
	d.opens++
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

// fakeConn records sent frames.
type fakeConn struct {
	mu     sync.Mutex
	binary [][]byte
	text   [][]byte
	closed bool
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.binary = append(c.binary, data)
	return nil
}

func (c *fakeConn) SendText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = append(c.text, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) binaryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.binary)
}

type fakeDialer struct {
	conn *fakeConn
	err  error
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (transport.Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func TestEngine_Acquire_PermissionDenied(t *testing.T) {
	dev := &fakeDevice{err: ErrPermissionDenied}
	e := NewEngine(dev, &fakeDialer{conn: &fakeConn{}})

	if err := e.Acquire(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestEngine_Acquire_DeviceUnavailable(t *testing.T) {
	dev := &fakeDevice{err: ErrDeviceUnavailable}
	e := NewEngine(dev, &fakeDialer{conn: &fakeConn{}})

	if err := e.Acquire(context.Background()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestEngine_Acquire_Idempotent(t *testing.T) {
	dev := &fakeDevice{stream: newFakeStream()}
	e := NewEngine(dev, &fakeDialer{conn: &fakeConn{}})

	if err := e.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if err := e.Acquire(context.Background()); err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}
	if dev.opens != 1 {
		t.Errorf("expected device opened once, got %d", dev.opens)
	}
}

func TestEngine_Start_WithoutAcquire(t *testing.T) {
	e := NewEngine(&fakeDevice{stream: newFakeStream()}, &fakeDialer{conn: &fakeConn{}})

	if err := e.Start(context.Background(), "/ws-proxy/sess-1"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestEngine_Start_TransportFailure(t *testing.T) {
	e := NewEngine(
		&fakeDevice{stream: newFakeStream()},
		&fakeDialer{err: transport.ErrConnectTimeout},
	)

	if err := e.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	err := e.Start(context.Background(), "/ws-proxy/sess-1")
	if !errors.Is(err, transport.ErrConnectTimeout) {
		t.Errorf("expected wrapped ErrConnectTimeout, got %v", err)
	}
	if e.IsActive() {
		t.Error("engine must not be active after failed start")
	}
}

func TestEngine_ForwardsEncodedFrames(t *testing.T) {
	// Two full frames of audio plus a partial tail.
	samples := make([]float32, DefaultFrameSize*2+100)
	stream := newFakeStream(samples)
	conn := &fakeConn{}
	e := NewEngine(&fakeDevice{stream: stream}, &fakeDialer{conn: conn})

	if err := e.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := e.Start(context.Background(), "/ws-proxy/sess-1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !e.IsActive() {
		t.Error("expected engine active")
	}

	deadline := time.After(2 * time.Second)
	for conn.binaryCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected 2 frames, got %d", conn.binaryCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	e.Stop()

	if conn.binaryCount() != 2 {
		t.Errorf("partial tail must be dropped: expected 2 frames, got %d", conn.binaryCount())
	}
	if len(conn.binary[0]) != DefaultFrameSize*2 {
		t.Errorf("expected %d-byte frames, got %d", DefaultFrameSize*2, len(conn.binary[0]))
	}
}

func TestEngine_Stop_SendsCloseNotification(t *testing.T) {
	conn := &fakeConn{}
	e := NewEngine(&fakeDevice{stream: newFakeStream()}, &fakeDialer{conn: conn})

	e.Acquire(context.Background())
	e.Start(context.Background(), "/ws-proxy/sess-1")
	e.Stop()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.text) != 1 {
		t.Fatalf("expected one close notification, got %d text frames", len(conn.text))
	}
	if string(conn.text[0]) != `{"type":"close"}` {
		t.Errorf("unexpected close frame: %s", conn.text[0])
	}
	if !conn.closed {
		t.Error("expected transport closed")
	}
}

func TestEngine_StopAndRelease_NeverStarted(t *testing.T) {
	e := NewEngine(&fakeDevice{stream: newFakeStream()}, &fakeDialer{conn: &fakeConn{}})

	// Must not panic or error on a never-started engine.
	e.Stop()
	e.Release()
	e.Stop()
	e.Release()

	if e.IsActive() {
		t.Error("expected inactive engine")
	}
}

func TestEngine_Release_KeepsStopSemantics(t *testing.T) {
	stream := newFakeStream()
	conn := &fakeConn{}
	e := NewEngine(&fakeDevice{stream: stream}, &fakeDialer{conn: conn})

	e.Acquire(context.Background())
	e.Start(context.Background(), "/ws-proxy/sess-1")

	e.Release()

	if e.IsActive() {
		t.Error("expected inactive after release")
	}
	stream.mu.Lock()
	closed := stream.closed
	stream.mu.Unlock()
	if !closed {
		t.Error("expected sample stream closed on release")
	}

	// A fresh acquire must work after release.
	if err := e.Acquire(context.Background()); err != nil {
		t.Errorf("re-acquire after release failed: %v", err)
	}
}

func TestEngine_StopWhilePumpBlockedOnRead(t *testing.T) {
	// A silent pipe keeps the pump parked in the device read; Stop must
	// still return promptly and leave the engine inactive.
	pr, pw := io.Pipe()
	defer pw.Close()

	e := NewEngine(NewPipeDevice(pr), &fakeDialer{conn: &fakeConn{}})
	if err := e.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := e.Start(context.Background(), "/ws-proxy/sess-1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Give the pump time to park mid-read on the empty pipe.
	time.Sleep(50 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked behind the device read")
	}
	if e.IsActive() {
		t.Error("expected inactive engine after stop")
	}
	e.Release()
}

func TestEngine_Stop_KeepsMicrophone(t *testing.T) {
	stream := newFakeStream()
	e := NewEngine(&fakeDevice{stream: stream}, &fakeDialer{conn: &fakeConn{}})

	e.Acquire(context.Background())
	e.Start(context.Background(), "/ws-proxy/sess-1")
	e.Stop()

	stream.mu.Lock()
	closed := stream.closed
	stream.mu.Unlock()
	if closed {
		t.Error("stop must not release the microphone")
	}

	// Start again without re-acquiring.
	if err := e.Start(context.Background(), "/ws-proxy/sess-2"); err != nil {
		t.Errorf("restart after stop failed: %v", err)
	}
	e.Release()
}
