package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"meeting-capture-service/internal/observability/logging"
	"meeting-capture-service/internal/observability/metrics"
	"meeting-capture-service/internal/protocol"
	"meeting-capture-service/internal/transport"
)

// ErrNotInitialized is returned by Start when Acquire has not succeeded yet.
var ErrNotInitialized = errors.New("capture engine not initialized")

// DefaultConnectTimeout bounds transport establishment during Start.
const DefaultConnectTimeout = 5 * time.Second

// Engine owns the microphone stream and the audio graph wiring the hardware
// input into the frame encoder. It is an explicit instance owned by the
// session controller, not process-wide state, so multiple isolated engines
// can coexist in one process.
//
// Lifecycle: Acquire → Start → Stop → Release. Stop and Release are
// idempotent and safe on a never-started engine.
type Engine struct {
	device  Device
	dialer  transport.Dialer
	cfg     DeviceConfig
	timeout time.Duration
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu       sync.Mutex
	stream   SampleStream
	conn     transport.Conn
	active   bool
	pumpStop context.CancelFunc
	pumpDone chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithConnectTimeout overrides the transport establishment bound.
func WithConnectTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithDeviceConfig overrides the capture constraints.
func WithDeviceConfig(cfg DeviceConfig) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// NewEngine creates a capture engine over the given device and transport
// dialer.
func NewEngine(device Device, dialer transport.Dialer, opts ...Option) *Engine {
	e := &Engine{
		device:  device,
		dialer:  dialer,
		cfg:     DefaultDeviceConfig(),
		timeout: DefaultConnectTimeout,
		metrics: metrics.DefaultMetrics,
		log:     logging.WithComponent("capture"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Acquire requests exclusive microphone access and builds the audio graph.
// Fails with ErrPermissionDenied or ErrDeviceUnavailable. Calling Acquire on
// an already-acquired engine is a no-op.
func (e *Engine) Acquire(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stream != nil {
		return nil
	}

	stream, err := e.device.Open(ctx, e.cfg)
	if err != nil {
		return err
	}
	e.stream = stream

	e.log.Info().
		Int("sampleRate", e.cfg.SampleRate).
		Msg("Microphone acquired")
	return nil
}

// Start establishes the streaming transport against endpoint and begins
// forwarding encoded frames to it. Requires a prior successful Acquire.
func (e *Engine) Start(ctx context.Context, endpoint string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stream == nil {
		return ErrNotInitialized
	}
	if e.active {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	conn, err := e.dialer.Dial(dialCtx, endpoint)
	if err != nil {
		return fmt.Errorf("establish transport: %w", err)
	}
	e.conn = conn

	pumpCtx, stop := context.WithCancel(context.Background())
	e.pumpStop = stop
	e.pumpDone = make(chan struct{})
	e.active = true

	go e.pump(pumpCtx, e.stream, conn)

	e.log.Info().Str("endpoint", endpoint).Msg("Recording started")
	return nil
}

// pump reads sample chunks off the stream and feeds the encoder. Encoded
// frames go out as opaque binary transport messages, no envelope.
func (e *Engine) pump(ctx context.Context, stream SampleStream, conn transport.Conn) {
	defer close(e.pumpDone)

	enc := NewEncoder(DefaultFrameSize, func(frame []byte) {
		if err := conn.Send(frame); err != nil {
			e.log.Warn().Err(err).Msg("Dropping audio frame, transport unavailable")
			return
		}
		e.metrics.RecordFrameSent(len(frame))
	})

	for {
		chunk, err := stream.Read(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				e.log.Error().Err(err).Msg("Sample stream read failed")
			}
			if enc.Pending() > 0 {
				// Tail samples short of a full frame are dropped.
				e.log.Debug().Int("samples", enc.Pending()).Msg("Dropping partial tail frame")
			}
			return
		}
		enc.Write(chunk)
	}
}

// Stop halts frame forwarding and closes the transport gracefully, sending a
// best-effort close notification first. The microphone stays acquired.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if !e.active {
		return
	}
	e.active = false

	e.pumpStop()
	<-e.pumpDone

	if err := e.conn.SendText(protocol.EncodeClose()); err != nil {
		e.log.Debug().Err(err).Msg("Close notification not delivered")
	}
	if err := e.conn.Close(); err != nil {
		e.log.Warn().Err(err).Msg("Transport close failed")
	}
	e.conn = nil

	e.log.Info().Msg("Recording stopped")
}

// Release stops any active recording, releases the microphone and disposes
// the audio graph.
func (e *Engine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()

	if e.stream != nil {
		if err := e.stream.Close(); err != nil {
			e.log.Warn().Err(err).Msg("Sample stream close failed")
		}
		e.stream = nil
		e.log.Info().Msg("Microphone released")
	}
}

// IsActive reports whether frames are being forwarded.
func (e *Engine) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}
