// Package session coordinates the recording lifecycle: microphone capture,
// the streaming transport, transcript assembly and post-recording speaker
// labeling.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"meeting-capture-service/internal/diarize"
	"meeting-capture-service/internal/events"
	"meeting-capture-service/internal/observability/logging"
	"meeting-capture-service/internal/observability/metrics"
	"meeting-capture-service/internal/protocol"
	"meeting-capture-service/internal/provider"
	"meeting-capture-service/internal/transcript"
)

// ErrNothingToGenerate is returned by GenerateDocument when there is no
// finished recording with transcript content to render.
var ErrNothingToGenerate = errors.New("nothing to generate")

// State is the controller's lifecycle phase.
type State int

const (
	// StateIdle means no recording is in progress or pending.
	StateIdle State = iota
	// StateRecording means audio is being captured and streamed.
	StateRecording
	// StateProcessing means capture has stopped and the transcript awaits
	// document generation.
	StateProcessing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// SessionProvider provisions upstream transcription sessions.
type SessionProvider interface {
	CreateSession(ctx context.Context) (*provider.Session, error)
}

// CaptureEngine is the microphone/transport surface the controller drives.
// Satisfied by audio.Engine.
type CaptureEngine interface {
	Acquire(ctx context.Context) error
	Start(ctx context.Context, endpoint string) error
	Stop()
	Release()
}

// Renderer turns a finished transcript into a document and returns an opaque
// handle to it.
type Renderer interface {
	Render(ctx context.Context, sessionID string, segments []transcript.Segment) (string, error)
}

// Config wires the controller's collaborators.
type Config struct {
	Provider SessionProvider
	Engine   CaptureEngine
	Diarizer diarize.Diarizer
	Renderer Renderer

	// Publisher, when set, mirrors transcript events onto Kafka. Optional.
	Publisher *events.Publisher
	// EndpointFor maps a provisioned session to the websocket endpoint the
	// capture engine streams to. Defaults to the session's own URL; a capture
	// client behind the relay points this at its session-scoped relay path.
	EndpointFor func(sess *provider.Session) string

	// DiarizeTimeout bounds the async speaker-labeling pass; zero means 60 s.
	DiarizeTimeout time.Duration
	// OnFailure receives exactly one notification per fatal capture or
	// transport failure. Optional.
	OnFailure func(err error)
	// OnTick receives the elapsed recording duration once per second while
	// recording. Optional.
	OnTick func(seconds int)
}

// Controller owns one recording session at a time. Stopping a recording moves
// it to processing, where speaker labels land asynchronously and a document
// can be generated; Reset discards everything and returns to idle.
type Controller struct {
	cfg     Config
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu          sync.Mutex
	state       State
	starting    bool
	sessionID   string
	assembler   *transcript.Assembler
	durationSec int
	startedAt   time.Time
	tickStop    context.CancelFunc
}

// New creates an idle controller.
func New(cfg Config) *Controller {
	if cfg.DiarizeTimeout <= 0 {
		cfg.DiarizeTimeout = 60 * time.Second
	}
	if cfg.Diarizer == nil {
		cfg.Diarizer = diarize.Noop{}
	}
	return &Controller{
		cfg:     cfg,
		metrics: metrics.DefaultMetrics,
		log:     logging.WithComponent("session"),
	}
}

// Start begins a new recording. A Start while already recording, or while
// another Start is still in flight, is a no-op; starting from processing
// discards the previous transcript. Any failure leaves the controller idle
// and retryable.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateRecording || c.starting {
		c.mu.Unlock()
		return nil
	}
	c.starting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	sess, err := c.cfg.Provider.CreateSession(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("Session creation failed")
		return err
	}

	if err := c.cfg.Engine.Acquire(ctx); err != nil {
		c.log.Error().Err(err).Msg("Microphone acquisition failed")
		return err
	}

	var opts []transcript.Option
	if c.cfg.Publisher != nil {
		opts = append(opts, transcript.WithPublisher(c.cfg.Publisher))
	}

	// The assembler and session identity go in before capture starts, so
	// provider events racing the capture handshake are never dropped.
	c.mu.Lock()
	c.sessionID = sess.SessionID
	c.assembler = transcript.New(sess.SessionID, opts...)
	c.durationSec = 0
	c.startedAt = time.Now()
	c.state = StateRecording

	tickCtx, cancel := context.WithCancel(context.Background())
	c.tickStop = cancel
	go c.tick(tickCtx)
	c.mu.Unlock()

	endpoint := sess.URL
	if c.cfg.EndpointFor != nil {
		endpoint = c.cfg.EndpointFor(sess)
	}
	if err := c.cfg.Engine.Start(ctx, endpoint); err != nil {
		c.log.Error().Err(err).Msg("Capture start failed")
		c.mu.Lock()
		c.stopTickerLocked()
		c.state = StateIdle
		c.sessionID = ""
		c.assembler = nil
		c.durationSec = 0
		c.mu.Unlock()
		return err
	}

	c.metrics.RecordSessionStart()
	c.log.Info().Str("sessionId", sess.SessionID).Msg("Recording session started")
	return nil
}

// tick advances the duration counter once per second while recording.
func (c *Controller) tick(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.state != StateRecording {
				c.mu.Unlock()
				return
			}
			c.durationSec++
			seconds := c.durationSec
			c.mu.Unlock()
			if c.cfg.OnTick != nil {
				c.cfg.OnTick(seconds)
			}
		}
	}
}

// Stop ends the recording and moves to processing. A Stop while not recording
// is a no-op. Speaker labeling runs asynchronously; its results apply to the
// transcript as long as this session is not reset.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	c.state = StateProcessing
	c.stopTickerLocked()
	sessionID := c.sessionID
	asm := c.assembler
	elapsed := time.Since(c.startedAt)
	c.mu.Unlock()

	c.cfg.Engine.Stop()
	c.metrics.RecordSessionEnd(elapsed.Seconds())
	c.log.Info().
		Str("sessionId", sessionID).
		Dur("duration", elapsed).
		Msg("Recording stopped, processing")

	go c.labelSpeakers(sessionID, asm)
}

// labelSpeakers runs the diarizer over the captured transcript and applies
// its assignments. Results for a superseded session are discarded.
func (c *Controller) labelSpeakers(sessionID string, asm *transcript.Assembler) {
	turns := turnsFromSnapshot(asm.Snapshot())
	if len(turns) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DiarizeTimeout)
	defer cancel()

	assignments, err := c.cfg.Diarizer.Diarize(ctx, turns)
	if err != nil {
		c.log.Warn().Err(err).Str("sessionId", sessionID).Msg("Speaker labeling failed")
		return
	}

	c.mu.Lock()
	stale := c.sessionID != sessionID
	c.mu.Unlock()
	if stale {
		c.log.Debug().Str("sessionId", sessionID).Msg("Discarding stale speaker labels")
		return
	}

	for _, a := range assignments {
		asm.ApplySpeaker(a.ID, a.Speaker)
	}
	c.log.Info().
		Str("sessionId", sessionID).
		Int("labeled", len(assignments)).
		Msg("Speaker labels applied")
}

func turnsFromSnapshot(segments []transcript.Segment) []diarize.Turn {
	turns := make([]diarize.Turn, 0, len(segments))
	for _, s := range segments {
		if s.Text == "" {
			continue
		}
		turns = append(turns, diarize.Turn{ID: s.ID, Text: s.Text, Start: s.Start, End: s.End})
	}
	return turns
}

// GenerateDocument renders the finished transcript and returns the renderer's
// handle. Requires a stopped recording with content.
func (c *Controller) GenerateDocument(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.state != StateProcessing || c.assembler == nil {
		c.mu.Unlock()
		return "", ErrNothingToGenerate
	}
	sessionID := c.sessionID
	snapshot := c.assembler.Snapshot()
	c.mu.Unlock()

	if len(snapshot) == 0 {
		return "", ErrNothingToGenerate
	}

	handle, err := c.cfg.Renderer.Render(ctx, sessionID, snapshot)
	if err != nil {
		c.log.Error().Err(err).Str("sessionId", sessionID).Msg("Document rendering failed")
		return "", err
	}

	c.log.Info().Str("sessionId", sessionID).Str("document", handle).Msg("Document generated")
	return handle, nil
}

// Reset discards the transcript and returns to idle. Speaker labels arriving
// after a Reset are dropped as stale.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.stopTickerLocked()
	wasRecording := c.state == StateRecording
	asm := c.assembler
	c.assembler = nil
	c.sessionID = ""
	c.durationSec = 0
	c.state = StateIdle
	c.mu.Unlock()

	if wasRecording {
		// Reset during recording is a hard stop.
		c.cfg.Engine.Stop()
	}
	if asm != nil {
		asm.Reset()
	}
}

// HandleTransportMessage is the inbound-frame hook for the transport client.
// Binary frames are not expected from the provider and are ignored.
func (c *Controller) HandleTransportMessage(data []byte, binary bool) {
	if binary {
		return
	}

	msg, ok := protocol.Decode(data)
	if !ok {
		c.log.Debug().Msg("Unrecognized provider frame ignored")
		return
	}

	ev, ok := transcript.FromWire(msg)
	if !ok {
		return
	}

	c.mu.Lock()
	asm := c.assembler
	c.mu.Unlock()
	if asm == nil {
		return
	}
	asm.Apply(ev)
}

// HandleTransportFailure is invoked when the transport gives up after
// exhausting its reconnect budget. The session resets to idle and its
// transcript is destroyed; a new Start is valid immediately.
func (c *Controller) HandleTransportFailure(err error) {
	c.mu.Lock()
	wasRecording := c.state == StateRecording
	c.stopTickerLocked()
	c.state = StateIdle
	sessionID := c.sessionID
	c.sessionID = ""
	asm := c.assembler
	c.assembler = nil
	c.durationSec = 0
	c.mu.Unlock()

	if wasRecording {
		c.cfg.Engine.Stop()
	}
	if asm != nil {
		asm.Reset()
	}

	c.log.Error().Err(err).Str("sessionId", sessionID).Msg("Transport failed, session reset")
	if c.cfg.OnFailure != nil {
		c.cfg.OnFailure(err)
	}
}

// State reports the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Duration reports elapsed recording time in whole seconds.
func (c *Controller) Duration() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.durationSec
}

// Transcript returns a copy of the current transcript, empty when idle.
func (c *Controller) Transcript() []transcript.Segment {
	c.mu.Lock()
	asm := c.assembler
	c.mu.Unlock()
	if asm == nil {
		return nil
	}
	return asm.Snapshot()
}

func (c *Controller) stopTickerLocked() {
	if c.tickStop != nil {
		c.tickStop()
		c.tickStop = nil
	}
}
