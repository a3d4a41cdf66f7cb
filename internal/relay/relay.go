// Package relay bridges one downstream (capture-client-facing) websocket to
// one upstream (transcription-provider-facing) websocket per recording
// session, injecting the provider credential on the upstream side. The
// credential never reaches the downstream connection.
package relay

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"meeting-capture-service/internal/observability/logging"
	"meeting-capture-service/internal/observability/metrics"
	"meeting-capture-service/internal/protocol"
)

var (
	// ErrAuthTimeout means the upstream never signalled authentication
	// success before the deadline. Fatal to the session.
	ErrAuthTimeout = errors.New("upstream authentication timeout")
	// ErrMissingSession means the bridge request carried no session id.
	ErrMissingSession = errors.New("missing session id")
)

// Config holds relay tuning. Zero values fall back to the defaults: 10 s
// auth deadline, 10 s upstream dial bound, 64 pending downstream messages
// while the upstream is still connecting.
type Config struct {
	// UpstreamURL is the provider websocket base; the session id is
	// appended as the final path element.
	UpstreamURL string
	// APIKey is the provider credential, read-only after process start.
	APIKey string

	AuthTimeout  time.Duration
	DialTimeout  time.Duration
	PendingLimit int
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 10 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.PendingLimit <= 0 {
		c.PendingLimit = 64
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

// Service accepts one downstream connection per recording session and
// bridges it to the upstream transcription provider.
type Service struct {
	cfg      Config
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// New creates a relay service.
func New(cfg Config) *Service {
	return &Service{
		cfg: cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		metrics: metrics.DefaultMetrics,
		log:     logging.WithComponent("relay"),
	}
}

// HandleSession is the websocket entry point for /ws-proxy/{sessionID}.
// A missing or empty session id is rejected with one error frame and a
// close, never silently dropped.
func (s *Service) HandleSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	down, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	if sessionID == "" {
		s.metrics.RecordBridgeRejected("missing_session")
		s.rejectAndClose(down, ErrMissingSession.Error())
		return
	}

	bridgeID := uuid.NewString()
	b := &bridge{
		id:      bridgeID,
		session: sessionID,
		cfg:     s.cfg,
		down:    down,
		metrics: s.metrics,
		log:     logging.WithBridge(bridgeID, sessionID).With().Str("component", "relay").Logger(),
	}
	b.run(r.Context())
}

func (s *Service) rejectAndClose(conn *websocket.Conn, msg string) {
	deadline := time.Now().Add(s.cfg.WriteTimeout)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.WriteMessage(websocket.TextMessage, protocol.EncodeError(msg))
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg), deadline)
	_ = conn.Close()
}

// wsMsg is one relayed frame, preserved verbatim with its message type.
type wsMsg struct {
	msgType int
	data    []byte
}

// bridge owns one downstream/upstream connection pair for the lifetime of a
// session. All exit paths close both sides and cancel the auth deadline.
type bridge struct {
	id      string
	session string
	cfg     Config
	down    *websocket.Conn
	up      *websocket.Conn
	metrics *metrics.Metrics
	log     zerolog.Logger

	downMu sync.Mutex
	upMu   sync.Mutex

	teardown sync.Once
	authed   chan struct{}
}

func (b *bridge) run(parent context.Context) {
	start := time.Now()
	b.metrics.RecordBridgeOpen()
	defer func() { b.metrics.RecordBridgeClose(time.Since(start).Seconds()) }()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	b.authed = make(chan struct{})
	b.log.Info().Msg("Bridge accepted")

	// Downstream frames arriving before the upstream is open buffer here
	// (bounded; the reader blocks when full, pushing backpressure onto the
	// client socket) and flush once the upstream connection lands.
	pending := make(chan wsMsg, b.cfg.PendingLimit)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.readDownstream(ctx, cancel, pending)
	}()

	up, err := b.dialUpstream(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("Upstream connection failed")
		b.sendDownstreamError("failed to connect to transcription provider")
		b.close(cancel)
		wg.Wait()
		return
	}
	b.up = up

	// Credential injection, then the deadline clock starts.
	if err := b.writeUpstream(websocket.TextMessage, protocol.EncodeAuth("Bearer "+b.cfg.APIKey)); err != nil {
		b.log.Error().Err(err).Msg("Credential injection failed")
		b.sendDownstreamError("failed to authenticate with transcription provider")
		b.close(cancel)
		wg.Wait()
		return
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		b.watchAuthDeadline(ctx, cancel)
	}()
	go func() {
		defer wg.Done()
		b.forwardToUpstream(ctx, cancel, pending)
	}()
	go func() {
		defer wg.Done()
		b.readUpstream(ctx, cancel)
	}()

	<-ctx.Done()
	b.close(cancel)
	wg.Wait()
	b.log.Info().Dur("lifetime", time.Since(start)).Msg("Bridge closed")
}

func (b *bridge) dialUpstream(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, b.cfg.DialTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: b.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(dialCtx, b.cfg.UpstreamURL+"/"+b.session, nil)
	return conn, err
}

// readDownstream pumps client frames toward the upstream queue. Audio frames
// are opaque binary; everything is forwarded verbatim.
func (b *bridge) readDownstream(ctx context.Context, cancel context.CancelFunc, pending chan<- wsMsg) {
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = b.down.SetReadDeadline(time.Now())
	}()

	for {
		msgType, data, err := b.down.ReadMessage()
		if err != nil {
			return
		}
		select {
		case pending <- wsMsg{msgType: msgType, data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// forwardToUpstream drains queued and live downstream frames to the
// provider, unmodified and in order.
func (b *bridge) forwardToUpstream(ctx context.Context, cancel context.CancelFunc, pending <-chan wsMsg) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-pending:
			if err := b.writeUpstream(msg.msgType, msg.data); err != nil {
				b.log.Warn().Err(err).Msg("Upstream write failed")
				return
			}
			b.metrics.RecordForward("upstream", len(msg.data))
		}
	}
}

// readUpstream forwards provider frames to the client verbatim, sniffing
// text frames only for the authentication-success marker. Frames that do not
// parse as JSON pass through untouched.
func (b *bridge) readUpstream(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = b.up.SetReadDeadline(time.Now())
	}()

	for {
		msgType, data, err := b.up.ReadMessage()
		if err != nil {
			return
		}

		if msgType == websocket.TextMessage && protocol.IsAuthSuccess(data) {
			b.markAuthenticated()
		}

		if err := b.writeDownstream(msgType, data); err != nil {
			b.log.Warn().Err(err).Msg("Downstream write failed")
			return
		}
		b.metrics.RecordForward("downstream", len(data))
	}
}

func (b *bridge) markAuthenticated() {
	select {
	case <-b.authed:
	default:
		close(b.authed)
		b.log.Info().Msg("Upstream authenticated")
	}
}

// watchAuthDeadline enforces the authentication deadline that started at
// upstream-open. On expiry the downstream side receives exactly one error
// frame before both connections are force-closed.
func (b *bridge) watchAuthDeadline(ctx context.Context, cancel context.CancelFunc) {
	timer := time.NewTimer(b.cfg.AuthTimeout)
	defer timer.Stop()

	select {
	case <-b.authed:
	case <-ctx.Done():
	case <-timer.C:
		b.metrics.RecordAuthTimeout()
		b.log.Error().Dur("deadline", b.cfg.AuthTimeout).Msg("Authentication deadline expired")
		b.sendDownstreamError(ErrAuthTimeout.Error())
		cancel()
	}
}

func (b *bridge) sendDownstreamError(msg string) {
	if err := b.writeDownstream(websocket.TextMessage, protocol.EncodeError(msg)); err != nil {
		b.log.Debug().Err(err).Msg("Error frame not delivered")
	}
}

func (b *bridge) writeDownstream(msgType int, data []byte) error {
	b.downMu.Lock()
	defer b.downMu.Unlock()
	_ = b.down.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
	return b.down.WriteMessage(msgType, data)
}

func (b *bridge) writeUpstream(msgType int, data []byte) error {
	b.upMu.Lock()
	defer b.upMu.Unlock()
	_ = b.up.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
	return b.up.WriteMessage(msgType, data)
}

// close shuts both sides down exactly once. Safe on any exit path,
// including abrupt downstream disconnects.
func (b *bridge) close(cancel context.CancelFunc) {
	b.teardown.Do(func() {
		cancel()
		deadline := time.Now().Add(time.Second)
		b.downMu.Lock()
		_ = b.down.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		b.downMu.Unlock()
		_ = b.down.Close()
		if b.up != nil {
			b.upMu.Lock()
			_ = b.up.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			b.upMu.Unlock()
			_ = b.up.Close()
		}
	})
}
