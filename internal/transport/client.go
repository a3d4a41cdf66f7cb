// Package transport provides the persistent, auto-reconnecting duplex
// connection carrying encoded audio frames out and transcription events in.
// It performs no business logic; the owner interprets close and error events.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"meeting-capture-service/internal/observability/logging"
	"meeting-capture-service/internal/observability/metrics"
	"meeting-capture-service/internal/protocol"
)

var (
	// ErrConnectTimeout means a connection attempt exceeded the fixed bound.
	ErrConnectTimeout = errors.New("transport connect timeout")
	// ErrClosed means the client was closed or exhausted its retries.
	ErrClosed = errors.New("transport closed")
)

// Conn is the duplex connection surface the capture engine sends through.
type Conn interface {
	// Send enqueues an opaque binary frame.
	Send(data []byte) error
	// SendText enqueues a text (JSON) frame.
	SendText(data []byte) error
	Close() error
}

// Dialer establishes transport connections.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// Options tunes the client. Zero values fall back to the defaults: 5 s
// connect timeout, 15 s keep-alive, 10 reconnect attempts, 100 enqueued
// messages.
type Options struct {
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	QueueSize      int

	// OnMessage receives every inbound frame in connection order.
	OnMessage func(data []byte, binary bool)
	// OnError is invoked once when the client gives up after exhausting
	// reconnect attempts.
	OnError func(err error)
	// OnClose is invoked exactly once when the client is finished, whether
	// by Close or by retry exhaustion.
	OnClose func()
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = 5 * time.Second
	}
	if out.PingInterval <= 0 {
		out.PingInterval = 15 * time.Second
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = 10
	}
	if out.BackoffBase <= 0 {
		out.BackoffBase = time.Second
	}
	if out.BackoffMax <= 0 {
		out.BackoffMax = 30 * time.Second
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 100
	}
	return out
}

// WSDialer dials gorilla websocket connections with the configured options.
type WSDialer struct {
	Opts Options
}

// Dial connects to endpoint and returns a running client. The initial
// attempt is bounded by ConnectTimeout and fails with ErrConnectTimeout.
func (d *WSDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	opts := d.Opts.withDefaults()

	c := &Client{
		endpoint: endpoint,
		opts:     opts,
		queue:    newFrameQueue(opts.QueueSize),
		done:     make(chan struct{}),
		metrics:  metrics.DefaultMetrics,
		log:      logging.WithComponent("transport"),
	}

	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(runCtx, conn)

	return c, nil
}

// Client is a persistent websocket connection with automatic reconnection on
// transient failure, a bounded drop-oldest enqueue buffer, and a periodic
// application-level keep-alive.
type Client struct {
	endpoint string
	opts     Options
	queue    *frameQueue
	metrics  *metrics.Metrics
	log      zerolog.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	closedMu sync.Mutex
	closed   bool
}

// Send enqueues a binary frame. While reconnecting, frames buffer up to the
// queue capacity; beyond that the oldest buffered frame is dropped.
func (c *Client) Send(data []byte) error {
	return c.enqueue(frame{data: data})
}

// SendText enqueues a text frame.
func (c *Client) SendText(data []byte) error {
	return c.enqueue(frame{data: data, text: true})
}

func (c *Client) enqueue(f frame) error {
	dropped := c.queue.push(f)
	if dropped < 0 {
		return ErrClosed
	}
	if dropped > 0 {
		c.metrics.RecordTransportDropped()
		c.log.Warn().Int("queued", c.queue.len()).Msg("Send queue full, dropped oldest message")
	}
	return nil
}

// Close shuts the client down gracefully. Idempotent.
func (c *Client) Close() error {
	c.closedMu.Lock()
	c.closed = true
	c.closedMu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	<-c.done
	return nil
}

func (c *Client) isClosed() bool {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()
	return c.closed
}

// Dropped reports how many outbound messages were discarded by the overflow
// policy.
func (c *Client) Dropped() int {
	return c.queue.droppedCount()
}

// connect performs one bounded connection attempt.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.ConnectTimeout}
	conn, _, err := dialer.DialContext(dialCtx, c.endpoint, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || dialCtx.Err() != nil {
			return nil, fmt.Errorf("%w: %s", ErrConnectTimeout, c.endpoint)
		}
		return nil, err
	}
	return conn, nil
}

// run owns the websocket connection across reconnects. It exits when Close
// is called or the retry budget is spent.
func (c *Client) run(ctx context.Context, conn *websocket.Conn) {
	defer close(c.done)
	defer c.queue.close()
	defer func() {
		if c.opts.OnClose != nil {
			c.opts.OnClose()
		}
	}()

	for {
		c.serve(ctx, conn)

		if c.isClosed() || ctx.Err() != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
			return
		}
		_ = conn.Close()

		next, err := c.reconnect(ctx)
		if err != nil {
			if c.opts.OnError != nil && !c.isClosed() {
				c.opts.OnError(err)
			}
			return
		}
		conn = next
	}
}

// reconnect retries with exponential backoff up to the bounded attempt count.
func (c *Client) reconnect(ctx context.Context) (*websocket.Conn, error) {
	backoff := c.opts.BackoffBase
	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		c.metrics.RecordTransportReconnect()
		c.log.Info().
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Reconnecting transport")

		select {
		case <-ctx.Done():
			return nil, ErrClosed
		case <-time.After(backoff):
		}

		conn, err := c.connect(ctx)
		if err == nil {
			c.log.Info().Int("attempt", attempt).Msg("Transport reconnected")
			return conn, nil
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Msg("Reconnect attempt failed")

		backoff *= 2
		if backoff > c.opts.BackoffMax {
			backoff = c.opts.BackoffMax
		}
	}
	return nil, fmt.Errorf("%w: reconnect attempts exhausted", ErrClosed)
}

// serve runs one connection until it fails or the client stops. The reader
// runs here; a writer goroutine drains the queue and emits keep-alives.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblock the reader when the client is told to stop.
	go func() {
		<-connCtx.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(connCtx, conn)
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			cancel()
			<-writerDone
			return
		}
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(data, msgType == websocket.BinaryMessage)
		}
	}
}

// writeLoop drains the send queue onto the connection and sends the periodic
// keep-alive ping. No pong is required to keep the connection open.
func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	popped := make(chan frame)
	popCtx, popCancel := context.WithCancel(ctx)
	defer popCancel()
	go func() {
		defer close(popped)
		for {
			f, ok := c.queue.pop(popCtx)
			if !ok {
				return
			}
			select {
			case popped <- f:
			case <-popCtx.Done():
				// Keep the in-flight frame at the head of the line for the
				// next connection.
				c.queue.pushFront(f)
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, protocol.EncodePing()); err != nil {
				return
			}
		case f, ok := <-popped:
			if !ok {
				return
			}
			msgType := websocket.BinaryMessage
			if f.text {
				msgType = websocket.TextMessage
			}
			if err := conn.WriteMessage(msgType, f.data); err != nil {
				// Put it back at the head so it goes out first after the
				// reconnect, ahead of anything enqueued meanwhile.
				c.queue.pushFront(f)
				return
			}
		}
	}
}
