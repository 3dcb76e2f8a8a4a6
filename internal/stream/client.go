package stream

import (
	"context"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"lobstream/internal/statemachine"
)

// State is the StreamClient's connection lifecycle stage.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Subscribed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Subscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

// Metrics is the narrow observability surface a StreamClient reports
// through; satisfied structurally by internal/metrics.
type Metrics interface {
	IncMessagesProcessed(symbol string)
	SetExchangeConnected(channel string, connected bool)
	IncReconnects(channel string)
	IncGapsDetected(symbol string)
}

// Config parametrizes one duplex session.
type Config struct {
	URL               string
	Channel           string
	Symbols           []string
	HeartbeatInterval time.Duration
	PongDeadline      time.Duration
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	ReconnectAttempts  int
}

// Client owns one persistent duplex session, decoding inbound frames into
// statemachine.Events and delivering them on a channel for a single
// consumer (the owning Supervisor worker) to dispatch in receive order.
type Client struct {
	cfg     Config
	log     *zap.Logger
	metrics Metrics

	mu    sync.Mutex
	conn  *websocket.Conn
	state State

	// writeMu serializes all writes to conn: gorilla/websocket forbids
	// concurrent writers, and pings, subscribes and the graceful-close
	// sequence can otherwise race from different goroutines.
	writeMu sync.Mutex

	events       chan statemachine.Event
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// lastPong is touched only from within sessionLoop's goroutine: the
	// pong handler runs synchronously inside conn.ReadMessage, never
	// concurrently with the loop that reads it.
	lastPong time.Time
}

// New returns a Client ready for Run. metrics may be nil.
func New(cfg Config, log *zap.Logger, metrics Metrics) *Client {
	return &Client{
		cfg:     cfg,
		log:     log.Named("stream").With(zap.String("channel", cfg.Channel)),
		metrics: metrics,
		// Unbuffered: there is no internal queue. A slow consumer stalls
		// this send, which stalls the read loop, which is the only
		// backpressure signal this client ever produces.
		events:   make(chan statemachine.Event),
		shutdown: make(chan struct{}),
	}
}

// Events returns the channel decoded events are delivered on.
func (c *Client) Events() <-chan statemachine.Event { return c.events }

// State reports the current connection lifecycle stage.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Shutdown signals a graceful unsubscribe-and-close; Run returns nil once
// the session has wound down.
func (c *Client) Shutdown() {
	c.shutdownOnce.Do(func() { close(c.shutdown) })
}

// Run drives connect → subscribe → session loop → reconnect-with-backoff
// until ctx is cancelled, Shutdown is called, or reconnect_attempts is
// exhausted — in which case it returns *TransportDisconnect so the caller
// can escalate to its Supervisor.
func (c *Client) Run(ctx context.Context) error {
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.shutdown:
			return nil
		default:
		}

		if err := c.connectAndSubscribe(ctx); err != nil {
			c.log.Warn("connect failed", zap.Error(err), zap.Int("attempt", attempts+1))
			attempts++
			if c.metrics != nil {
				c.metrics.IncReconnects(c.cfg.Channel)
			}
			if attempts >= c.cfg.ReconnectAttempts {
				return &TransportDisconnect{URL: c.cfg.URL, Attempts: attempts, Err: err}
			}
			if !c.sleepBackoff(ctx, attempts) {
				return nil
			}
			continue
		}

		attempts = 0
		if c.metrics != nil {
			c.metrics.SetExchangeConnected(c.cfg.Channel, true)
		}

		sessionErr := c.sessionLoop(ctx)

		if c.metrics != nil {
			c.metrics.SetExchangeConnected(c.cfg.Channel, false)
		}
		c.setState(Disconnected)

		if sessionErr == nil {
			return nil
		}
		c.log.Warn("session ended, reconnecting", zap.Error(sessionErr))
		attempts++
		if c.metrics != nil {
			c.metrics.IncReconnects(c.cfg.Channel)
		}
		if attempts >= c.cfg.ReconnectAttempts {
			return &TransportDisconnect{URL: c.cfg.URL, Attempts: attempts, Err: sessionErr}
		}
		if !c.sleepBackoff(ctx, attempts) {
			return nil
		}
	}
}

// sleepBackoff waits delay·2^(n-1) capped at ReconnectMaxDelay, returning
// false if ctx/shutdown fired first.
func (c *Client) sleepBackoff(ctx context.Context, attempt int) bool {
	delay := backoffDelay(attempt, c.cfg.ReconnectBaseDelay, c.cfg.ReconnectMaxDelay)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-c.shutdown:
		return false
	}
}

// backoffDelay computes delay·2^(n-1) capped at maxDelay, per spec.md §4.7.
func backoffDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	delay := base * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (c *Client) connectAndSubscribe(ctx context.Context) error {
	c.setState(Connecting)

	dialer := websocket.Dialer{
		HandshakeTimeout: 45 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	c.lastPong = time.Now()
	conn.SetPongHandler(func(string) error {
		c.lastPong = time.Now()
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(Connected)

	sub, err := subscribeMessage(c.cfg.Channel, c.cfg.Symbols)
	if err != nil {
		conn.Close()
		return fmt.Errorf("encode subscribe message: %w", err)
	}
	if err := c.writeMessage(conn, websocket.TextMessage, sub); err != nil {
		conn.Close()
		return fmt.Errorf("send subscribe message: %w", err)
	}
	c.setState(Subscribed)
	c.log.Info("subscribed", zap.Strings("symbols", c.cfg.Symbols))
	return nil
}

// sessionLoop reads and dispatches frames inline, one at a time, until
// disconnect, error, or shutdown. There is no second goroutine and no
// internal queue: conn.ReadMessage is the loop's only suspension point,
// bounded to pollInterval so the loop can also notice ctx/shutdown and send
// heartbeat pings. A shutdown/ctx-cancel sends unsubscribe and closes
// cleanly, returning nil.
func (c *Client) sessionLoop(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	pollInterval := c.cfg.HeartbeatInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	lastPing := time.Now()

	for {
		select {
		case <-ctx.Done():
			c.closeGracefully(conn)
			return nil
		case <-c.shutdown:
			c.closeGracefully(conn)
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(pollInterval))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !isTimeoutErr(err) {
				conn.Close()
				return err
			}
			if time.Since(c.lastPong) > c.cfg.PongDeadline {
				conn.Close()
				return fmt.Errorf("pong deadline exceeded")
			}
			if time.Since(lastPing) >= pollInterval {
				if err := c.writeMessage(conn, websocket.PingMessage, nil); err != nil {
					conn.Close()
					return fmt.Errorf("ping: %w", err)
				}
				lastPing = time.Now()
			}
			continue
		}

		if err := c.handleFrame(ctx, msg); err != nil {
			conn.Close()
			return err
		}
	}
}

// isTimeoutErr reports whether err is a read-deadline expiry rather than a
// real transport failure.
func isTimeoutErr(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// writeMessage serializes writes across goroutines — gorilla/websocket
// forbids concurrent writers on one connection.
func (c *Client) writeMessage(conn *websocket.Conn, messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(messageType, data)
}

func (c *Client) closeGracefully(conn *websocket.Conn) {
	unsub, err := unsubscribeMessage(c.cfg.Channel, c.cfg.Symbols)
	if err == nil {
		c.writeMessage(conn, websocket.TextMessage, unsub)
	}
	c.writeMessage(conn, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
}

// Resubscribe re-sends a subscribe control frame for symbols, used when a
// single symbol's BookStateMachine drops to Uninitialized after a
// SequenceGap so the exchange resends a fresh snapshot for just that
// symbol, without disturbing the rest of the batch.
func (c *Client) Resubscribe(symbols []string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("resubscribe: not connected")
	}
	sub, err := subscribeMessage(c.cfg.Channel, symbols)
	if err != nil {
		return fmt.Errorf("encode resubscribe message: %w", err)
	}
	return c.writeMessage(conn, websocket.TextMessage, sub)
}

// handleFrame decodes one inbound frame and hands it to the consumer. The
// send to c.events blocks until the consumer receives (or ctx/shutdown
// fires): this is the cooperative handoff point, not a queue, so a slow
// consumer directly stalls the next conn.ReadMessage call.
func (c *Client) handleFrame(ctx context.Context, msg []byte) error {
	evt, err := decode(msg, time.Now().UTC())
	if err != nil {
		c.log.Warn("malformed frame", zap.Error(err))
		return nil
	}
	if evt.Type == statemachine.EventSubscriptions {
		return nil
	}
	if c.metrics != nil {
		c.metrics.IncMessagesProcessed(evt.Symbol)
	}
	select {
	case c.events <- evt:
		return nil
	case <-ctx.Done():
		return nil
	case <-c.shutdown:
		return nil
	}
}
