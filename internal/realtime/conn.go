package realtime

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/timebankhq/timebank-go/shared/logging"
	"github.com/timebankhq/timebank-go/shared/metrics"
)

// State is the lifecycle state of a managed connection.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Policy controls reconnection after an abnormal transport close.
// A zero BackoffFactor (or 1) keeps the interval fixed, which matches the
// best-effort nature of this channel. MaxAttempts of 0 retries forever.
type Policy struct {
	Interval      time.Duration
	BackoffFactor float64
	MaxInterval   time.Duration
	MaxAttempts   int
}

// DefaultPolicy retries on a fixed short interval without limit.
func DefaultPolicy() Policy {
	return Policy{Interval: 3 * time.Second}
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.Interval
	if p.BackoffFactor > 1 {
		for i := 1; i < attempt; i++ {
			d = time.Duration(float64(d) * p.BackoffFactor)
			if p.MaxInterval > 0 && d >= p.MaxInterval {
				return p.MaxInterval
			}
		}
	}
	return d
}

// Conn owns a single logical realtime connection. It establishes, tears down
// and automatically reconstructs the underlying websocket transport; at most
// one transport is live at any point. Consumers never touch the transport,
// only Open, Send, Close and the frames delivered to their handler.
type Conn struct {
	baseURL string
	log     *logging.Logger
	met     *metrics.Metrics
	dialer  *websocket.Dialer

	mu         sync.Mutex
	state      State
	ws         *websocket.Conn
	router     *Router
	policy     Policy
	target     string
	gen        int
	attempts   int
	retryTimer *time.Timer
	closed     bool
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Conn) { c.log = log }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Conn) { c.met = m }
}

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Conn) { c.dialer = d }
}

// New creates a Conn targeting paths under baseURL (ws:// or wss://).
func New(baseURL string, opts ...Option) *Conn {
	c := &Conn{
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     logging.Nop(),
		met:     metrics.Nop(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		state: StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open begins establishing a transport to path, authenticating with token
// when one is present. An empty path means there is nothing to connect to
// and the call is a no-op. If a transport is already live it is closed first.
// Dial failures are logged and fed to the retry policy; they never propagate.
func (c *Conn) Open(path, token string, handler Handler, policy Policy) {
	if path == "" {
		return
	}
	if policy.Interval <= 0 {
		policy = DefaultPolicy()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.router = NewRouter(handler, c.log, c.met)
	c.policy = policy
	c.target = buildTarget(c.baseURL, path, token)
	c.attempts = 0
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	ws := c.ws
	c.ws = nil
	c.gen++
	gen := c.gen
	c.state = StateConnecting
	c.mu.Unlock()

	if ws != nil {
		ws.Close()
		c.met.ConnectionsActive.Dec()
	}

	go c.dial(gen)
}

// Send serializes v to JSON and writes it if and only if the transport is
// open. Sending while disconnected is an expected, recoverable condition,
// so failure is reported as false rather than an error.
func (c *Conn) Send(v interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen || c.ws == nil {
		c.met.SendsDropped.Inc()
		return false
	}
	if err := c.ws.WriteJSON(v); err != nil {
		c.log.WithError(err).Warn("failed to write frame")
		return false
	}
	c.met.FramesSent.Inc()
	return true
}

// Close performs a graceful shutdown and suppresses any pending reconnect.
// This is the only path that permanently stops reconnection; the close event
// of the underlying transport cannot resurrect a closed Conn.
func (c *Conn) Close(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = StateClosing
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	ws := c.ws
	c.ws = nil
	c.gen++
	c.mu.Unlock()

	if ws != nil {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = ws.WriteControl(websocket.CloseMessage, msg, deadline)
		ws.Close()
		c.met.ConnectionsActive.Dec()
	}

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) dial(gen int) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		// Superseded by a newer Open or Close while waiting to run.
		c.mu.Unlock()
		return
	}
	target := c.target
	c.state = StateConnecting
	c.mu.Unlock()

	ws, resp, err := c.dialer.Dial(target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.log.WithError(err).Warn("websocket dial failed")
		c.met.ConnectFailures.Inc()
		c.scheduleRetry(gen)
		return
	}

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		ws.Close()
		return
	}
	// At-most-one-transport invariant: anything still live goes first.
	if old := c.ws; old != nil {
		old.Close()
		c.met.ConnectionsActive.Dec()
	}
	c.ws = ws
	// The install bumps the generation so any other in-flight dial for the
	// same target loses the race and abandons its transport.
	c.gen++
	gen = c.gen
	c.state = StateOpen
	c.attempts = 0
	router := c.router
	c.mu.Unlock()

	c.met.ConnectsTotal.Inc()
	c.met.ConnectionsActive.Inc()
	c.log.WithField("state", StateOpen.String()).Debug("websocket connected")

	go c.readLoop(ws, gen, router)
}

func (c *Conn) readLoop(ws *websocket.Conn, gen int, router *Router) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			c.handleDrop(ws, gen, err)
			return
		}
		router.Dispatch(raw)
	}
}

func (c *Conn) handleDrop(ws *websocket.Conn, gen int, err error) {
	c.mu.Lock()
	if gen != c.gen {
		// A stale transport's close event; a newer transport owns the Conn.
		c.mu.Unlock()
		ws.Close()
		return
	}
	c.ws = nil
	closed := c.closed
	c.mu.Unlock()

	ws.Close()
	c.met.ConnectionsActive.Dec()

	if closed || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		return
	}

	c.log.WithError(err).Warn("websocket dropped, scheduling reconnect")
	c.scheduleRetry(gen)
}

func (c *Conn) scheduleRetry(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.gen {
		return
	}
	c.attempts++
	if c.policy.MaxAttempts > 0 && c.attempts > c.policy.MaxAttempts {
		c.log.WithField("attempts", c.attempts-1).Error("reconnect attempts exhausted")
		c.state = StateClosed
		return
	}

	c.state = StateConnecting
	c.met.ReconnectsTotal.Inc()
	delay := c.policy.delay(c.attempts)
	c.retryTimer = time.AfterFunc(delay, func() { c.dial(gen) })
}

func buildTarget(baseURL, path string, token string) string {
	target := baseURL + path
	if token != "" {
		target += "?token=" + url.QueryEscape(token)
	}
	return target
}
