package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/timebankhq/timebank-go/internal/realtime"
	"github.com/timebankhq/timebank-go/internal/session"
	"github.com/timebankhq/timebank-go/shared/contracts"
	"github.com/timebankhq/timebank-go/shared/logging"
)

// socket is the slice of realtime.Conn the consumer needs.
type socket interface {
	Open(path, token string, handler realtime.Handler, policy realtime.Policy)
	Send(v interface{}) bool
	Close(code int, reason string)
	State() realtime.State
}

// Consumer maintains the ordered, append-only message list for one exchange
// conversation. The server is trusted to deliver each message exactly once
// and in order, so the consumer never reorders or deduplicates.
type Consumer struct {
	exchangeID contracts.ID
	sess       *session.Session
	sock       socket
	log        *logging.Logger
	limiter    *rate.Limiter

	mu       sync.Mutex
	messages []contracts.ChatMessage
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Consumer) { c.log = log }
}

// WithSendLimit overrides the outbound flood-control limiter.
func WithSendLimit(l *rate.Limiter) Option {
	return func(c *Consumer) { c.limiter = l }
}

// NewConsumer creates a chat consumer for one exchange conversation.
func NewConsumer(exchangeID contracts.ID, sess *session.Session, sock socket, opts ...Option) *Consumer {
	c := &Consumer{
		exchangeID: exchangeID,
		sess:       sess,
		sock:       sock,
		log:        logging.Nop(),
		limiter:    rate.NewLimiter(rate.Limit(5), 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start opens the conversation socket. An empty exchange id means there is
// nothing to connect to; Open treats that as a no-op.
func (c *Consumer) Start(policy realtime.Policy) {
	path := ""
	if c.exchangeID != "" {
		path = fmt.Sprintf("/ws/chat/%s/", c.exchangeID)
	}
	c.sock.Open(path, c.sess.Token(), c.HandleFrame, policy)
}

// Stop closes the socket with the normal-closure code, disabling any pending
// reconnect, and clears the message list. Only unmounting clears the list.
func (c *Consumer) Stop() {
	c.sock.Close(websocket.CloseNormalClosure, "leaving conversation")

	c.mu.Lock()
	c.messages = nil
	c.mu.Unlock()
}

// HandleFrame is the single inbound handler for this consumer's connection.
func (c *Consumer) HandleFrame(frame contracts.Frame) {
	switch f := frame.(type) {
	case contracts.ChatSnapshotFrame:
		// The snapshot always fully replaces the local list, never merges.
		c.mu.Lock()
		c.messages = append([]contracts.ChatMessage(nil), f.Messages...)
		c.mu.Unlock()

	case contracts.ChatAppendFrame:
		c.mu.Lock()
		c.messages = append(c.messages, f.Message)
		c.mu.Unlock()

	default:
		c.log.WithField("type", frame.FrameType()).Debug("ignoring frame")
	}
}

// Messages returns a copy of the current conversation in arrival order.
func (c *Consumer) Messages() []contracts.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]contracts.ChatMessage(nil), c.messages...)
}

// Submit sends content as a chat message. It no-ops silently when content is
// empty or whitespace-only, or when the connection is not open. It returns
// true once the frame was written, which is the caller's cue to clear the
// input; the authoritative copy arrives back through the inbound path like
// any other message.
func (c *Consumer) Submit(ctx context.Context, content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}
	if c.sock.State() != realtime.StateOpen {
		return false
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return false
	}
	return c.sock.Send(contracts.ChatOutbound{Message: content})
}

// Mine reports whether msg was written by the current session's user. Both
// ids are already normalized by contracts.ID, which guards against the
// string/number mismatches different API responses produce.
func (c *Consumer) Mine(msg contracts.ChatMessage) bool {
	if c.sess.UserID() == "" {
		return false
	}
	return msg.SenderID == c.sess.UserID()
}
