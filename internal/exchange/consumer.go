package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/timebankhq/timebank-go/internal/domain"
	"github.com/timebankhq/timebank-go/internal/notify"
	"github.com/timebankhq/timebank-go/internal/realtime"
	"github.com/timebankhq/timebank-go/internal/session"
	"github.com/timebankhq/timebank-go/shared/contracts"
	sharederrors "github.com/timebankhq/timebank-go/shared/errors"
	"github.com/timebankhq/timebank-go/shared/logging"
)

// socket is the slice of realtime.Conn the consumer needs.
type socket interface {
	Open(path, token string, handler realtime.Handler, policy realtime.Policy)
	Close(code int, reason string)
	State() realtime.State
}

// Consumer keeps one exchange's mutable fields synchronized with
// server-pushed updates and surfaces notifications on status transitions.
// The socket is read-path only: all user actions go through the
// request/response service and the local copy is refreshed afterwards.
type Consumer struct {
	sess *session.Session
	sock socket
	svc  domain.ExchangeService
	sink notify.Sink
	log  *logging.Logger

	mu       sync.Mutex
	exchange domain.Exchange
}

// NewConsumer creates a consumer seeded with the exchange loaded (or created)
// through the request/response path when the view was entered.
func NewConsumer(ex domain.Exchange, sess *session.Session, sock socket, svc domain.ExchangeService, sink notify.Sink, log *logging.Logger) *Consumer {
	if sink == nil {
		sink = notify.NopSink{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Consumer{
		sess:     sess,
		sock:     sock,
		svc:      svc,
		sink:     sink,
		log:      log,
		exchange: ex,
	}
}

// Start opens the exchange status socket.
func (c *Consumer) Start(policy realtime.Policy) {
	path := ""
	if c.exchange.ID != "" {
		path = fmt.Sprintf("/ws/exchange/%s/", c.exchange.ID)
	}
	c.sock.Open(path, c.sess.Token(), c.HandleFrame, policy)
}

// Stop closes the socket with the normal-closure code; the projection is
// discarded with the consumer.
func (c *Consumer) Stop() {
	c.sock.Close(websocket.CloseNormalClosure, "leaving exchange view")
}

// Exchange returns a copy of the current projection.
func (c *Consumer) Exchange() domain.Exchange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exchange
}

// HandleFrame is the single inbound handler for this consumer's connection.
func (c *Consumer) HandleFrame(frame contracts.Frame) {
	switch f := frame.(type) {
	case contracts.ExchangeDeltaFrame:
		c.apply(f.Delta)

	case contracts.NotificationFrame:
		// Count-only signal: the payload carries nothing, just refetch.
		if err := c.Refresh(context.Background()); err != nil {
			c.log.WithError(err).Warn("refetch after notification signal failed")
		}

	default:
		c.log.WithField("type", frame.FrameType()).Debug("ignoring frame")
	}
}

// apply overwrites the mutable fields from an authoritative push and detects
// status transitions afterwards. Notification policy is keyed strictly on
// status transitions: an unchanged status never notifies, even when other
// fields like the proposed date changed.
func (c *Consumer) apply(delta contracts.ExchangeDelta) {
	c.mu.Lock()
	prev := c.exchange.Status
	c.exchange.ApplyDelta(delta)
	cur := c.exchange.Status
	id := c.exchange.ID
	c.mu.Unlock()

	if cur == prev {
		return
	}

	switch {
	case cur == domain.StatusCompleted:
		c.sink.Publish(notify.New(notify.KindExchangeCompleted, "Exchange completed", id))
		c.sink.Publish(notify.New(notify.KindRatingPrompt, "Rate your exchange partner", id))
	case prev == domain.StatusPending && cur == domain.StatusAccepted:
		c.sink.Publish(notify.New(notify.KindExchangeAccepted, "Exchange request accepted", id))
	}
}

// Refresh replaces the projection wholesale from the request/response path.
// No transition notifications fire here: the actor already knows what they
// did, and concurrent socket pushes compare against the refreshed status.
func (c *Consumer) Refresh(ctx context.Context) error {
	c.mu.Lock()
	id := c.exchange.ID
	c.mu.Unlock()

	ex, err := c.svc.Get(ctx, id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.exchange = *ex
	c.mu.Unlock()
	return nil
}

// Accept accepts the exchange request.
func (c *Consumer) Accept(ctx context.Context) error {
	return c.action(ctx, "accept", func(id contracts.ID) error {
		return c.svc.Accept(ctx, id)
	})
}

// Reject rejects the exchange request.
func (c *Consumer) Reject(ctx context.Context) error {
	return c.action(ctx, "reject", func(id contracts.ID) error {
		return c.svc.Reject(ctx, id)
	})
}

// ProposeDate proposes a date and time for the exchange.
func (c *Consumer) ProposeDate(ctx context.Context, date, timeOfDay string) error {
	return c.action(ctx, "propose_date", func(id contracts.ID) error {
		return c.svc.ProposeDate(ctx, id, date, timeOfDay)
	})
}

// ConfirmCompletion confirms this side's completion of the exchange.
func (c *Consumer) ConfirmCompletion(ctx context.Context) error {
	return c.action(ctx, "confirm_completion", func(id contracts.ID) error {
		return c.svc.ConfirmCompletion(ctx, id)
	})
}

// Rate submits a rating for the other participant.
func (c *Consumer) Rate(ctx context.Context, score int, comment string) error {
	return c.action(ctx, "rate", func(id contracts.ID) error {
		return c.svc.SubmitRating(ctx, domain.Rating{ExchangeID: id, Score: score, Comment: comment})
	})
}

// action runs one user-initiated request. Success refreshes the
// authoritative copy. An error saying the action already happened is
// informational and also just refreshes. Anything else surfaces as a
// transient notification and leaves local state untouched.
func (c *Consumer) action(ctx context.Context, name string, fn func(contracts.ID) error) error {
	c.mu.Lock()
	id := c.exchange.ID
	c.mu.Unlock()

	err := fn(id)
	if err == nil {
		return c.Refresh(ctx)
	}

	if errors.Is(err, domain.ErrAlreadyActioned) || sharederrors.IndicatesAlreadyDone(err) {
		c.log.WithField("action", name).Info("action already applied server side, refreshing")
		return c.Refresh(ctx)
	}

	c.log.WithError(err).WithField("action", name).Warn("exchange action failed")
	c.sink.Publish(notify.New(notify.KindTransientError,
		fmt.Sprintf("Could not %s the exchange, please try again", name), id))
	return err
}
