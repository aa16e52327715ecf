package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/timebankhq/timebank-go/shared/contracts"
	"github.com/timebankhq/timebank-go/shared/metrics"
)

// Kind classifies a user-facing notification.
type Kind string

const (
	KindExchangeAccepted  Kind = "exchange_accepted"
	KindExchangeCompleted Kind = "exchange_completed"
	KindRatingPrompt      Kind = "rating_prompt"
	KindTransientError    Kind = "transient_error"
)

// Notification is a dismissible, user-visible event. Nothing here is fatal;
// the worst a notification reports is a failed action the user can retry.
type Notification struct {
	ID         string       `json:"id"`
	Kind       Kind         `json:"kind"`
	Message    string       `json:"message"`
	ExchangeID contracts.ID `json:"exchange_id,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// New builds a notification with a fresh id.
func New(kind Kind, message string, exchangeID contracts.ID) Notification {
	return Notification{
		ID:         uuid.NewString(),
		Kind:       kind,
		Message:    message,
		ExchangeID: exchangeID,
		CreatedAt:  time.Now().UTC(),
	}
}

// Sink receives notifications for display.
type Sink interface {
	Publish(n Notification)
}

// ChannelSink buffers notifications on a channel. Publishing never blocks
// the consumer's frame handler: when the buffer is full the notification is
// dropped and counted.
type ChannelSink struct {
	ch  chan Notification
	met *metrics.Metrics
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(size int, met *metrics.Metrics) *ChannelSink {
	if met == nil {
		met = metrics.Nop()
	}
	return &ChannelSink{
		ch:  make(chan Notification, size),
		met: met,
	}
}

// Publish implements Sink.
func (s *ChannelSink) Publish(n Notification) {
	s.met.NotificationsTotal.WithLabelValues(string(n.Kind)).Inc()
	select {
	case s.ch <- n:
	default:
		s.met.NotificationsDropped.Inc()
	}
}

// C exposes the receive side.
func (s *ChannelSink) C() <-chan Notification {
	return s.ch
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Publish(Notification) {}
