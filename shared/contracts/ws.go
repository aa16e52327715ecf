package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Frame type discriminators pushed by the server.
const (
	FrameTypeMessages       = "messages"        // chat snapshot, data = array of ChatMessage
	FrameTypeMessage        = "message"         // chat append, data = one ChatMessage
	FrameTypeExchangeUpdate = "exchange_update" // status-changing push
	FrameTypeExchangeState  = "exchange_state"  // status snapshot/resync
	FrameTypeNotification   = "notification"    // count-only signal, triggers a refetch
)

// Envelope is the raw server-to-client frame shape.
type Envelope struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// ChatOutbound is the client-to-server chat frame shape.
type ChatOutbound struct {
	Message string `json:"message"`
}

// ID is a resource identifier that different API responses serialize either
// as a JSON string or as a JSON number. It always normalizes to its string
// form so identity comparisons are safe across sources.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// ChatMessage is one message in an exchange conversation.
type ChatMessage struct {
	ID           ID        `json:"id"`
	SenderID     ID        `json:"sender_id"`
	SenderName   string    `json:"sender_name"`
	SenderAvatar string    `json:"sender_avatar,omitempty"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
}

// ExchangeDelta carries the mutable exchange fields the server pushes.
// Everything else about an exchange only travels over the request/response API.
type ExchangeDelta struct {
	Status             string     `json:"status"`
	ProposedDate       *string    `json:"proposed_date"`
	ProposedTime       *string    `json:"proposed_time"`
	RequesterConfirmed bool       `json:"requester_confirmed"`
	ProviderConfirmed  bool       `json:"provider_confirmed"`
	CompletedAt        *time.Time `json:"completed_at"`
}

// Frame is the decoded form of one inbound envelope. Consumers switch on the
// concrete variant instead of probing loose fields.
type Frame interface {
	FrameType() string
}

// ChatSnapshotFrame replaces the full conversation.
type ChatSnapshotFrame struct {
	Messages []ChatMessage
}

func (ChatSnapshotFrame) FrameType() string { return FrameTypeMessages }

// ChatAppendFrame appends exactly one message.
type ChatAppendFrame struct {
	Message ChatMessage
}

func (ChatAppendFrame) FrameType() string { return FrameTypeMessage }

// ExchangeDeltaFrame carries an authoritative exchange push. Resync is true
// for "exchange_state" snapshots; the consumer treats both identically.
type ExchangeDeltaFrame struct {
	Delta  ExchangeDelta
	Resync bool
}

func (f ExchangeDeltaFrame) FrameType() string {
	if f.Resync {
		return FrameTypeExchangeState
	}
	return FrameTypeExchangeUpdate
}

// NotificationFrame is a count-only signal with no payload contract beyond
// prompting the consumer to refetch.
type NotificationFrame struct{}

func (NotificationFrame) FrameType() string { return FrameTypeNotification }

// UnknownFrame is the catch-all for frame types this client does not know.
// It is delivered unchanged so new server pushes do not require a client
// release; consumers decide what to ignore.
type UnknownFrame struct {
	Type  string
	Data  json.RawMessage
	Error string
}

func (f UnknownFrame) FrameType() string { return f.Type }

// DecodeFrame parses one raw websocket payload into its Frame variant.
// A non-nil error means the payload must be dropped; it never closes the
// connection.
func DecodeFrame(raw []byte) (Frame, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("frame missing type discriminator")
	}

	switch env.Type {
	case FrameTypeMessages:
		var msgs []ChatMessage
		if err := json.Unmarshal(env.Data, &msgs); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", env.Type, err)
		}
		return ChatSnapshotFrame{Messages: msgs}, nil

	case FrameTypeMessage:
		var msg ChatMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", env.Type, err)
		}
		return ChatAppendFrame{Message: msg}, nil

	case FrameTypeExchangeUpdate, FrameTypeExchangeState:
		var delta ExchangeDelta
		if err := json.Unmarshal(env.Data, &delta); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", env.Type, err)
		}
		return ExchangeDeltaFrame{Delta: delta, Resync: env.Type == FrameTypeExchangeState}, nil

	case FrameTypeNotification:
		return NotificationFrame{}, nil

	default:
		return UnknownFrame{Type: env.Type, Data: env.Data, Error: env.Error}, nil
	}
}
