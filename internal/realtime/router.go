package realtime

import (
	"github.com/timebankhq/timebank-go/shared/contracts"
	"github.com/timebankhq/timebank-go/shared/logging"
	"github.com/timebankhq/timebank-go/shared/metrics"
	"github.com/timebankhq/timebank-go/shared/recovery"
)

// Handler receives every decoded inbound frame in arrival order. Each Conn
// has exactly one handler for its whole lifetime: this is a 1:1 channel, not
// a pub/sub bus. Unrecognized frame types arrive as contracts.UnknownFrame
// so the consumer decides what to ignore.
type Handler func(contracts.Frame)

// Router decodes raw payloads and dispatches them to the single handler.
type Router struct {
	handler Handler
	log     *logging.Logger
	met     *metrics.Metrics
}

// NewRouter creates a router owning handler.
func NewRouter(handler Handler, log *logging.Logger, met *metrics.Metrics) *Router {
	if log == nil {
		log = logging.Nop()
	}
	if met == nil {
		met = metrics.Nop()
	}
	return &Router{handler: handler, log: log, met: met}
}

// Dispatch decodes one raw payload and invokes the handler. Payloads that
// fail to decode are logged and dropped; a panicking handler is contained.
// Neither closes the connection.
func (r *Router) Dispatch(raw []byte) {
	frame, err := contracts.DecodeFrame(raw)
	if err != nil {
		r.log.WithError(err).Warn("dropping undecodable frame")
		r.met.DecodeFailures.Inc()
		return
	}

	// Unknown types collapse into one label value; the metric label set must
	// not grow with whatever type strings the server invents.
	label := frame.FrameType()
	if _, ok := frame.(contracts.UnknownFrame); ok {
		label = "unknown"
	}
	r.met.FramesReceived.WithLabelValues(label).Inc()

	if r.handler == nil {
		return
	}
	recovery.Guard(r.log, "frame_handler", func() {
		r.handler(frame)
	})
}
