package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/timebankhq/timebank-go/internal/domain"
	"github.com/timebankhq/timebank-go/shared/contracts"
	sharederrors "github.com/timebankhq/timebank-go/shared/errors"
	"github.com/timebankhq/timebank-go/shared/logging"
)

// Opener is the handshake entry point: entering an offer's exchange view
// creates the exchange on first visit and reuses it afterwards. Creation is
// de-duplicated per offer id, so concurrent callers (duplicate mount
// effects) issue exactly one create request and all observe its result.
type Opener struct {
	svc domain.ExchangeService
	log *logging.Logger

	mu       sync.Mutex
	inflight map[contracts.ID]*inflightCreate
}

type inflightCreate struct {
	done     chan struct{}
	exchange *domain.Exchange
	err      error
}

// NewOpener creates an Opener.
func NewOpener(svc domain.ExchangeService, log *logging.Logger) *Opener {
	if log == nil {
		log = logging.Nop()
	}
	return &Opener{
		svc:      svc,
		log:      log,
		inflight: make(map[contracts.ID]*inflightCreate),
	}
}

// CreateOrGet returns the exchange for offerID, creating it when the first
// visitor arrives. A concurrent duplicate call waits for the in-flight
// creation instead of double-submitting.
func (o *Opener) CreateOrGet(ctx context.Context, offerID contracts.ID) (*domain.Exchange, error) {
	if offerID == "" {
		return nil, domain.NewInvalidInputError("offer_id", "must not be empty")
	}

	o.mu.Lock()
	if entry, ok := o.inflight[offerID]; ok {
		o.mu.Unlock()
		select {
		case <-entry.done:
			return entry.exchange, entry.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	entry := &inflightCreate{done: make(chan struct{})}
	o.inflight[offerID] = entry
	o.mu.Unlock()

	entry.exchange, entry.err = o.createOrGet(ctx, offerID)

	o.mu.Lock()
	delete(o.inflight, offerID)
	o.mu.Unlock()
	close(entry.done)

	return entry.exchange, entry.err
}

// createOrGet creates the exchange, falling back to a lookup by offer id
// when the server reports it already exists. Only a double failure surfaces.
func (o *Opener) createOrGet(ctx context.Context, offerID contracts.ID) (*domain.Exchange, error) {
	ex, err := o.svc.Create(ctx, offerID)
	if err == nil {
		return ex, nil
	}

	if errors.Is(err, domain.ErrExchangeExists) || sharederrors.IndicatesAlreadyDone(err) {
		o.log.WithField("offer_id", offerID).Debug("exchange already exists, looking up by offer")
		ex, lookupErr := o.svc.GetByOffer(ctx, offerID)
		if lookupErr == nil {
			return ex, nil
		}
		return nil, fmt.Errorf("exchange exists but lookup by offer %s failed: %w", offerID, lookupErr)
	}

	return nil, err
}
