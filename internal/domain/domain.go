package domain

import (
	"context"
	"time"

	"github.com/timebankhq/timebank-go/shared/contracts"
)

// ExchangeStatus enumerates the server-owned lifecycle of a handshake.
type ExchangeStatus string

const (
	StatusPending    ExchangeStatus = "PENDING"
	StatusAccepted   ExchangeStatus = "ACCEPTED"
	StatusInProgress ExchangeStatus = "IN_PROGRESS"
	StatusCompleted  ExchangeStatus = "COMPLETED"
	StatusCancelled  ExchangeStatus = "CANCELLED"
	StatusRejected   ExchangeStatus = "REJECTED"
)

// Participant identifies one side of an exchange.
type Participant struct {
	UserID      contracts.ID `json:"user_id"`
	DisplayName string       `json:"display_name"`
	AvatarURL   string       `json:"avatar_url,omitempty"`
}

// Exchange is the client-local projection of a server-owned exchange.
// The mutable fields (status, proposed date/time, confirmation flags,
// completion timestamp) are overwritten wholesale by every authoritative
// push; the rest only changes through request/response refreshes.
type Exchange struct {
	ID         contracts.ID `json:"id"`
	OfferID    contracts.ID `json:"offer_id"`
	OfferTitle string       `json:"offer_title"`
	Hours      float64      `json:"hours"`

	Requester Participant `json:"requester"`
	Provider  Participant `json:"provider"`

	Status             ExchangeStatus `json:"status"`
	ProposedDate       *string        `json:"proposed_date"`
	ProposedTime       *string        `json:"proposed_time"`
	RequesterConfirmed bool           `json:"requester_confirmed"`
	ProviderConfirmed  bool           `json:"provider_confirmed"`
	CompletedAt        *time.Time     `json:"completed_at"`

	CreatedAt time.Time `json:"created_at"`
}

// ApplyDelta overwrites the mutable fields from an authoritative push,
// leaving offer details and participant identities untouched.
func (e *Exchange) ApplyDelta(d contracts.ExchangeDelta) {
	e.Status = ExchangeStatus(d.Status)
	e.ProposedDate = d.ProposedDate
	e.ProposedTime = d.ProposedTime
	e.RequesterConfirmed = d.RequesterConfirmed
	e.ProviderConfirmed = d.ProviderConfirmed
	e.CompletedAt = d.CompletedAt
}

// Rating is a post-completion review of the other participant.
type Rating struct {
	ExchangeID contracts.ID `json:"exchange_id"`
	Score      int          `json:"score"`
	Comment    string       `json:"comment,omitempty"`
}

// ExchangeService is the request/response collaborator surface. All
// user-initiated actions go through here, never through the socket.
type ExchangeService interface {
	Create(ctx context.Context, offerID contracts.ID) (*Exchange, error)
	Get(ctx context.Context, id contracts.ID) (*Exchange, error)
	GetByOffer(ctx context.Context, offerID contracts.ID) (*Exchange, error)

	Accept(ctx context.Context, id contracts.ID) error
	Reject(ctx context.Context, id contracts.ID) error
	ProposeDate(ctx context.Context, id contracts.ID, date, timeOfDay string) error
	ConfirmCompletion(ctx context.Context, id contracts.ID) error
	SubmitRating(ctx context.Context, rating Rating) error
}
