package api

import (
	"context"
	"fmt"

	"github.com/timebankhq/timebank-go/internal/domain"
	"github.com/timebankhq/timebank-go/shared/contracts"
	"github.com/timebankhq/timebank-go/shared/errors"
)

// ExchangeService implements domain.ExchangeService over the REST API.
type ExchangeService struct {
	client *Client
}

// NewExchangeService creates the exchange collaborator service.
func NewExchangeService(client *Client) *ExchangeService {
	return &ExchangeService{client: client}
}

var _ domain.ExchangeService = (*ExchangeService)(nil)

type createExchangeRequest struct {
	OfferID contracts.ID `json:"offer_id"`
}

type proposeDateRequest struct {
	ProposedDate string `json:"proposed_date"`
	ProposedTime string `json:"proposed_time"`
}

type ratingRequest struct {
	Score   int    `json:"score"`
	Comment string `json:"comment,omitempty"`
}

// Create creates an exchange for the offer. A conflict means an exchange
// for this offer already exists and maps to domain.ErrExchangeExists so the
// caller can fall back to a lookup.
func (s *ExchangeService) Create(ctx context.Context, offerID contracts.ID) (*domain.Exchange, error) {
	var ex domain.Exchange
	err := s.client.post(ctx, "create_exchange", "/api/exchanges/", createExchangeRequest{OfferID: offerID}, &ex)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeConflict) || errors.IsType(err, errors.ErrorTypeDuplicate) {
			return nil, fmt.Errorf("%w: %v", domain.ErrExchangeExists, err)
		}
		return nil, err
	}
	return &ex, nil
}

// Get fetches an exchange by id.
func (s *ExchangeService) Get(ctx context.Context, id contracts.ID) (*domain.Exchange, error) {
	var ex domain.Exchange
	err := s.client.get(ctx, "get_exchange", fmt.Sprintf("/api/exchanges/%s/", id), &ex)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeNotFound) {
			return nil, fmt.Errorf("%w: %v", domain.ErrExchangeNotFound, err)
		}
		return nil, err
	}
	return &ex, nil
}

// GetByOffer fetches the exchange attached to an offer.
func (s *ExchangeService) GetByOffer(ctx context.Context, offerID contracts.ID) (*domain.Exchange, error) {
	var ex domain.Exchange
	err := s.client.get(ctx, "get_exchange_by_offer", fmt.Sprintf("/api/exchanges/by-offer/%s/", offerID), &ex)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeNotFound) {
			return nil, fmt.Errorf("%w: %v", domain.ErrExchangeNotFound, err)
		}
		return nil, err
	}
	return &ex, nil
}

// Accept accepts the exchange request.
func (s *ExchangeService) Accept(ctx context.Context, id contracts.ID) error {
	return s.mutate(ctx, "accept_exchange", fmt.Sprintf("/api/exchanges/%s/accept/", id), nil)
}

// Reject rejects the exchange request.
func (s *ExchangeService) Reject(ctx context.Context, id contracts.ID) error {
	return s.mutate(ctx, "reject_exchange", fmt.Sprintf("/api/exchanges/%s/reject/", id), nil)
}

// ProposeDate proposes a date and time.
func (s *ExchangeService) ProposeDate(ctx context.Context, id contracts.ID, date, timeOfDay string) error {
	return s.mutate(ctx, "propose_date", fmt.Sprintf("/api/exchanges/%s/propose-date/", id),
		proposeDateRequest{ProposedDate: date, ProposedTime: timeOfDay})
}

// ConfirmCompletion confirms this side's completion.
func (s *ExchangeService) ConfirmCompletion(ctx context.Context, id contracts.ID) error {
	return s.mutate(ctx, "confirm_completion", fmt.Sprintf("/api/exchanges/%s/confirm-completion/", id), nil)
}

// SubmitRating submits a rating for the other participant.
func (s *ExchangeService) SubmitRating(ctx context.Context, rating domain.Rating) error {
	return s.mutate(ctx, "submit_rating", fmt.Sprintf("/api/exchanges/%s/rating/", rating.ExchangeID),
		ratingRequest{Score: rating.Score, Comment: rating.Comment})
}

// mutate performs an action request. Conflicts mean the action already
// happened server side and map to domain.ErrAlreadyActioned so callers can
// treat them as informational.
func (s *ExchangeService) mutate(ctx context.Context, operation, path string, body interface{}) error {
	err := s.client.post(ctx, operation, path, body, nil)
	if err == nil {
		return nil
	}
	if errors.IsType(err, errors.ErrorTypeConflict) || errors.IsType(err, errors.ErrorTypeDuplicate) {
		return fmt.Errorf("%w: %v", domain.ErrAlreadyActioned, err)
	}
	if errors.IsType(err, errors.ErrorTypeNotFound) {
		return fmt.Errorf("%w: %v", domain.ErrExchangeNotFound, err)
	}
	return err
}
