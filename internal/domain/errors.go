package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrExchangeNotFound = errors.New("exchange_not_found")
	ErrExchangeExists   = errors.New("exchange_already_exists")
	ErrAlreadyActioned  = errors.New("action_already_applied")
	ErrInvalidInput     = errors.New("invalid_input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrUnavailable      = errors.New("service_unavailable")
)

// Error helpers
func NewInvalidInputError(field string, reason string) error {
	return fmt.Errorf("%w: %s - %s", ErrInvalidInput, field, reason)
}
