package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound           = errors.New("record not found")
	ErrEditConflict             = errors.New("edit conflict")
	ErrSeatUnavailable          = errors.New("seat is not available")
	ErrSeatNotFound             = errors.New("seat does not exist in showtime")
	ErrInvalidPromotion         = errors.New("promotion is not applicable to this order")
	ErrUnauthorized             = errors.New("authentication required")
	ErrForbidden                = errors.New("not allowed to access this resource")
	ErrInvalidTransition        = errors.New("invalid state transition")
	ErrProviderSignatureInvalid = errors.New("payment provider signature is invalid")
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
	ErrDuplicateBookingCode     = errors.New("booking code already exists")
)

// SeatUnavailableError names the first seat that blocked a reservation.
type SeatUnavailableError struct {
	SeatNumber string
}

func (e *SeatUnavailableError) Error() string {
	return fmt.Sprintf("seat %s is not available", e.SeatNumber)
}

func (e *SeatUnavailableError) Unwrap() error {
	return ErrSeatUnavailable
}
