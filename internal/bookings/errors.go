package bookings

import (
	"errors"
	"fmt"
)

// Validation errors surface to the caller with no state mutated.
var (
	ErrRideNotFound         = errors.New("ride not found")
	ErrRideDeparted         = errors.New("ride has already departed")
	ErrRideUnavailable      = errors.New("ride is not available")
	ErrNoSeats              = errors.New("no seats available")
	ErrAlreadyPassenger     = errors.New("passenger already added to this ride")
	ErrMeetingPointNotFound = errors.New("meeting point not found for this ride")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrAlreadyCancelled     = errors.New("booking is already cancelled")
	ErrRideNotCancellable   = errors.New("cannot cancel booking for a ride that is already in progress or completed")
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotAuthorized    = errors.New("not authorized")
)

var ErrInvalidTransition = errors.New("invalid status transition")

func invalidRideTransition(from, to RideStatus) error {
	switch from {
	case RideCompleted:
		return fmt.Errorf("cannot change status of a completed ride: %w", ErrInvalidTransition)
	case RideCancelled:
		return fmt.Errorf("cannot change status of a cancelled ride: %w", ErrInvalidTransition)
	}
	return fmt.Errorf("cannot move ride from %s to %s: %w", from, to, ErrInvalidTransition)
}
