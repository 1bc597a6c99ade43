package bookings

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/giu-carpool/booking-service/internal/auth"
	"github.com/giu-carpool/booking-service/internal/notify"
	"github.com/giu-carpool/booking-service/internal/redisx"
)

type BookingStore interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id int64) (*Booking, error)
	GetWithRide(ctx context.Context, id int64) (*Booking, *RideReplica, error)
	ListByUser(ctx context.Context, userID int64) ([]Booking, error)
	ListAll(ctx context.Context) ([]Booking, error)
	SetStatus(ctx context.Context, id int64, from, to BookingStatus, successful bool) (bool, error)
	Cancel(ctx context.Context, id int64) (bool, error)
	MarkStalePendingFailed(ctx context.Context, cutoff time.Time) (int64, error)
}

type RideStore interface {
	GetRide(ctx context.Context, id int64) (*RideReplica, error)
	HasPassenger(ctx context.Context, rideID, passengerID int64) (bool, error)
	GetMeetingPoint(ctx context.Context, rideID, meetingPointID int64) (*MeetingPoint, error)
	ListAvailable(ctx context.Context) ([]RideReplica, error)
	ListMeetingPoints(ctx context.Context, rideID int64) ([]MeetingPoint, error)
	UpsertRide(ctx context.Context, ride RideReplica, mps []MeetingPoint, replaceMeetingPoints bool) error
	AddPassenger(ctx context.Context, rideID, passengerID int64, name string) (bool, error)
	RemovePassenger(ctx context.Context, rideID, passengerID int64) (bool, error)
	SetStatusCascade(ctx context.Context, rideID int64, status RideStatus) (*RideReplica, int64, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, payload any) error
}

type Notifier interface {
	Notify(ctx context.Context, kind, to, subject string, payload notify.Payload)
}

const (
	subjectConfirmation = "Booking Confirmation - GIU Carpooling"
	subjectCancellation = "Booking Cancellation - GIU Carpooling"
	subjectFailed       = "Booking Failed - GIU Carpooling"
)

// Saga coordinates the asynchronous booking flow: it writes bookings
// optimistically, emits intent events, and reconciles outcome events that
// arrive later through the worker. All collaborators are injected at
// construction so nothing here touches process-wide state.
type Saga struct {
	Bookings  BookingStore
	Rides     RideStore
	Publisher EventPublisher
	Notifier  Notifier
	Cache     *redis.Client // optional; warm status-cache entries are dropped on outcome transitions
	Log       *log.Logger
}

// CreateBooking validates against the local ride replica, persists a PENDING
// booking, publishes the intent event, and returns immediately. The caller
// does not wait for the remote confirmation; a failed publish is compensated
// in the background (the booking flips to FAILED).
func (s *Saga) CreateBooking(ctx context.Context, ident *auth.Identity, rideID, meetingPointID int64) (*Booking, error) {
	if ident == nil {
		return nil, ErrNotAuthenticated
	}

	ride, err := s.Rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !ride.DepartureTime.After(time.Now()) {
		return nil, ErrRideDeparted
	}
	if ride.Status != RidePending {
		return nil, ErrRideUnavailable
	}
	if ride.SeatsAvailable <= 0 {
		return nil, ErrNoSeats
	}
	onRide, err := s.Rides.HasPassenger(ctx, rideID, ident.UserID)
	if err != nil {
		return nil, err
	}
	if onRide {
		return nil, ErrAlreadyPassenger
	}

	mp, err := s.Rides.GetMeetingPoint(ctx, rideID, meetingPointID)
	if err != nil {
		return nil, err
	}

	b := &Booking{
		UserID:         ident.UserID,
		RideID:         rideID,
		MeetingPointID: meetingPointID,
		PriceCents:     mp.PriceCents,
		Status:         BookingPending,
	}
	if err := s.Bookings.Create(ctx, b); err != nil {
		return nil, err
	}

	ev := BookingCreatedEvent{
		BookingID:      b.ID,
		RideID:         b.RideID,
		UserID:         b.UserID,
		Price:          b.PriceCents,
		Status:         string(b.Status),
		MeetingPointID: b.MeetingPointID,
	}
	if err := s.Publisher.Publish(ctx, TopicBookingCreated, BookingKey(b.ID), ev); err != nil {
		// The caller already holds the PENDING booking; compensate off the
		// request path and let them observe FAILED on the next read.
		go s.OnPublishFailure(context.WithoutCancel(ctx), b.ID, ident.Email, err)
	}
	return b, nil
}

// OnPublishFailure is the supervisor for a failed intent publish: it marks the
// booking FAILED and fires a failure notification. Exposed as a method so the
// compensation is drivable from tests.
func (s *Saga) OnPublishFailure(ctx context.Context, bookingID int64, email string, cause error) {
	s.Log.Printf("saga: intent publish for booking %d failed: %v", bookingID, cause)

	applied, err := s.Bookings.SetStatus(ctx, bookingID, BookingPending, BookingFailed, false)
	if err != nil {
		s.Log.Printf("saga: compensating booking %d: %v", bookingID, err)
		return
	}
	if !applied {
		// An outcome event beat us to it; nothing to compensate.
		return
	}
	s.dropStatusCache(ctx, bookingID)
	s.Log.Printf("saga: booking %d marked as failed", bookingID)
	s.notifyOutcome(ctx, bookingID, notify.KindBookingFailed, email, subjectFailed,
		"Your booking could not be completed. Reason: event publish failed")
}

// CancelBooking cancels a booking on behalf of its owner or an admin. The
// local state change is the source of truth for the caller; the cancelled
// event is best-effort.
func (s *Saga) CancelBooking(ctx context.Context, ident *auth.Identity, bookingID int64) (*Booking, error) {
	if ident == nil {
		return nil, ErrNotAuthenticated
	}

	b, ride, err := s.Bookings.GetWithRide(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != ident.UserID && !ident.IsAdmin {
		return nil, ErrNotAuthorized
	}
	if b.Status == BookingCancelled {
		return nil, ErrAlreadyCancelled
	}
	if ride == nil || ride.Status != RidePending {
		return nil, ErrRideNotCancellable
	}

	applied, err := s.Bookings.Cancel(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrAlreadyCancelled
	}
	b.Status = BookingCancelled
	b.Successful = false

	ev := BookingCancelledEvent{BookingID: b.ID, RideID: b.RideID, UserID: b.UserID}
	if err := s.Publisher.Publish(ctx, TopicBookingCancelled, BookingKey(b.ID), ev); err != nil {
		s.Log.Printf("saga: cancelled publish for booking %d failed: %v", b.ID, err)
	}

	if s.Notifier != nil {
		s.Notifier.Notify(ctx, notify.KindBooking, ident.Email, subjectCancellation, notify.Payload{
			Username:  ident.Email,
			Date:      ride.DepartureTime.Format(time.RFC1123),
			FromPlace: "Meeting Point",
			ToPlace:   destination(ride),
			Details:   "Your booking has been cancelled.",
		})
	}
	return b, nil
}

// UpdateRideStatus applies a driver-initiated status change to the local
// replica. The authoritative transition still happens remotely; this only
// covers rides the requester drives, and it obeys the same transition rules
// the synchronizer enforces.
func (s *Saga) UpdateRideStatus(ctx context.Context, ident *auth.Identity, rideID int64, status RideStatus) (*RideReplica, error) {
	if ident == nil {
		return nil, ErrNotAuthenticated
	}
	if !ValidRideStatus(status) {
		return nil, fmt.Errorf("unknown ride status %q: %w", status, ErrInvalidTransition)
	}

	ride, err := s.Rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != ident.UserID {
		return nil, ErrNotAuthorized
	}
	if ride.Status == status && RideTerminal(status) {
		// Idempotent retry of a terminal transition: tolerate, change nothing.
		return ride, nil
	}
	if !CanTransitionRide(ride.Status, status) {
		return nil, invalidRideTransition(ride.Status, status)
	}

	updated, cancelled, err := s.Rides.SetStatusCascade(ctx, rideID, status)
	if err != nil {
		return nil, err
	}
	if cancelled > 0 {
		s.Log.Printf("saga: ride %d cancelled, cascaded to %d bookings", rideID, cancelled)
	}

	ev := RideStatusEvent{RideID: updated.ID, Status: string(updated.Status), DriverID: updated.DriverID}
	if err := s.Publisher.Publish(ctx, TopicRideStatusChanged, RideKey(updated.ID), ev); err != nil {
		s.Log.Printf("saga: ride-status publish for ride %d failed: %v", updated.ID, err)
	}
	return updated, nil
}

// HandlePassengerAdded closes the saga successfully. Redelivered or late
// events hit the status guard and become no-ops.
func (s *Saga) HandlePassengerAdded(ctx context.Context, bookingID int64, email string) error {
	applied, err := s.Bookings.SetStatus(ctx, bookingID, BookingPending, BookingSucceeded, true)
	if err != nil {
		return err
	}
	if !applied {
		s.Log.Printf("saga: no pending booking %d for passenger-added, skipping", bookingID)
		return nil
	}
	s.dropStatusCache(ctx, bookingID)
	s.Log.Printf("saga: booking %d marked as succeeded", bookingID)
	s.notifyOutcome(ctx, bookingID, notify.KindBooking, email, subjectConfirmation, "")
	return nil
}

// HandlePassengerAddFailed closes the saga with a failure.
func (s *Saga) HandlePassengerAddFailed(ctx context.Context, bookingID int64, email, reason string) error {
	applied, err := s.Bookings.SetStatus(ctx, bookingID, BookingPending, BookingFailed, false)
	if err != nil {
		return err
	}
	if !applied {
		s.Log.Printf("saga: no pending booking %d for passenger-add-failed, skipping", bookingID)
		return nil
	}
	s.dropStatusCache(ctx, bookingID)
	s.Log.Printf("saga: booking %d marked as failed: %s", bookingID, reason)
	s.notifyOutcome(ctx, bookingID, notify.KindBookingFailed, email, subjectFailed,
		"Your booking could not be completed. Reason: "+reason)
	return nil
}

// SweepStalePending fails PENDING bookings older than the deadline. Covers the
// gap where the process dies between the local write and the intent publish:
// no outcome event will ever close those bookings.
func (s *Saga) SweepStalePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.Bookings.MarkStalePendingFailed(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.Log.Printf("saga: sweep failed %d stale pending bookings", n)
	}
	return n, nil
}

// dropStatusCache evicts a warm status-cache entry after the worker moved the
// booking, so the API does not serve a stale PENDING for the cache TTL.
func (s *Saga) dropStatusCache(ctx context.Context, bookingID int64) {
	if s.Cache == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyBookingStatus, bookingID)
	if err := s.Cache.Del(ctx, key).Err(); err != nil {
		s.Log.Printf("saga: drop status cache for booking %d: %v", bookingID, err)
	}
}

func (s *Saga) notifyOutcome(ctx context.Context, bookingID int64, kind, email, subject, details string) {
	if s.Notifier == nil || email == "" {
		return
	}
	_, ride, err := s.Bookings.GetWithRide(ctx, bookingID)
	if err != nil || ride == nil {
		s.Log.Printf("saga: notification context for booking %d unavailable: %v", bookingID, err)
		return
	}
	s.Notifier.Notify(ctx, kind, email, subject, notify.Payload{
		Username:  email,
		Date:      ride.DepartureTime.Format(time.RFC1123),
		FromPlace: "Meeting Point",
		ToPlace:   destination(ride),
		Details:   details,
	})
}

func destination(ride *RideReplica) string {
	if ride.ToGIU {
		return "GIU"
	}
	return "Home Area"
}
