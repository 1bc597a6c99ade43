package replica

import (
	"context"
	"errors"
	"fmt"
	"log"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/giu-carpool/booking-service/internal/bookings"
	kafkax "github.com/giu-carpool/booking-service/internal/kafka"
)

// RideStore is the slice of the replica store the synchronizer writes through.
type RideStore interface {
	UpsertRide(ctx context.Context, ride bookings.RideReplica, mps []bookings.MeetingPoint, replaceMeetingPoints bool) error
	AddPassenger(ctx context.Context, rideID, passengerID int64, name string) (bool, error)
	RemovePassenger(ctx context.Context, rideID, passengerID int64) (bool, error)
	SetStatusCascade(ctx context.Context, rideID int64, status bookings.RideStatus) (*bookings.RideReplica, int64, error)
}

// Service maintains the local, eventually-consistent copy of ride state owned
// by the ride service. Every handler is idempotent: the bus delivers at least
// once and replays must converge to the same replica state.
type Service struct {
	Rides RideStore
	Log   *log.Logger
}

// HandleRideSync applies a `ride-created` or `ride-updated` snapshot.
func (s *Service) HandleRideSync(ctx context.Context, m kafkago.Message) error {
	ev, err := kafkax.Decode[bookings.RideSyncEvent](m)
	if err != nil {
		s.Log.Printf("replica: %v, skipping", err)
		return nil
	}
	if ev.ID == 0 {
		s.Log.Printf("replica: %s without ride id, skipping", m.Topic)
		return nil
	}

	ride := ev.Ride()
	mps, replace := ev.MeetingPointRows()
	if err := s.Rides.UpsertRide(ctx, ride, mps, replace); err != nil {
		return fmt.Errorf("sync ride %d: %w", ride.ID, err)
	}
	s.Log.Printf("replica: ride %d synced", ride.ID)
	return nil
}

// HandlePassengerAdded records a passenger joining a ride and takes one seat.
func (s *Service) HandlePassengerAdded(ctx context.Context, m kafkago.Message) error {
	ev, err := kafkax.Decode[bookings.RidePassengerEvent](m)
	if err != nil {
		s.Log.Printf("replica: %v, skipping", err)
		return nil
	}

	name := ev.PassengerName
	if name == "" {
		name = fmt.Sprintf("User %d", ev.PassengerID)
	}
	added, err := s.Rides.AddPassenger(ctx, ev.RideID, ev.PassengerID, name)
	if errors.Is(err, bookings.ErrRideNotFound) {
		s.Log.Printf("replica: passenger event for unknown ride %d, skipping", ev.RideID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("add passenger %d to ride %d: %w", ev.PassengerID, ev.RideID, err)
	}
	if added {
		s.Log.Printf("replica: passenger %d added to ride %d", ev.PassengerID, ev.RideID)
	}
	return nil
}

// HandlePassengerRemoved records a passenger leaving a ride and frees a seat.
func (s *Service) HandlePassengerRemoved(ctx context.Context, m kafkago.Message) error {
	ev, err := kafkax.Decode[bookings.RidePassengerEvent](m)
	if err != nil {
		s.Log.Printf("replica: %v, skipping", err)
		return nil
	}

	removed, err := s.Rides.RemovePassenger(ctx, ev.RideID, ev.PassengerID)
	if err != nil {
		return fmt.Errorf("remove passenger %d from ride %d: %w", ev.PassengerID, ev.RideID, err)
	}
	if removed {
		s.Log.Printf("replica: passenger %d removed from ride %d", ev.PassengerID, ev.RideID)
	}
	return nil
}

// HandleRideStatus applies the authoritative status from the ride service and
// runs the booking cascade when the ride was cancelled.
func (s *Service) HandleRideStatus(ctx context.Context, m kafkago.Message) error {
	ev, err := kafkax.Decode[bookings.RideStatusEvent](m)
	if err != nil {
		s.Log.Printf("replica: %v, skipping", err)
		return nil
	}
	status := bookings.RideStatus(ev.Status)
	if !bookings.ValidRideStatus(status) {
		s.Log.Printf("replica: unknown status %q for ride %d, skipping", ev.Status, ev.RideID)
		return nil
	}

	_, cancelled, err := s.Rides.SetStatusCascade(ctx, ev.RideID, status)
	if errors.Is(err, bookings.ErrRideNotFound) {
		s.Log.Printf("replica: status for unknown ride %d, skipping", ev.RideID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply status %s to ride %d: %w", status, ev.RideID, err)
	}
	if cancelled > 0 {
		s.Log.Printf("replica: ride %d cancelled, cascaded to %d bookings", ev.RideID, cancelled)
	}
	return nil
}
