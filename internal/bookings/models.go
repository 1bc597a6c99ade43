package bookings

import "time"

type Booking struct {
	ID             int64
	UserID         int64
	RideID         int64
	MeetingPointID int64
	PriceCents     int
	Status         BookingStatus // see status.go
	Successful     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RideReplica mirrors a ride owned by the ride service. The id is the remote
// ride's id; rows are written only by the replica synchronizer and by
// driver-initiated status updates.
type RideReplica struct {
	ID             int64
	DriverID       int64
	DepartureTime  time.Time
	SeatsAvailable int
	Status         RideStatus
	GirlsOnly      bool
	ToGIU          bool
	AreaID         int64
}

type MeetingPoint struct {
	ID             int64
	RideID         int64
	MeetingPointID int64 // id of the meeting point in the ride service
	PriceCents     int
	OrderIndex     int
}

type Passenger struct {
	ID            int64
	RideID        int64
	PassengerID   int64
	PassengerName string
}
