package redisx

import "time"

const (
	// Booking status cache: booking_status:{booking_id} -> {"status":"...","successful":...}
	KeyBookingStatus = "booking_status:%d"

	// Available-rides cache for the listing endpoint
	KeyAvailableRides = "rides:available"
)

var (
	TTLStatusCache    = 5 * time.Minute
	TTLAvailableRides = 30 * time.Second
)
