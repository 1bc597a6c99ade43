package bookings

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingSucceeded BookingStatus = "SUCCEEDED"
	BookingFailed    BookingStatus = "FAILED"
	BookingCancelled BookingStatus = "CANCELLED"
)

type RideStatus string

const (
	RidePending    RideStatus = "PENDING"
	RideInProgress RideStatus = "IN_PROGRESS"
	RideCompleted  RideStatus = "COMPLETED"
	RideCancelled  RideStatus = "CANCELLED"
)

var bookingNext = map[BookingStatus]map[BookingStatus]bool{
	BookingPending:   {BookingSucceeded: true, BookingFailed: true, BookingCancelled: true},
	BookingSucceeded: {},
	BookingFailed:    {},
	BookingCancelled: {},
}

var rideNext = map[RideStatus]map[RideStatus]bool{
	RidePending:    {RideInProgress: true, RideCancelled: true},
	RideInProgress: {RideCompleted: true, RideCancelled: true},
	RideCompleted:  {},
	RideCancelled:  {},
}

func CanTransitionBooking(from, to BookingStatus) bool {
	return bookingNext[from][to]
}

func CanTransitionRide(from, to RideStatus) bool {
	return rideNext[from][to]
}

// RideTerminal reports whether no further transitions are allowed. A repeated
// transition into the same terminal state is treated as a no-op by callers,
// so redelivered status events do not error.
func RideTerminal(s RideStatus) bool {
	return len(rideNext[s]) == 0
}

func ValidRideStatus(s RideStatus) bool {
	_, ok := rideNext[s]
	return ok
}

func ValidBookingStatus(s BookingStatus) bool {
	_, ok := bookingNext[s]
	return ok
}
