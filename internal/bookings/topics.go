package bookings

import "strconv"

// Outbound topics (this service produces).
const (
	TopicBookingCreated    = "booking-created-intent"
	TopicBookingCancelled  = "booking-cancelled"
	TopicRideStatusChanged = "ride-status-changed"
)

// Inbound topics (produced by the ride service).
const (
	TopicPassengerAdded           = "passenger-added"
	TopicPassengerAddFailed       = "passenger-add-failed"
	TopicRideCreated              = "ride-created"
	TopicRideUpdated              = "ride-updated"
	TopicPassengerAddedToRide     = "passenger-added-to-ride"
	TopicPassengerRemovedFromRide = "passenger-removed-from-ride"
)

// InboundTopics is the full subscription set for the worker. It includes
// ride-status-changed on purpose: the ride service produces it, but this
// service does too on driver-initiated changes, so the worker re-consumes
// its own events. The handler applies those as same-status no-ops.
var InboundTopics = []string{
	TopicPassengerAdded,
	TopicPassengerAddFailed,
	TopicRideCreated,
	TopicRideUpdated,
	TopicPassengerAddedToRide,
	TopicPassengerRemovedFromRide,
	TopicRideStatusChanged,
}

// Partition keys: every event for one booking (or one ride) must land on the
// same partition so per-entity ordering holds.
func BookingKey(bookingID int64) []byte { return []byte(strconv.FormatInt(bookingID, 10)) }
func RideKey(rideID int64) []byte       { return []byte(strconv.FormatInt(rideID, 10)) }
