package bookings

import "time"

// Wire payloads. The ride service defines the inbound contract; outbound
// payloads mirror what the downstream ride service consumes.

type BookingCreatedEvent struct {
	BookingID      int64  `json:"booking_id"`
	RideID         int64  `json:"ride_id"`
	UserID         int64  `json:"user_id"`
	Price          int    `json:"price"`
	Status         string `json:"status"`
	MeetingPointID int64  `json:"meeting_point_id"`
}

type BookingCancelledEvent struct {
	BookingID int64 `json:"booking_id"`
	RideID    int64 `json:"ride_id"`
	UserID    int64 `json:"user_id"`
}

type RideStatusEvent struct {
	RideID   int64  `json:"ride_id"`
	Status   string `json:"status"`
	DriverID int64  `json:"driver_id,omitempty"`
}

// PassengerOutcomeEvent closes the booking saga: `passenger-added` carries the
// passenger's email, `passenger-add-failed` carries a reason.
type PassengerOutcomeEvent struct {
	BookingID int64  `json:"booking_id"`
	Email     string `json:"email,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type RidePassengerEvent struct {
	RideID        int64  `json:"ride_id"`
	PassengerID   int64  `json:"passenger_id"`
	PassengerName string `json:"passenger_name,omitempty"`
}

// RideSyncEvent is the ride snapshot carried by `ride-created` and
// `ride-updated`. Older ride-service versions emit camelCase field names;
// both conventions are accepted here, and canonical snake_case wins when a
// field is present in both. Handlers never see the raw dual-name form.
type RideSyncEvent struct {
	ID int64 `json:"id"`

	DriverID       *int64             `json:"driver_id"`
	DepartureTime  *time.Time         `json:"departure_time"`
	SeatsAvailable *int               `json:"seats_available"`
	Status         string             `json:"status"`
	GirlsOnly      *bool              `json:"girls_only"`
	ToGIU          *bool              `json:"to_giu"`
	AreaID         *int64             `json:"area_id"`
	MeetingPoints  []MeetingPointSync `json:"ride_meeting_points"`

	LegacyDriverID       *int64             `json:"driverId"`
	LegacyDepartureTime  *time.Time         `json:"departureTime"`
	LegacySeatsAvailable *int               `json:"seatsAvailable"`
	LegacyGirlsOnly      *bool              `json:"girlsOnly"`
	LegacyToGIU          *bool              `json:"toGIU"`
	LegacyAreaID         *int64             `json:"areaId"`
	LegacyMeetingPoints  []MeetingPointSync `json:"meetingPoints"`
}

type MeetingPointSync struct {
	MeetingPointID       *int64 `json:"meeting_point_id"`
	LegacyMeetingPointID *int64 `json:"meetingPointId"`
	Price                int    `json:"price"`
	OrderIndex           *int   `json:"order_index"`
}

func coalesce[T any](canonical, legacy *T) (v T) {
	if canonical != nil {
		return *canonical
	}
	if legacy != nil {
		return *legacy
	}
	return v
}

// Ride normalizes the snapshot into a replica row.
func (e *RideSyncEvent) Ride() RideReplica {
	return RideReplica{
		ID:             e.ID,
		DriverID:       coalesce(e.DriverID, e.LegacyDriverID),
		DepartureTime:  coalesce(e.DepartureTime, e.LegacyDepartureTime),
		SeatsAvailable: coalesce(e.SeatsAvailable, e.LegacySeatsAvailable),
		Status:         RideStatus(e.Status),
		GirlsOnly:      coalesce(e.GirlsOnly, e.LegacyGirlsOnly),
		ToGIU:          coalesce(e.ToGIU, e.LegacyToGIU),
		AreaID:         coalesce(e.AreaID, e.LegacyAreaID),
	}
}

// MeetingPointRows normalizes the meeting-point list. ok is false when the
// snapshot carries no list at all, in which case the existing rows are kept.
// OrderIndex comes from array position unless the element supplies one.
func (e *RideSyncEvent) MeetingPointRows() (rows []MeetingPoint, ok bool) {
	src := e.MeetingPoints
	if src == nil {
		src = e.LegacyMeetingPoints
	}
	if src == nil {
		return nil, false
	}
	rows = make([]MeetingPoint, 0, len(src))
	for i, mp := range src {
		idx := i
		if mp.OrderIndex != nil {
			idx = *mp.OrderIndex
		}
		rows = append(rows, MeetingPoint{
			RideID:         e.ID,
			MeetingPointID: coalesce(mp.MeetingPointID, mp.LegacyMeetingPointID),
			PriceCents:     mp.Price,
			OrderIndex:     idx,
		})
	}
	return rows, true
}
