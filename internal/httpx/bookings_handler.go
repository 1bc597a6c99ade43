package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/giu-carpool/booking-service/internal/auth"
	"github.com/giu-carpool/booking-service/internal/bookings"
	"github.com/giu-carpool/booking-service/internal/redisx"
)

type BookingsHandler struct {
	Saga     *bookings.Saga
	Bookings bookings.BookingStore
	Rides    bookings.RideStore
	Redis    *redis.Client
}

type createBookingReq struct {
	RideID         int64 `json:"ride_id"`
	MeetingPointID int64 `json:"meeting_point_id"`
}

type updateRideStatusReq struct {
	Status string `json:"status"`
}

type bookingResp struct {
	ID             int64  `json:"id"`
	UserID         int64  `json:"user_id"`
	RideID         int64  `json:"ride_id"`
	MeetingPointID int64  `json:"meeting_point_id"`
	Price          int    `json:"price"`
	Status         string `json:"status"`
	Successful     bool   `json:"successful"`
}

type rideResp struct {
	ID             int64              `json:"id"`
	DriverID       int64              `json:"driver_id"`
	DepartureTime  time.Time          `json:"departure_time"`
	SeatsAvailable int                `json:"seats_available"`
	Status         string             `json:"status"`
	GirlsOnly      bool               `json:"girls_only"`
	ToGIU          bool               `json:"to_giu"`
	AreaID         int64              `json:"area_id"`
	MeetingPoints  []meetingPointResp `json:"meeting_points,omitempty"`
}

type meetingPointResp struct {
	MeetingPointID int64 `json:"meeting_point_id"`
	Price          int   `json:"price"`
	OrderIndex     int   `json:"order_index"`
}

func (h *BookingsHandler) Register(r *chi.Mux) {
	r.Post("/bookings", h.createBooking)
	r.Get("/bookings", h.getBookings)
	r.Get("/bookings/all", h.viewBookings)
	r.Get("/bookings/{id}", h.getBooking)
	r.Post("/bookings/{id}/cancel", h.cancelBooking)
	r.Get("/rides/available", h.getAvailableRides)
	r.Post("/rides/{id}/status", h.updateRideStatus)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, bookings.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, bookings.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, bookings.ErrBookingNotFound),
		errors.Is(err, bookings.ErrRideNotFound),
		errors.Is(err, bookings.ErrMeetingPointNotFound):
		return http.StatusNotFound
	case errors.Is(err, bookings.ErrAlreadyCancelled),
		errors.Is(err, bookings.ErrRideNotCancellable),
		errors.Is(err, bookings.ErrInvalidTransition),
		errors.Is(err, bookings.ErrRideUnavailable),
		errors.Is(err, bookings.ErrRideDeparted),
		errors.Is(err, bookings.ErrNoSeats),
		errors.Is(err, bookings.ErrAlreadyPassenger):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func toBookingResp(b *bookings.Booking) bookingResp {
	return bookingResp{
		ID:             b.ID,
		UserID:         b.UserID,
		RideID:         b.RideID,
		MeetingPointID: b.MeetingPointID,
		Price:          b.PriceCents,
		Status:         string(b.Status),
		Successful:     b.Successful,
	}
}

func (h *BookingsHandler) createBooking(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())

	var req createBookingReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.RideID == 0 || req.MeetingPointID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	b, err := h.Saga.CreateBooking(ctx, ident, req.RideID, req.MeetingPointID)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, b)

	// 202: the saga is asynchronous, the booking is only PENDING here.
	writeJSON(w, http.StatusAccepted, toBookingResp(b))
}

func (h *BookingsHandler) cancelBooking(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	b, err := h.Saga.CancelBooking(ctx, ident, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, b)
	writeJSON(w, http.StatusOK, toBookingResp(b))
}

func (h *BookingsHandler) getBooking(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())
	if ident == nil {
		writeErr(w, bookings.ErrNotAuthenticated)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// status cache first, DB is the fallback and the truth. The cached
	// payload carries user_id, so the ownership check guards both paths.
	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyBookingStatus, id)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			var cached bookingResp
			if json.Unmarshal([]byte(s), &cached) == nil {
				if cached.UserID != ident.UserID && !ident.IsAdmin {
					writeErr(w, bookings.ErrNotAuthorized)
					return
				}
				writeJSON(w, http.StatusOK, cached)
				return
			}
		}
	}

	b, err := h.Bookings.Get(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if b.UserID != ident.UserID && !ident.IsAdmin {
		writeErr(w, bookings.ErrNotAuthorized)
		return
	}
	h.cacheStatus(ctx, b)
	writeJSON(w, http.StatusOK, toBookingResp(b))
}

func (h *BookingsHandler) getBookings(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())
	if ident == nil {
		writeErr(w, bookings.ErrNotAuthenticated)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	bs, err := h.Bookings.ListByUser(ctx, ident.UserID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResps(bs))
}

// viewBookings lists every booking; admin only.
func (h *BookingsHandler) viewBookings(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())
	if ident == nil {
		writeErr(w, bookings.ErrNotAuthenticated)
		return
	}
	if !ident.IsAdmin {
		writeErr(w, bookings.ErrNotAuthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	bs, err := h.Bookings.ListAll(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResps(bs))
}

func (h *BookingsHandler) getAvailableRides(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, redisx.KeyAvailableRides).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	rides, err := h.Rides.ListAvailable(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}

	out := make([]rideResp, 0, len(rides))
	for _, ride := range rides {
		mps, err := h.Rides.ListMeetingPoints(ctx, ride.ID)
		if err != nil {
			writeErr(w, err)
			return
		}
		resp := rideResp{
			ID:             ride.ID,
			DriverID:       ride.DriverID,
			DepartureTime:  ride.DepartureTime,
			SeatsAvailable: ride.SeatsAvailable,
			Status:         string(ride.Status),
			GirlsOnly:      ride.GirlsOnly,
			ToGIU:          ride.ToGIU,
			AreaID:         ride.AreaID,
		}
		for _, mp := range mps {
			resp.MeetingPoints = append(resp.MeetingPoints, meetingPointResp{
				MeetingPointID: mp.MeetingPointID,
				Price:          mp.PriceCents,
				OrderIndex:     mp.OrderIndex,
			})
		}
		out = append(out, resp)
	}

	if h.Redis != nil {
		if b, err := json.Marshal(out); err == nil {
			_ = h.Redis.Set(ctx, redisx.KeyAvailableRides, b, redisx.TTLAvailableRides).Err()
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *BookingsHandler) updateRideStatus(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req updateRideStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing status"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ride, err := h.Saga.UpdateRideStatus(ctx, ident, id, bookings.RideStatus(req.Status))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rideResp{
		ID:             ride.ID,
		DriverID:       ride.DriverID,
		DepartureTime:  ride.DepartureTime,
		SeatsAvailable: ride.SeatsAvailable,
		Status:         string(ride.Status),
		GirlsOnly:      ride.GirlsOnly,
		ToGIU:          ride.ToGIU,
		AreaID:         ride.AreaID,
	})
}

func (h *BookingsHandler) cacheStatus(ctx context.Context, b *bookings.Booking) {
	if h.Redis == nil {
		return
	}
	body, err := json.Marshal(toBookingResp(b))
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyBookingStatus, b.ID)
	_ = h.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err()
}

func toBookingResps(bs []bookings.Booking) []bookingResp {
	out := make([]bookingResp, 0, len(bs))
	for i := range bs {
		out = append(out, toBookingResp(&bs[i]))
	}
	return out
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
