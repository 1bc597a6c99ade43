package httpx

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giu-carpool/booking-service/internal/auth"
	"github.com/giu-carpool/booking-service/internal/bookings"
	"github.com/giu-carpool/booking-service/internal/redisx"
)

type stubBookingStore struct {
	getFn        func(ctx context.Context, id int64) (*bookings.Booking, error)
	listByUserFn func(ctx context.Context, userID int64) ([]bookings.Booking, error)
	listAllFn    func(ctx context.Context) ([]bookings.Booking, error)
	createFn     func(ctx context.Context, b *bookings.Booking) error
}

func (s *stubBookingStore) Create(ctx context.Context, b *bookings.Booking) error {
	return s.createFn(ctx, b)
}
func (s *stubBookingStore) Get(ctx context.Context, id int64) (*bookings.Booking, error) {
	return s.getFn(ctx, id)
}
func (s *stubBookingStore) GetWithRide(ctx context.Context, id int64) (*bookings.Booking, *bookings.RideReplica, error) {
	return nil, nil, bookings.ErrBookingNotFound
}
func (s *stubBookingStore) ListByUser(ctx context.Context, userID int64) ([]bookings.Booking, error) {
	return s.listByUserFn(ctx, userID)
}
func (s *stubBookingStore) ListAll(ctx context.Context) ([]bookings.Booking, error) {
	return s.listAllFn(ctx)
}
func (s *stubBookingStore) SetStatus(ctx context.Context, id int64, from, to bookings.BookingStatus, successful bool) (bool, error) {
	return false, nil
}
func (s *stubBookingStore) Cancel(ctx context.Context, id int64) (bool, error) { return false, nil }
func (s *stubBookingStore) MarkStalePendingFailed(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type stubRideStore struct {
	getRideFn           func(ctx context.Context, id int64) (*bookings.RideReplica, error)
	hasPassengerFn      func(ctx context.Context, rideID, passengerID int64) (bool, error)
	getMeetingPointFn   func(ctx context.Context, rideID, meetingPointID int64) (*bookings.MeetingPoint, error)
	listAvailableFn     func(ctx context.Context) ([]bookings.RideReplica, error)
	listMeetingPointsFn func(ctx context.Context, rideID int64) ([]bookings.MeetingPoint, error)
}

func (s *stubRideStore) GetRide(ctx context.Context, id int64) (*bookings.RideReplica, error) {
	return s.getRideFn(ctx, id)
}
func (s *stubRideStore) HasPassenger(ctx context.Context, rideID, passengerID int64) (bool, error) {
	return s.hasPassengerFn(ctx, rideID, passengerID)
}
func (s *stubRideStore) GetMeetingPoint(ctx context.Context, rideID, meetingPointID int64) (*bookings.MeetingPoint, error) {
	return s.getMeetingPointFn(ctx, rideID, meetingPointID)
}
func (s *stubRideStore) ListAvailable(ctx context.Context) ([]bookings.RideReplica, error) {
	return s.listAvailableFn(ctx)
}
func (s *stubRideStore) ListMeetingPoints(ctx context.Context, rideID int64) ([]bookings.MeetingPoint, error) {
	return s.listMeetingPointsFn(ctx, rideID)
}
func (s *stubRideStore) UpsertRide(ctx context.Context, ride bookings.RideReplica, mps []bookings.MeetingPoint, replace bool) error {
	return nil
}
func (s *stubRideStore) AddPassenger(ctx context.Context, rideID, passengerID int64, name string) (bool, error) {
	return false, nil
}
func (s *stubRideStore) RemovePassenger(ctx context.Context, rideID, passengerID int64) (bool, error) {
	return false, nil
}
func (s *stubRideStore) SetStatusCascade(ctx context.Context, rideID int64, status bookings.RideStatus) (*bookings.RideReplica, int64, error) {
	return nil, 0, bookings.ErrRideNotFound
}

type noopPublisher struct{}

func (noopPublisher) Publish(ctx context.Context, topic string, key []byte, payload any) error {
	return nil
}

// asUser injects an identity the way the auth middleware would.
func asUser(ident *auth.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ident != nil {
				r = r.WithContext(auth.WithIdentity(r.Context(), ident))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newTestRouter(h *BookingsHandler, ident *auth.Identity) *chi.Mux {
	r := chi.NewRouter()
	r.Use(asUser(ident))
	h.Register(r)
	return r
}

func newTestHandler(bs bookings.BookingStore, rs bookings.RideStore) *BookingsHandler {
	saga := &bookings.Saga{
		Bookings:  bs,
		Rides:     rs,
		Publisher: noopPublisher{},
		Log:       log.New(io.Discard, "", 0),
	}
	return &BookingsHandler{Saga: saga, Bookings: bs, Rides: rs}
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateBookingEndpoint(t *testing.T) {
	rides := &stubRideStore{
		getRideFn: func(ctx context.Context, id int64) (*bookings.RideReplica, error) {
			return &bookings.RideReplica{
				ID:             id,
				DriverID:       3,
				DepartureTime:  time.Now().Add(time.Hour),
				SeatsAvailable: 2,
				Status:         bookings.RidePending,
			}, nil
		},
		hasPassengerFn: func(ctx context.Context, rideID, passengerID int64) (bool, error) {
			return false, nil
		},
		getMeetingPointFn: func(ctx context.Context, rideID, meetingPointID int64) (*bookings.MeetingPoint, error) {
			return &bookings.MeetingPoint{RideID: rideID, MeetingPointID: meetingPointID, PriceCents: 100}, nil
		},
	}
	store := &stubBookingStore{
		createFn: func(ctx context.Context, b *bookings.Booking) error {
			b.ID = 1
			return nil
		},
	}
	r := newTestRouter(newTestHandler(store, rides), &auth.Identity{UserID: 1, Email: "p@example.com"})

	rec := do(t, r, http.MethodPost, "/bookings", `{"ride_id": 10, "meeting_point_id": 5}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{
		"id": 1, "user_id": 1, "ride_id": 10, "meeting_point_id": 5,
		"price": 100, "status": "PENDING", "successful": false
	}`, rec.Body.String())
}

func TestCreateBookingEndpoint_Unauthenticated(t *testing.T) {
	r := newTestRouter(newTestHandler(&stubBookingStore{}, &stubRideStore{}), nil)

	rec := do(t, r, http.MethodPost, "/bookings", `{"ride_id": 10, "meeting_point_id": 5}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateBookingEndpoint_BadRequests(t *testing.T) {
	r := newTestRouter(newTestHandler(&stubBookingStore{}, &stubRideStore{}), &auth.Identity{UserID: 1})

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/bookings", `{not json`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/bookings", `{"ride_id": 10}`).Code)
}

func TestCreateBookingEndpoint_NoSeatsConflict(t *testing.T) {
	rides := &stubRideStore{
		getRideFn: func(ctx context.Context, id int64) (*bookings.RideReplica, error) {
			return &bookings.RideReplica{
				ID:            id,
				DepartureTime: time.Now().Add(time.Hour),
				Status:        bookings.RidePending,
			}, nil
		},
	}
	r := newTestRouter(newTestHandler(&stubBookingStore{}, rides), &auth.Identity{UserID: 1})

	rec := do(t, r, http.MethodPost, "/bookings", `{"ride_id": 10, "meeting_point_id": 5}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetBookingEndpoint(t *testing.T) {
	store := &stubBookingStore{
		getFn: func(ctx context.Context, id int64) (*bookings.Booking, error) {
			return &bookings.Booking{ID: id, UserID: 1, RideID: 10, Status: bookings.BookingSucceeded, Successful: true}, nil
		},
	}
	r := newTestRouter(newTestHandler(store, &stubRideStore{}), &auth.Identity{UserID: 1})

	rec := do(t, r, http.MethodGet, "/bookings/1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"SUCCEEDED"`)
}

func TestGetBookingEndpoint_ForeignBookingForbidden(t *testing.T) {
	store := &stubBookingStore{
		getFn: func(ctx context.Context, id int64) (*bookings.Booking, error) {
			return &bookings.Booking{ID: id, UserID: 999}, nil
		},
	}
	r := newTestRouter(newTestHandler(store, &stubRideStore{}), &auth.Identity{UserID: 1})

	assert.Equal(t, http.StatusForbidden, do(t, r, http.MethodGet, "/bookings/1", "").Code)
}

func TestGetBookingEndpoint_NotFound(t *testing.T) {
	store := &stubBookingStore{
		getFn: func(ctx context.Context, id int64) (*bookings.Booking, error) {
			return nil, bookings.ErrBookingNotFound
		},
	}
	r := newTestRouter(newTestHandler(store, &stubRideStore{}), &auth.Identity{UserID: 1})

	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/bookings/404", "").Code)
}

func TestGetBookingEndpoint_WarmCacheKeepsOwnershipCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redisx.New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })

	dbReads := 0
	store := &stubBookingStore{
		getFn: func(ctx context.Context, id int64) (*bookings.Booking, error) {
			dbReads++
			return &bookings.Booking{ID: id, UserID: 1, RideID: 10, Status: bookings.BookingPending}, nil
		},
	}
	h := newTestHandler(store, &stubRideStore{})
	h.Redis = rdb

	// Owner read populates the cache.
	owner := newTestRouter(h, &auth.Identity{UserID: 1})
	require.Equal(t, http.StatusOK, do(t, owner, http.MethodGet, "/bookings/1", "").Code)
	require.Equal(t, 1, dbReads)

	// A foreign user hitting the warm cache is rejected the same as on the
	// DB path.
	foreign := newTestRouter(h, &auth.Identity{UserID: 2})
	assert.Equal(t, http.StatusForbidden, do(t, foreign, http.MethodGet, "/bookings/1", "").Code)
	assert.Equal(t, 1, dbReads, "cache hit, no DB fallback")

	// Admins read through the cache.
	admin := newTestRouter(h, &auth.Identity{UserID: 9, IsAdmin: true})
	assert.Equal(t, http.StatusOK, do(t, admin, http.MethodGet, "/bookings/1", "").Code)
	assert.Equal(t, 1, dbReads)
}

func TestGetBookingEndpoint_BadID(t *testing.T) {
	r := newTestRouter(newTestHandler(&stubBookingStore{}, &stubRideStore{}), &auth.Identity{UserID: 1})

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/bookings/abc", "").Code)
}

func TestViewBookingsEndpoint_AdminOnly(t *testing.T) {
	store := &stubBookingStore{
		listAllFn: func(ctx context.Context) ([]bookings.Booking, error) {
			return []bookings.Booking{{ID: 1, UserID: 1}, {ID: 2, UserID: 2}}, nil
		},
	}

	admin := newTestRouter(newTestHandler(store, &stubRideStore{}), &auth.Identity{UserID: 9, IsAdmin: true})
	rec := do(t, admin, http.MethodGet, "/bookings/all", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rider := newTestRouter(newTestHandler(store, &stubRideStore{}), &auth.Identity{UserID: 1})
	assert.Equal(t, http.StatusForbidden, do(t, rider, http.MethodGet, "/bookings/all", "").Code)
}

func TestAvailableRidesEndpoint(t *testing.T) {
	rides := &stubRideStore{
		listAvailableFn: func(ctx context.Context) ([]bookings.RideReplica, error) {
			return []bookings.RideReplica{
				{ID: 10, DriverID: 3, SeatsAvailable: 2, Status: bookings.RidePending, ToGIU: true},
			}, nil
		},
		listMeetingPointsFn: func(ctx context.Context, rideID int64) ([]bookings.MeetingPoint, error) {
			return []bookings.MeetingPoint{{RideID: rideID, MeetingPointID: 5, PriceCents: 100}}, nil
		},
	}
	r := newTestRouter(newTestHandler(&stubBookingStore{}, rides), nil)

	rec := do(t, r, http.MethodGet, "/rides/available", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"meeting_point_id":5`)
}

func TestUpdateRideStatusEndpoint_Validation(t *testing.T) {
	r := newTestRouter(newTestHandler(&stubBookingStore{}, &stubRideStore{}), &auth.Identity{UserID: 3})

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/rides/abc/status", `{"status":"CANCELLED"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/rides/10/status", `{}`).Code)
	assert.Equal(t, http.StatusConflict, do(t, r, http.MethodPost, "/rides/10/status", `{"status":"DRIVING"}`).Code)
}

func TestHealthz(t *testing.T) {
	r := NewRouter("test-secret")

	rec := do(t, r, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
