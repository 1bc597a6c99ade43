package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BookingRepo struct{ DB *pgxpool.Pool }

const bookingCols = `id, user_id, ride_id, meeting_point_id, price, status, successful, created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.UserID, &b.RideID, &b.MeetingPointID, &b.PriceCents,
		&b.Status, &b.Successful, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepo) Create(ctx context.Context, b *Booking) error {
	return r.DB.QueryRow(ctx, `
		INSERT INTO bookings(user_id, ride_id, meeting_point_id, price, status, successful)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		b.UserID, b.RideID, b.MeetingPointID, b.PriceCents, b.Status, b.Successful,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
}

func (r *BookingRepo) Get(ctx context.Context, id int64) (*Booking, error) {
	b, err := scanBooking(r.DB.QueryRow(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// GetWithRide loads a booking together with its ride replica. The ride may be
// nil when the replica row has not arrived (or was never created).
func (r *BookingRepo) GetWithRide(ctx context.Context, id int64) (*Booking, *RideReplica, error) {
	var (
		b          Booking
		rideID     *int64
		driverID   *int64
		departure  *time.Time
		seats      *int
		rideStatus *RideStatus
		girlsOnly  *bool
		toGIU      *bool
		areaID     *int64
	)
	err := r.DB.QueryRow(ctx, `
		SELECT b.id, b.user_id, b.ride_id, b.meeting_point_id, b.price, b.status, b.successful,
		       b.created_at, b.updated_at,
		       lr.id, lr.driver_id, lr.departure_time, lr.seats_available, lr.status,
		       lr.girls_only, lr.to_giu, lr.area_id
		FROM bookings b
		LEFT JOIN local_rides lr ON lr.id = b.ride_id
		WHERE b.id = $1`, id,
	).Scan(&b.ID, &b.UserID, &b.RideID, &b.MeetingPointID, &b.PriceCents, &b.Status, &b.Successful,
		&b.CreatedAt, &b.UpdatedAt,
		&rideID, &driverID, &departure, &seats, &rideStatus, &girlsOnly, &toGIU, &areaID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if rideID == nil {
		return &b, nil, nil
	}
	ride := RideReplica{
		ID:             *rideID,
		DriverID:       *driverID,
		DepartureTime:  *departure,
		SeatsAvailable: *seats,
		Status:         *rideStatus,
		GirlsOnly:      *girlsOnly,
		ToGIU:          *toGIU,
		AreaID:         *areaID,
	}
	return &b, &ride, nil
}

func (r *BookingRepo) listQuery(ctx context.Context, query string, args ...any) ([]Booking, error) {
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *BookingRepo) ListByUser(ctx context.Context, userID int64) ([]Booking, error) {
	return r.listQuery(ctx, `SELECT `+bookingCols+` FROM bookings WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

func (r *BookingRepo) ListAll(ctx context.Context) ([]Booking, error) {
	return r.listQuery(ctx, `SELECT `+bookingCols+` FROM bookings ORDER BY created_at DESC`)
}

// SetStatus moves a booking from one status to another. The current-status
// guard makes redelivered outcome events a no-op: applied is false when the
// booking was not in `from` anymore.
func (r *BookingRepo) SetStatus(ctx context.Context, id int64, from, to BookingStatus, successful bool) (applied bool, err error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE bookings SET status=$3, successful=$4, updated_at=now()
		WHERE id=$1 AND status=$2`, id, from, to, successful)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// Cancel marks a booking CANCELLED unless it already is.
func (r *BookingRepo) Cancel(ctx context.Context, id int64) (applied bool, err error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE bookings SET status='CANCELLED', successful=false, updated_at=now()
		WHERE id=$1 AND status <> 'CANCELLED'`, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// MarkStalePendingFailed fails PENDING bookings created before cutoff. Used by
// the reconciliation sweep: a crash between the local write and the intent
// publish leaves a PENDING booking no outcome event will ever close.
func (r *BookingRepo) MarkStalePendingFailed(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE bookings SET status='FAILED', successful=false, updated_at=now()
		WHERE status='PENDING' AND created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
