package bookings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RideRepo struct{ DB *pgxpool.Pool }

const rideCols = `id, driver_id, departure_time, seats_available, status, girls_only, to_giu, area_id`

func scanRide(row pgx.Row) (*RideReplica, error) {
	var lr RideReplica
	err := row.Scan(&lr.ID, &lr.DriverID, &lr.DepartureTime, &lr.SeatsAvailable,
		&lr.Status, &lr.GirlsOnly, &lr.ToGIU, &lr.AreaID)
	if err != nil {
		return nil, err
	}
	return &lr, nil
}

func (r *RideRepo) GetRide(ctx context.Context, id int64) (*RideReplica, error) {
	lr, err := scanRide(r.DB.QueryRow(ctx, `SELECT `+rideCols+` FROM local_rides WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRideNotFound
	}
	return lr, err
}

func (r *RideRepo) HasPassenger(ctx context.Context, rideID, passengerID int64) (bool, error) {
	var n int
	err := r.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM local_ride_passengers
		WHERE ride_id=$1 AND passenger_id=$2`, rideID, passengerID).Scan(&n)
	return n > 0, err
}

func (r *RideRepo) GetMeetingPoint(ctx context.Context, rideID, meetingPointID int64) (*MeetingPoint, error) {
	var mp MeetingPoint
	err := r.DB.QueryRow(ctx, `
		SELECT id, ride_id, meeting_point_id, price, order_index
		FROM local_ride_meeting_points
		WHERE ride_id=$1 AND meeting_point_id=$2`, rideID, meetingPointID,
	).Scan(&mp.ID, &mp.RideID, &mp.MeetingPointID, &mp.PriceCents, &mp.OrderIndex)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMeetingPointNotFound
	}
	if err != nil {
		return nil, err
	}
	return &mp, nil
}

func (r *RideRepo) ListAvailable(ctx context.Context) ([]RideReplica, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+rideCols+` FROM local_rides
		WHERE status='PENDING' AND seats_available > 0 AND departure_time > now()
		ORDER BY departure_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RideReplica
	for rows.Next() {
		lr, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *lr)
	}
	return out, rows.Err()
}

func (r *RideRepo) ListMeetingPoints(ctx context.Context, rideID int64) ([]MeetingPoint, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, ride_id, meeting_point_id, price, order_index
		FROM local_ride_meeting_points
		WHERE ride_id=$1 ORDER BY order_index`, rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MeetingPoint
	for rows.Next() {
		var mp MeetingPoint
		if err := rows.Scan(&mp.ID, &mp.RideID, &mp.MeetingPointID, &mp.PriceCents, &mp.OrderIndex); err != nil {
			return nil, err
		}
		out = append(out, mp)
	}
	return out, rows.Err()
}

// UpsertRide writes a ride snapshot. When replaceMeetingPoints is set the
// ride's meeting-point rows are deleted and recreated in the same transaction,
// so readers never observe a partial list.
func (r *RideRepo) UpsertRide(ctx context.Context, ride RideReplica, mps []MeetingPoint, replaceMeetingPoints bool) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO local_rides(id, driver_id, departure_time, seats_available, status, girls_only, to_giu, area_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			driver_id=EXCLUDED.driver_id,
			departure_time=EXCLUDED.departure_time,
			seats_available=EXCLUDED.seats_available,
			status=EXCLUDED.status,
			girls_only=EXCLUDED.girls_only,
			to_giu=EXCLUDED.to_giu,
			area_id=EXCLUDED.area_id`,
		ride.ID, ride.DriverID, ride.DepartureTime, ride.SeatsAvailable,
		ride.Status, ride.GirlsOnly, ride.ToGIU, ride.AreaID)
	if err != nil {
		return err
	}

	if replaceMeetingPoints {
		if _, err := tx.Exec(ctx, `DELETE FROM local_ride_meeting_points WHERE ride_id=$1`, ride.ID); err != nil {
			return err
		}
		for _, mp := range mps {
			if _, err := tx.Exec(ctx, `
				INSERT INTO local_ride_meeting_points(ride_id, meeting_point_id, price, order_index)
				VALUES ($1,$2,$3,$4)`,
				ride.ID, mp.MeetingPointID, mp.PriceCents, mp.OrderIndex); err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

// AddPassenger inserts the (ride, passenger) pair if absent and decrements the
// seat count on first insertion only, floored at zero. Safe under redelivery.
func (r *RideRepo) AddPassenger(ctx context.Context, rideID, passengerID int64, name string) (added bool, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists int
	err = tx.QueryRow(ctx, `SELECT 1 FROM local_rides WHERE id=$1`, rideID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrRideNotFound
	}
	if err != nil {
		return false, err
	}

	ct, err := tx.Exec(ctx, `
		INSERT INTO local_ride_passengers(ride_id, passenger_id, passenger_name)
		VALUES ($1,$2,$3)
		ON CONFLICT (ride_id, passenger_id) DO NOTHING`, rideID, passengerID, name)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		return false, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE local_rides SET seats_available = GREATEST(seats_available - 1, 0)
		WHERE id=$1`, rideID); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// RemovePassenger deletes the pair if present and gives the seat back on an
// actual removal only. Removing an absent passenger is a no-op.
func (r *RideRepo) RemovePassenger(ctx context.Context, rideID, passengerID int64) (removed bool, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		DELETE FROM local_ride_passengers WHERE ride_id=$1 AND passenger_id=$2`, rideID, passengerID)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		return false, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE local_rides SET seats_available = seats_available + 1 WHERE id=$1`, rideID); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// SetStatusCascade updates a ride's status and, when the new status is
// CANCELLED, cancels every non-cancelled booking of the ride in the same
// transaction (one logical batch).
func (r *RideRepo) SetStatusCascade(ctx context.Context, rideID int64, status RideStatus) (*RideReplica, int64, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lr, err := scanRide(tx.QueryRow(ctx, `
		UPDATE local_rides SET status=$2 WHERE id=$1
		RETURNING `+rideCols, rideID, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrRideNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	var cancelled int64
	if status == RideCancelled {
		ct, err := tx.Exec(ctx, `
			UPDATE bookings SET status='CANCELLED', successful=false, updated_at=now()
			WHERE ride_id=$1 AND status <> 'CANCELLED'`, rideID)
		if err != nil {
			return nil, 0, err
		}
		cancelled = ct.RowsAffected()
	}

	return lr, cancelled, tx.Commit(ctx)
}
