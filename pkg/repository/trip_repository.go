package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fleetdispatch/pkg/models"
)

type TripRepository interface {
	GetTrip(ctx context.Context, id string) (models.Trip, error)
	// FindGeneratedTrip reports whether a scheduler-generated trip exists for
	// route on day.
	FindGeneratedTrip(ctx context.Context, routeID string, day time.Time) (models.Trip, bool, error)
	// CreateTrip inserts t and reports false when the (route, day) unique
	// index already holds a generated trip.
	CreateTrip(ctx context.Context, t models.Trip) (bool, error)
	GeneratedTripsOn(ctx context.Context, day time.Time) ([]models.Trip, error)
	// TransitionTrip moves the trip from one status to another only if it is
	// still in from. The bool is false when another writer got there first.
	TransitionTrip(ctx context.Context, id string, from, to models.TripStatus, at time.Time) (models.Trip, bool, error)
}

type tripRepository struct {
	db *sql.DB
}

func NewTripRepository(db *sql.DB) TripRepository {
	return &tripRepository{db: db}
}

const tripColumns = `id, route_id, schedule_id, vehicle_id, driver_id, company_id, service_date,
	scheduled_start, status, started_at, ended_at, generated, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (models.Trip, error) {
	var t models.Trip
	var scheduleID sql.NullString
	var startedAt, endedAt sql.NullTime

	err := row.Scan(&t.ID, &t.RouteID, &scheduleID, &t.VehicleID, &t.DriverID, &t.CompanyID, &t.ServiceDate,
		&t.ScheduledStart, &t.Status, &startedAt, &endedAt, &t.Generated, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.ScheduleID = stringPtr(scheduleID)
	t.StartedAt = timePtr(startedAt)
	t.EndedAt = timePtr(endedAt)
	return t, nil
}

func (r *tripRepository) GetTrip(ctx context.Context, id string) (models.Trip, error) {
	t, err := scanTrip(r.db.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id))
	return t, notFound(err, "trip", id)
}

func (r *tripRepository) FindGeneratedTrip(ctx context.Context, routeID string, day time.Time) (models.Trip, bool, error) {
	t, err := scanTrip(r.db.QueryRowContext(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE route_id = $1 AND service_date = $2::date AND generated
	`, routeID, day.Format("2006-01-02")))
	if errors.Is(err, sql.ErrNoRows) {
		return t, false, nil
	}
	if err != nil {
		return t, false, err
	}
	return t, true, nil
}

func (r *tripRepository) CreateTrip(ctx context.Context, t models.Trip) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO trips (id, route_id, schedule_id, vehicle_id, driver_id, company_id, service_date,
		                   scheduled_start, status, generated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8, $9, $10, $11, $11)
		ON CONFLICT (route_id, service_date) WHERE generated DO NOTHING
	`, t.ID, t.RouteID, nullString(t.ScheduleID), t.VehicleID, t.DriverID, t.CompanyID,
		t.ServiceDate.Format("2006-01-02"), t.ScheduledStart, t.Status, t.Generated, t.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *tripRepository) GeneratedTripsOn(ctx context.Context, day time.Time) ([]models.Trip, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE service_date = $1::date AND generated
		ORDER BY created_at ASC
	`, day.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []models.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

func (r *tripRepository) TransitionTrip(ctx context.Context, id string, from, to models.TripStatus, at time.Time) (models.Trip, bool, error) {
	t, err := scanTrip(r.db.QueryRowContext(ctx, `
		UPDATE trips
		SET status = $3,
		    started_at = CASE WHEN $3 = 'IN_PROGRESS' THEN $4 ELSE started_at END,
		    ended_at = CASE WHEN $3 IN ('COMPLETED', 'CANCELLED') THEN $4 ELSE ended_at END,
		    updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING `+tripColumns, id, from, to, at))
	if errors.Is(err, sql.ErrNoRows) || hasCode(err, codeInvalidText) {
		return t, false, nil
	}
	if err != nil {
		return t, false, err
	}
	return t, true, nil
}
