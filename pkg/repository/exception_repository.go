package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fleetdispatch/pkg/models"
)

// ExceptionRepository stores the two kinds of per-trip rider overrides:
// exceptions (rider is not travelling) and ad-hoc pickup requests.
type ExceptionRepository interface {
	CreateException(ctx context.Context, e models.TripException) error
	GetException(ctx context.Context, id string) (models.TripException, error)
	CancelException(ctx context.Context, id string, at time.Time) (models.TripException, bool, error)
	ActiveExceptionRiders(ctx context.Context, tripID string) ([]string, error)

	CreatePickupRequest(ctx context.Context, p models.PickupRequest) error
	GetPickupRequest(ctx context.Context, id string) (models.PickupRequest, error)
	DecidePickupRequest(ctx context.Context, id string, status models.RequestStatus, actorID string, at time.Time) (models.PickupRequest, bool, error)
	PendingRequestRiders(ctx context.Context, tripID string) ([]string, error)
}

type exceptionRepository struct {
	db *sql.DB
}

func NewExceptionRepository(db *sql.DB) ExceptionRepository {
	return &exceptionRepository{db: db}
}

// ---- Trip exceptions ----

const exceptionColumns = `id, trip_id, rider_id, reason, status, created_at, cancelled_at`

func scanException(row rowScanner) (models.TripException, error) {
	var e models.TripException
	var cancelledAt sql.NullTime
	if err := row.Scan(&e.ID, &e.TripID, &e.RiderID, &e.Reason, &e.Status, &e.CreatedAt, &cancelledAt); err != nil {
		return e, err
	}
	e.CancelledAt = timePtr(cancelledAt)
	return e, nil
}

func (r *exceptionRepository) CreateException(ctx context.Context, e models.TripException) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trip_exceptions (id, trip_id, rider_id, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.TripID, e.RiderID, e.Reason, e.Status, e.CreatedAt)
	return missingReference(err, "rider", e.RiderID)
}

func (r *exceptionRepository) GetException(ctx context.Context, id string) (models.TripException, error) {
	e, err := scanException(r.db.QueryRowContext(ctx, `SELECT `+exceptionColumns+` FROM trip_exceptions WHERE id = $1`, id))
	return e, notFound(err, "exception", id)
}

func (r *exceptionRepository) CancelException(ctx context.Context, id string, at time.Time) (models.TripException, bool, error) {
	e, err := scanException(r.db.QueryRowContext(ctx, `
		UPDATE trip_exceptions
		SET status = 'CANCELLED', cancelled_at = $2
		WHERE id = $1 AND status = 'ACTIVE'
		RETURNING `+exceptionColumns, id, at))
	if errors.Is(err, sql.ErrNoRows) || hasCode(err, codeInvalidText) {
		return e, false, nil
	}
	if err != nil {
		return e, false, err
	}
	return e, true, nil
}

func (r *exceptionRepository) ActiveExceptionRiders(ctx context.Context, tripID string) ([]string, error) {
	return r.riderIDs(ctx, `SELECT rider_id FROM trip_exceptions WHERE trip_id = $1 AND status = 'ACTIVE'`, tripID)
}

// ---- Pickup requests ----

const pickupColumns = `id, trip_id, rider_id, pickup, dropoff, note, status, decided_by, created_at, decided_at`

func scanPickupRequest(row rowScanner) (models.PickupRequest, error) {
	var p models.PickupRequest
	var decidedBy sql.NullString
	var decidedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.TripID, &p.RiderID, &p.Pickup, &p.Dropoff, &p.Note, &p.Status,
		&decidedBy, &p.CreatedAt, &decidedAt); err != nil {
		return p, err
	}
	p.DecidedBy = stringPtr(decidedBy)
	p.DecidedAt = timePtr(decidedAt)
	return p, nil
}

func (r *exceptionRepository) CreatePickupRequest(ctx context.Context, p models.PickupRequest) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pickup_requests (id, trip_id, rider_id, pickup, dropoff, note, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.TripID, p.RiderID, p.Pickup, p.Dropoff, p.Note, p.Status, p.CreatedAt)
	return missingReference(err, "rider", p.RiderID)
}

func (r *exceptionRepository) GetPickupRequest(ctx context.Context, id string) (models.PickupRequest, error) {
	p, err := scanPickupRequest(r.db.QueryRowContext(ctx, `SELECT `+pickupColumns+` FROM pickup_requests WHERE id = $1`, id))
	return p, notFound(err, "pickup request", id)
}

func (r *exceptionRepository) DecidePickupRequest(ctx context.Context, id string, status models.RequestStatus, actorID string, at time.Time) (models.PickupRequest, bool, error) {
	p, err := scanPickupRequest(r.db.QueryRowContext(ctx, `
		UPDATE pickup_requests
		SET status = $2, decided_by = $3, decided_at = $4
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+pickupColumns, id, status, actorID, at))
	if errors.Is(err, sql.ErrNoRows) || hasCode(err, codeInvalidText) {
		return p, false, nil
	}
	if err != nil {
		return p, false, err
	}
	return p, true, nil
}

func (r *exceptionRepository) PendingRequestRiders(ctx context.Context, tripID string) ([]string, error) {
	return r.riderIDs(ctx, `SELECT rider_id FROM pickup_requests WHERE trip_id = $1 AND status = 'PENDING'`, tripID)
}

func (r *exceptionRepository) riderIDs(ctx context.Context, query string, tripID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
