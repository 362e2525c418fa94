package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"fleetdispatch/pkg/models"
)

type AttendanceRepository interface {
	// CreateAttendance inserts a row and reports false when (rider, trip)
	// already has one.
	CreateAttendance(ctx context.Context, a models.Attendance) (bool, error)
	GetAttendance(ctx context.Context, tripID, riderID string) (models.Attendance, error)
	ListAttendance(ctx context.Context, tripID string) ([]models.Attendance, error)
	// TransitionAttendance applies to only if the row is still in a.Status and
	// appends the audit event in the same transaction.
	TransitionAttendance(ctx context.Context, a models.Attendance, to models.AttendanceStatus, actorID string, at time.Time) (models.Attendance, bool, error)
}

type attendanceRepository struct {
	db *sql.DB
}

func NewAttendanceRepository(db *sql.DB) AttendanceRepository {
	return &attendanceRepository{db: db}
}

const attendanceSelect = `
	SELECT a.id, a.trip_id, a.rider_id, r.name, COALESCE(r.guardian_user_id, ''), a.status, a.updated_by, a.updated_at
	FROM attendance a
	JOIN riders r ON r.id = a.rider_id
`

func scanAttendance(row rowScanner) (models.Attendance, error) {
	var a models.Attendance
	var updatedBy sql.NullString
	if err := row.Scan(&a.ID, &a.TripID, &a.RiderID, &a.RiderName, &a.GuardianUserID, &a.Status, &updatedBy, &a.UpdatedAt); err != nil {
		return a, err
	}
	a.UpdatedBy = stringPtr(updatedBy)
	return a, nil
}

func (r *attendanceRepository) CreateAttendance(ctx context.Context, a models.Attendance) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (id, trip_id, rider_id, status, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (rider_id, trip_id) DO NOTHING
	`, a.ID, a.TripID, a.RiderID, a.Status, a.UpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *attendanceRepository) GetAttendance(ctx context.Context, tripID, riderID string) (models.Attendance, error) {
	a, err := scanAttendance(r.db.QueryRowContext(ctx, attendanceSelect+`WHERE a.trip_id = $1 AND a.rider_id = $2`, tripID, riderID))
	return a, notFound(err, "attendance", tripID+"/"+riderID)
}

func (r *attendanceRepository) ListAttendance(ctx context.Context, tripID string) ([]models.Attendance, error) {
	rows, err := r.db.QueryContext(ctx, attendanceSelect+`WHERE a.trip_id = $1 ORDER BY r.name, a.rider_id`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]models.Attendance, 0)
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func (r *attendanceRepository) TransitionAttendance(ctx context.Context, a models.Attendance, to models.AttendanceStatus, actorID string, at time.Time) (models.Attendance, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return a, false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE attendance
		SET status = $3, updated_by = $4, updated_at = $5
		WHERE id = $1 AND status = $2
	`, a.ID, a.Status, to, actorID, at)
	if err != nil {
		return a, false, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return a, false, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO attendance_events (id, attendance_id, from_status, to_status, actor_id, at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), a.ID, a.Status, to, actorID, at); err != nil {
		return a, false, err
	}

	if err := tx.Commit(); err != nil {
		return a, false, err
	}

	a.Status = to
	a.UpdatedBy = &actorID
	a.UpdatedAt = at
	return a, true, nil
}
