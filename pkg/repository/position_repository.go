package repository

import (
	"context"
	"database/sql"
	"time"

	"fleetdispatch/pkg/models"
)

type PositionRepository interface {
	InsertPosition(ctx context.Context, s models.PositionSample) error
	// History returns samples newest first. Zero from/to leave that bound open.
	History(ctx context.Context, vehicleID string, from, to time.Time, limit int) ([]models.PositionSample, error)
}

type positionRepository struct {
	db *sql.DB
}

func NewPositionRepository(db *sql.DB) PositionRepository {
	return &positionRepository{db: db}
}

func (r *positionRepository) InsertPosition(ctx context.Context, s models.PositionSample) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO position_history (vehicle_id, latitude, longitude, speed, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`, s.VehicleID, s.Latitude, s.Longitude, s.Speed, s.Timestamp)
	return err
}

func (r *positionRepository) History(ctx context.Context, vehicleID string, from, to time.Time, limit int) ([]models.PositionSample, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT vehicle_id, latitude, longitude, speed, recorded_at
		FROM position_history
		WHERE vehicle_id = $1
		  AND ($2::timestamptz IS NULL OR recorded_at >= $2)
		  AND ($3::timestamptz IS NULL OR recorded_at <= $3)
		ORDER BY recorded_at DESC
		LIMIT $4
	`, vehicleID, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := make([]models.PositionSample, 0)
	for rows.Next() {
		var s models.PositionSample
		if err := rows.Scan(&s.VehicleID, &s.Latitude, &s.Longitude, &s.Speed, &s.Timestamp); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
