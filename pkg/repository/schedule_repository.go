package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"fleetdispatch/pkg/models"
)

type ScheduleRepository interface {
	// SchedulesFor returns ACTIVE schedules recurring on weekday whose
	// effective window contains day.
	SchedulesFor(ctx context.Context, weekday string, day time.Time) ([]models.RecurringSchedule, error)
}

type scheduleRepository struct {
	db *sql.DB
}

func NewScheduleRepository(db *sql.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

func (r *scheduleRepository) SchedulesFor(ctx context.Context, weekday string, day time.Time) ([]models.RecurringSchedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, route_id, company_id, driver_id, vehicle_id, trigger_time, weekdays,
		       effective_from, effective_until, status, auto_assign_riders
		FROM recurring_schedules
		WHERE status = 'ACTIVE'
		  AND EXISTS (SELECT 1 FROM unnest(weekdays) w WHERE upper(trim(w)) = upper($1))
		  AND (effective_from IS NULL OR effective_from <= $2::date)
		  AND (effective_until IS NULL OR effective_until >= $2::date)
		ORDER BY trigger_time, id
	`, weekday, day.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []models.RecurringSchedule
	for rows.Next() {
		var s models.RecurringSchedule
		var driverID, vehicleID sql.NullString
		var from, until sql.NullTime
		var weekdays pq.StringArray

		if err := rows.Scan(&s.ID, &s.RouteID, &s.CompanyID, &driverID, &vehicleID, &s.TriggerTime,
			&weekdays, &from, &until, &s.Status, &s.AutoAssignRiders); err != nil {
			return nil, err
		}
		s.DriverID = stringPtr(driverID)
		s.VehicleID = stringPtr(vehicleID)
		s.Weekdays = []string(weekdays)
		s.EffectiveFrom = timePtr(from)
		s.EffectiveUntil = timePtr(until)
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}
