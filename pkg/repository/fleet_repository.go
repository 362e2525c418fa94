package repository

import (
	"context"
	"database/sql"

	"fleetdispatch/pkg/models"
)

// FleetRepository reads the static fleet data maintained by the external
// admin service.
type FleetRepository interface {
	ClaimedRidersOnRoute(ctx context.Context, routeID string) ([]models.Rider, error)
	GetRider(ctx context.Context, id string) (models.Rider, error)
	DriverVehicles(ctx context.Context, userID string) ([]string, error)
	GuardianVehicles(ctx context.Context, userID string) ([]string, error)
}

type fleetRepository struct {
	db *sql.DB
}

func NewFleetRepository(db *sql.DB) FleetRepository {
	return &fleetRepository{db: db}
}

func (r *fleetRepository) ClaimedRidersOnRoute(ctx context.Context, routeID string) ([]models.Rider, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(guardian_user_id, ''), route_id, claimed, home_lat, home_lon, company_id
		FROM riders
		WHERE route_id = $1 AND claimed
		ORDER BY name, id
	`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var riders []models.Rider
	for rows.Next() {
		rider, err := scanRider(rows)
		if err != nil {
			return nil, err
		}
		riders = append(riders, rider)
	}
	return riders, rows.Err()
}

func (r *fleetRepository) GetRider(ctx context.Context, id string) (models.Rider, error) {
	rider, err := scanRider(r.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(guardian_user_id, ''), route_id, claimed, home_lat, home_lon, company_id
		FROM riders
		WHERE id = $1
	`, id))
	return rider, notFound(err, "rider", id)
}

func scanRider(row rowScanner) (models.Rider, error) {
	var rider models.Rider
	var routeID sql.NullString
	if err := row.Scan(&rider.ID, &rider.Name, &rider.GuardianUserID, &routeID, &rider.Claimed,
		&rider.HomeLat, &rider.HomeLon, &rider.CompanyID); err != nil {
		return rider, err
	}
	rider.RouteID = stringPtr(routeID)
	return rider, nil
}

func (r *fleetRepository) DriverVehicles(ctx context.Context, userID string) ([]string, error) {
	return r.vehicleIDs(ctx, `
		SELECT dv.vehicle_id
		FROM driver_vehicles dv
		JOIN drivers d ON d.id = dv.driver_id
		WHERE d.user_id = $1
		UNION
		SELECT v.id
		FROM vehicles v
		JOIN drivers d ON d.id = v.driver_id
		WHERE d.user_id = $1
	`, userID)
}

func (r *fleetRepository) GuardianVehicles(ctx context.Context, userID string) ([]string, error) {
	return r.vehicleIDs(ctx, `
		SELECT DISTINCT rt.vehicle_id
		FROM riders ri
		JOIN route_templates rt ON rt.id = ri.route_id
		WHERE ri.guardian_user_id = $1 AND rt.vehicle_id IS NOT NULL
	`, userID)
}

func (r *fleetRepository) vehicleIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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
