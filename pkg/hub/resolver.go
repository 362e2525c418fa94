package hub

import (
	"context"

	"fleetdispatch/pkg/models"
	"fleetdispatch/pkg/repository"
	"fleetdispatch/pkg/rooms"
)

// FleetResolver adds bus rooms: drivers get their assigned vehicles,
// guardians the vehicles on their riders' routes.
type FleetResolver struct {
	Fleet repository.FleetRepository
}

func (r FleetResolver) Rooms(ctx context.Context, id models.Identity) ([]string, error) {
	var (
		vehicles []string
		err      error
	)
	switch id.Role {
	case models.RoleDriver:
		vehicles, err = r.Fleet.DriverVehicles(ctx, id.UserID)
	case models.RoleGuardian:
		vehicles, err = r.Fleet.GuardianVehicles(ctx, id.UserID)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(vehicles))
	for _, v := range vehicles {
		out = append(out, rooms.Bus(v))
	}
	return out, nil
}
