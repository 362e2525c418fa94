package models

import "time"

type Vehicle struct {
	ID        string  `json:"id"`
	Plate     string  `json:"plate"`
	Capacity  int     `json:"capacity"`
	DriverID  *string `json:"driver_id,omitempty"`
	CompanyID string  `json:"company_id"`
}

type Driver struct {
	ID         string   `json:"id"`
	UserID     string   `json:"user_id"`
	Name       string   `json:"name"`
	License    string   `json:"license"`
	CompanyID  string   `json:"company_id"`
	VehicleIDs []string `json:"vehicle_ids,omitempty"`
}

// Rider is a passenger. Only claimed riders are assigned to generated trips.
type Rider struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	GuardianUserID string  `json:"guardian_user_id,omitempty"`
	RouteID        *string `json:"route_id,omitempty"`
	Claimed        bool    `json:"claimed"`
	HomeLat        float64 `json:"home_lat"`
	HomeLon        float64 `json:"home_lon"`
	CompanyID      string  `json:"company_id"`
}

type Stop struct {
	ID        string  `json:"id"`
	RouteID   string  `json:"route_id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Sequence  int     `json:"sequence"`
}

type RouteTemplate struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	CompanyID string  `json:"company_id"`
	SiteID    string  `json:"site_id"`
	VehicleID *string `json:"vehicle_id,omitempty"`
	Shift     string  `json:"shift"`
	Stops     []Stop  `json:"stops,omitempty"`
}

type PositionSample struct {
	VehicleID string    `json:"vehicleId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
}

// PositionReport is the inbound shape of a device report. Pointers let a
// zero coordinate be told apart from a missing one.
type PositionReport struct {
	VehicleID string    `json:"vehicleId" validate:"required,max=64"`
	Latitude  *float64  `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64  `json:"longitude" validate:"required,gte=-180,lte=180"`
	Speed     *float64  `json:"speed" validate:"omitempty,gte=0"`
	Timestamp time.Time `json:"timestamp"`
}

func (r PositionReport) Sample() PositionSample {
	s := PositionSample{VehicleID: r.VehicleID, Timestamp: r.Timestamp}
	if r.Latitude != nil {
		s.Latitude = *r.Latitude
	}
	if r.Longitude != nil {
		s.Longitude = *r.Longitude
	}
	if r.Speed != nil {
		s.Speed = *r.Speed
	}
	return s
}
