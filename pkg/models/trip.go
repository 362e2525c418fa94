package models

import "time"

type TripStatus string

const (
	TripScheduled  TripStatus = "SCHEDULED"
	TripInProgress TripStatus = "IN_PROGRESS"
	TripCompleted  TripStatus = "COMPLETED"
	TripCancelled  TripStatus = "CANCELLED"
)

var tripTransitions = map[TripStatus][]TripStatus{
	TripScheduled:  {TripInProgress, TripCancelled},
	TripInProgress: {TripCompleted, TripCancelled},
}

func (s TripStatus) Valid() bool {
	switch s {
	case TripScheduled, TripInProgress, TripCompleted, TripCancelled:
		return true
	}
	return false
}

func (s TripStatus) CanTransitionTo(next TripStatus) bool {
	for _, allowed := range tripTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Trip struct {
	ID             string     `json:"id"`
	RouteID        string     `json:"route_id"`
	ScheduleID     *string    `json:"schedule_id,omitempty"`
	VehicleID      string     `json:"vehicle_id"`
	DriverID       string     `json:"driver_id"`
	CompanyID      string     `json:"company_id"`
	ServiceDate    time.Time  `json:"service_date"`
	ScheduledStart time.Time  `json:"scheduled_start"`
	Status         TripStatus `json:"status"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Generated      bool       `json:"generated"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type TripStatusRequest struct {
	Status TripStatus `json:"status"`
	UserID string     `json:"userId"`
}

// GenerationResult summarizes one scheduler expansion.
type GenerationResult struct {
	Day               time.Time `json:"day"`
	SchedulesMatched  int       `json:"schedulesMatched"`
	TripsCreated      int       `json:"tripsCreated"`
	AttendanceCreated int       `json:"attendanceCreated"`
	SchedulesSkipped  int       `json:"schedulesSkipped"`
	SchedulesFailed   int       `json:"schedulesFailed"`
}

type GenerationResponse struct {
	Success            bool   `json:"success"`
	Message            string `json:"message"`
	GenerationType     string `json:"generationType"`
	TripsCreated       *int   `json:"tripsCreated,omitempty"`
	ExistingTripsCount *int   `json:"existingTripsCount,omitempty"`
}
