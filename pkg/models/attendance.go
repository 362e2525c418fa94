package models

import "time"

type AttendanceStatus string

const (
	AttendancePending  AttendanceStatus = "PENDING"
	AttendancePickedUp AttendanceStatus = "PICKED_UP"
	AttendanceDropped  AttendanceStatus = "DROPPED"
	AttendanceMissed   AttendanceStatus = "MISSED"
)

var attendanceTransitions = map[AttendanceStatus][]AttendanceStatus{
	AttendancePending:  {AttendancePickedUp, AttendanceMissed},
	AttendancePickedUp: {AttendanceDropped},
}

func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePending, AttendancePickedUp, AttendanceDropped, AttendanceMissed:
		return true
	}
	return false
}

func (s AttendanceStatus) CanTransitionTo(next AttendanceStatus) bool {
	for _, allowed := range attendanceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Describe renders the status for a guardian-facing notification.
func (s AttendanceStatus) Describe(riderName string) string {
	switch s {
	case AttendancePickedUp:
		return riderName + " has been picked up"
	case AttendanceDropped:
		return riderName + " has been dropped off"
	case AttendanceMissed:
		return riderName + " missed the pickup"
	default:
		return riderName + " is awaiting pickup"
	}
}

type Attendance struct {
	ID             string           `json:"id"`
	TripID         string           `json:"trip_id"`
	RiderID        string           `json:"rider_id"`
	RiderName      string           `json:"rider_name,omitempty"`
	GuardianUserID string           `json:"guardian_user_id,omitempty"`
	Status         AttendanceStatus `json:"status"`
	UpdatedBy      *string          `json:"updated_by,omitempty"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// AttendanceEvent is the audit record of one attendance transition.
type AttendanceEvent struct {
	ID           string           `json:"id"`
	AttendanceID string           `json:"attendance_id"`
	From         AttendanceStatus `json:"from"`
	To           AttendanceStatus `json:"to"`
	ActorID      string           `json:"actor_id"`
	At           time.Time        `json:"at"`
}

type ExceptionStatus string

const (
	ExceptionActive    ExceptionStatus = "ACTIVE"
	ExceptionCancelled ExceptionStatus = "CANCELLED"
)

type TripException struct {
	ID          string          `json:"id"`
	TripID      string          `json:"trip_id"`
	RiderID     string          `json:"rider_id"`
	Reason      string          `json:"reason,omitempty"`
	Status      ExceptionStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
)

type PickupRequest struct {
	ID        string        `json:"id"`
	TripID    string        `json:"trip_id"`
	RiderID   string        `json:"rider_id"`
	Pickup    string        `json:"pickup,omitempty"`
	Dropoff   string        `json:"dropoff,omitempty"`
	Note      string        `json:"note,omitempty"`
	Status    RequestStatus `json:"status"`
	DecidedBy *string       `json:"decided_by,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	DecidedAt *time.Time    `json:"decided_at,omitempty"`
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TripID    string    `json:"trip_id,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
