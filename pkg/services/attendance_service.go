package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"fleetdispatch/pkg/apperr"
	"fleetdispatch/pkg/clock"
	"fleetdispatch/pkg/envelope"
	"fleetdispatch/pkg/metrics"
	"fleetdispatch/pkg/models"
	"fleetdispatch/pkg/repository"
	"fleetdispatch/pkg/rooms"
)

type AttendanceService interface {
	UpdateAttendance(ctx context.Context, tripID, riderID string, to models.AttendanceStatus, actorID string) (models.Attendance, error)
	// Manifest lists the trip's attendance minus riders with an ACTIVE
	// exception or a PENDING pickup request. It is recomputed on every call.
	Manifest(ctx context.Context, tripID string) ([]models.Attendance, error)

	CreateException(ctx context.Context, tripID, riderID, reason string) (models.TripException, error)
	CancelException(ctx context.Context, tripID, exceptionID string) (models.TripException, error)
	CreatePickupRequest(ctx context.Context, req models.PickupRequest) (models.PickupRequest, error)
	DecidePickupRequest(ctx context.Context, id string, status models.RequestStatus, actorID string) (models.PickupRequest, error)
}

type attendanceService struct {
	trips         repository.TripRepository
	attendance    repository.AttendanceRepository
	exceptions    repository.ExceptionRepository
	notifications repository.NotificationRepository
	pub           Publisher
	clock         clock.Clock
	log           *slog.Logger
}

func NewAttendanceService(trips repository.TripRepository, attendance repository.AttendanceRepository, exceptions repository.ExceptionRepository,
	notifications repository.NotificationRepository, pub Publisher, clk clock.Clock) AttendanceService {
	return &attendanceService{
		trips:         trips,
		attendance:    attendance,
		exceptions:    exceptions,
		notifications: notifications,
		pub:           pub,
		clock:         clk,
		log:           slog.Default().With("component", "attendance"),
	}
}

type attendanceEvent struct {
	TripID    string                  `json:"tripId"`
	RiderID   string                  `json:"riderId"`
	RiderName string                  `json:"riderName,omitempty"`
	Status    models.AttendanceStatus `json:"status"`
	Previous  models.AttendanceStatus `json:"previousStatus"`
	UpdatedBy string                  `json:"updatedBy,omitempty"`
	Message   string                  `json:"message"`
}

func (s *attendanceService) UpdateAttendance(ctx context.Context, tripID, riderID string, to models.AttendanceStatus, actorID string) (models.Attendance, error) {
	if !to.Valid() {
		return models.Attendance{}, apperr.Validation("status", "unknown attendance status %q", to)
	}

	current, err := s.attendance.GetAttendance(ctx, tripID, riderID)
	if err != nil {
		return current, err
	}
	if !current.Status.CanTransitionTo(to) {
		return current, &apperr.InvalidTransitionError{Entity: "attendance", From: string(current.Status), To: string(to)}
	}

	previous := current.Status
	updated, ok, err := s.attendance.TransitionAttendance(ctx, current, to, actorID, s.clock.Now())
	if err != nil {
		return current, fmt.Errorf("update attendance %s: %w", current.ID, err)
	}
	if !ok {
		latest, err := s.attendance.GetAttendance(ctx, tripID, riderID)
		if err != nil {
			return current, err
		}
		return latest, &apperr.InvalidTransitionError{Entity: "attendance", From: string(latest.Status), To: string(to)}
	}

	metrics.Add(ctx, metrics.AttendanceTransitions, 1, "status", string(to))
	s.log.Info("attendance updated", "trip_id", tripID, "rider_id", riderID, "from", previous, "to", to, "actor", actorID)

	s.notifyGuardian(ctx, updated, previous, actorID)
	return updated, nil
}

// notifyGuardian runs each side effect on its own; one failing does not
// stop the others or the transition.
func (s *attendanceService) notifyGuardian(ctx context.Context, a models.Attendance, previous models.AttendanceStatus, actorID string) {
	name := a.RiderName
	if name == "" {
		name = "Rider"
	}
	message := a.Status.Describe(name)

	evt := attendanceEvent{
		TripID:    a.TripID,
		RiderID:   a.RiderID,
		RiderName: a.RiderName,
		Status:    a.Status,
		Previous:  previous,
		UpdatedBy: actorID,
		Message:   message,
	}

	if a.GuardianUserID != "" {
		n := models.Notification{
			ID:        uuid.NewString(),
			UserID:    a.GuardianUserID,
			TripID:    a.TripID,
			Title:     "Attendance update",
			Body:      message,
			CreatedAt: s.clock.Now(),
		}
		if err := s.notifications.CreateNotification(ctx, n); err != nil {
			s.log.Warn("persist notification failed", "user_id", a.GuardianUserID, "trip_id", a.TripID, "error", err)
		}
		s.emit(ctx, rooms.User(a.GuardianUserID), envelope.EventNewNotification, n)
		s.emit(ctx, rooms.User(a.GuardianUserID), envelope.EventAttendanceUpdated, evt)
	}
	s.emit(ctx, rooms.Trip(a.TripID), envelope.EventAttendanceUpdated, evt)

	trip, err := s.trips.GetTrip(ctx, a.TripID)
	if err != nil {
		s.log.Warn("company broadcast skipped", "trip_id", a.TripID, "error", err)
		return
	}
	if trip.CompanyID != "" {
		s.emit(ctx, rooms.Company(trip.CompanyID), envelope.EventAttendanceUpdated, evt)
	}
}

func (s *attendanceService) emit(ctx context.Context, room, event string, data any) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Emit(ctx, room, event, data); err != nil {
		s.log.Warn("attendance publish failed", "room", room, "event", event, "error", err)
	}
}

func (s *attendanceService) Manifest(ctx context.Context, tripID string) ([]models.Attendance, error) {
	if _, err := s.trips.GetTrip(ctx, tripID); err != nil {
		return nil, err
	}

	rows, err := s.attendance.ListAttendance(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	excepted, err := s.exceptions.ActiveExceptionRiders(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	pending, err := s.exceptions.PendingRequestRiders(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("list pickup requests: %w", err)
	}

	excluded := make(map[string]struct{}, len(excepted)+len(pending))
	for _, id := range excepted {
		excluded[id] = struct{}{}
	}
	for _, id := range pending {
		excluded[id] = struct{}{}
	}

	manifest := make([]models.Attendance, 0, len(rows))
	for _, a := range rows {
		if _, skip := excluded[a.RiderID]; skip {
			continue
		}
		manifest = append(manifest, a)
	}
	return manifest, nil
}

func (s *attendanceService) CreateException(ctx context.Context, tripID, riderID, reason string) (models.TripException, error) {
	if strings.TrimSpace(riderID) == "" {
		return models.TripException{}, apperr.Validation("riderId", "is required")
	}
	if _, err := s.trips.GetTrip(ctx, tripID); err != nil {
		return models.TripException{}, err
	}

	e := models.TripException{
		ID:        uuid.NewString(),
		TripID:    tripID,
		RiderID:   riderID,
		Reason:    strings.TrimSpace(reason),
		Status:    models.ExceptionActive,
		CreatedAt: s.clock.Now(),
	}
	if err := s.exceptions.CreateException(ctx, e); err != nil {
		return e, fmt.Errorf("create exception: %w", err)
	}
	s.log.Info("trip exception created", "trip_id", tripID, "rider_id", riderID)
	return e, nil
}

func (s *attendanceService) CancelException(ctx context.Context, tripID, exceptionID string) (models.TripException, error) {
	e, err := s.exceptions.GetException(ctx, exceptionID)
	if err != nil {
		return e, err
	}
	if e.TripID != tripID {
		return e, apperr.NotFound("exception", exceptionID)
	}
	if e.Status != models.ExceptionActive {
		return e, &apperr.InvalidTransitionError{Entity: "exception", From: string(e.Status), To: string(models.ExceptionCancelled)}
	}

	cancelled, ok, err := s.exceptions.CancelException(ctx, exceptionID, s.clock.Now())
	if err != nil {
		return e, fmt.Errorf("cancel exception: %w", err)
	}
	if !ok {
		return e, &apperr.InvalidTransitionError{Entity: "exception", From: string(models.ExceptionCancelled), To: string(models.ExceptionCancelled)}
	}
	return cancelled, nil
}

func (s *attendanceService) CreatePickupRequest(ctx context.Context, req models.PickupRequest) (models.PickupRequest, error) {
	if strings.TrimSpace(req.RiderID) == "" {
		return req, apperr.Validation("riderId", "is required")
	}
	if _, err := s.trips.GetTrip(ctx, req.TripID); err != nil {
		return req, err
	}

	req.ID = uuid.NewString()
	req.Status = models.RequestPending
	req.DecidedBy = nil
	req.DecidedAt = nil
	req.CreatedAt = s.clock.Now()
	if err := s.exceptions.CreatePickupRequest(ctx, req); err != nil {
		return req, fmt.Errorf("create pickup request: %w", err)
	}
	s.log.Info("pickup request created", "trip_id", req.TripID, "rider_id", req.RiderID)
	return req, nil
}

func (s *attendanceService) DecidePickupRequest(ctx context.Context, id string, status models.RequestStatus, actorID string) (models.PickupRequest, error) {
	if status != models.RequestApproved && status != models.RequestRejected {
		return models.PickupRequest{}, apperr.Validation("status", "must be APPROVED or REJECTED")
	}

	current, err := s.exceptions.GetPickupRequest(ctx, id)
	if err != nil {
		return current, err
	}
	if current.Status != models.RequestPending {
		return current, &apperr.InvalidTransitionError{Entity: "pickup request", From: string(current.Status), To: string(status)}
	}

	decided, ok, err := s.exceptions.DecidePickupRequest(ctx, id, status, actorID, s.clock.Now())
	if err != nil {
		return current, fmt.Errorf("decide pickup request: %w", err)
	}
	if !ok {
		latest, err := s.exceptions.GetPickupRequest(ctx, id)
		if err != nil {
			return current, err
		}
		return latest, &apperr.InvalidTransitionError{Entity: "pickup request", From: string(latest.Status), To: string(status)}
	}
	return decided, nil
}
