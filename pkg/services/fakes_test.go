package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"fleetdispatch/pkg/apperr"
	"fleetdispatch/pkg/models"
)

// store is an in-memory stand-in for every repository the services use.
type store struct {
	mu sync.Mutex

	positions     []models.PositionSample
	insertErr     error
	schedules     []models.RecurringSchedule
	trips         map[string]models.Trip
	riders        []models.Rider
	attendance    map[string]models.Attendance
	events        []models.AttendanceEvent
	exceptions    map[string]models.TripException
	requests      map[string]models.PickupRequest
	notifications []models.Notification
	notifyErr     error
	createTripErr map[string]error
	ridersErrOnce error
}

func newStore() *store {
	return &store{
		trips:         make(map[string]models.Trip),
		attendance:    make(map[string]models.Attendance),
		exceptions:    make(map[string]models.TripException),
		requests:      make(map[string]models.PickupRequest),
		createTripErr: make(map[string]error),
	}
}

// ---- positions ----

func (s *store) InsertPosition(_ context.Context, p models.PositionSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.positions = append(s.positions, p)
	return nil
}

func (s *store) History(_ context.Context, vehicleID string, from, to time.Time, limit int) ([]models.PositionSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PositionSample
	for _, p := range s.positions {
		if p.VehicleID != vehicleID {
			continue
		}
		if !from.IsZero() && p.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && p.Timestamp.After(to) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- schedules, fleet ----

func (s *store) SchedulesFor(_ context.Context, _ string, _ time.Time) ([]models.RecurringSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RecurringSchedule(nil), s.schedules...), nil
}

func (s *store) ClaimedRidersOnRoute(_ context.Context, routeID string) ([]models.Rider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ridersErrOnce; err != nil {
		s.ridersErrOnce = nil
		return nil, err
	}
	var out []models.Rider
	for _, r := range s.riders {
		if r.Claimed && r.RouteID != nil && *r.RouteID == routeID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *store) GetRider(_ context.Context, id string) (models.Rider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.riders {
		if r.ID == id {
			return r, nil
		}
	}
	return models.Rider{}, apperr.NotFound("rider", id)
}

func (s *store) DriverVehicles(context.Context, string) ([]string, error)   { return nil, nil }
func (s *store) GuardianVehicles(context.Context, string) ([]string, error) { return nil, nil }

func (s *store) rider(id string) models.Rider {
	for _, r := range s.riders {
		if r.ID == id {
			return r
		}
	}
	return models.Rider{}
}

// ---- trips ----

func (s *store) GetTrip(_ context.Context, id string) (models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok {
		return t, apperr.NotFound("trip", id)
	}
	return t, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (s *store) FindGeneratedTrip(_ context.Context, routeID string, day time.Time) (models.Trip, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trips {
		if t.Generated && t.RouteID == routeID && sameDay(t.ServiceDate, day) {
			return t, true, nil
		}
	}
	return models.Trip{}, false, nil
}

func (s *store) CreateTrip(_ context.Context, t models.Trip) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createTripErr[t.RouteID]; err != nil {
		return false, err
	}
	for _, existing := range s.trips {
		if existing.Generated && t.Generated && existing.RouteID == t.RouteID && sameDay(existing.ServiceDate, t.ServiceDate) {
			return false, nil
		}
	}
	s.trips[t.ID] = t
	return true, nil
}

func (s *store) GeneratedTripsOn(_ context.Context, day time.Time) ([]models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Trip
	for _, t := range s.trips {
		if t.Generated && sameDay(t.ServiceDate, day) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *store) TransitionTrip(_ context.Context, id string, from, to models.TripStatus, at time.Time) (models.Trip, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok || t.Status != from {
		return t, false, nil
	}
	t.Status = to
	switch to {
	case models.TripInProgress:
		t.StartedAt = &at
	case models.TripCompleted, models.TripCancelled:
		t.EndedAt = &at
	}
	t.UpdatedAt = at
	s.trips[id] = t
	return t, true, nil
}

func (s *store) tripCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trips)
}

// ---- attendance ----

func attendanceKey(tripID, riderID string) string { return tripID + "/" + riderID }

func (s *store) CreateAttendance(_ context.Context, a models.Attendance) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attendanceKey(a.TripID, a.RiderID)
	if _, exists := s.attendance[key]; exists {
		return false, nil
	}
	s.attendance[key] = a
	return true, nil
}

func (s *store) GetAttendance(_ context.Context, tripID, riderID string) (models.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attendance[attendanceKey(tripID, riderID)]
	if !ok {
		return a, apperr.NotFound("attendance", attendanceKey(tripID, riderID))
	}
	r := s.rider(riderID)
	a.RiderName = r.Name
	a.GuardianUserID = r.GuardianUserID
	return a, nil
}

func (s *store) ListAttendance(_ context.Context, tripID string) ([]models.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Attendance, 0)
	for _, a := range s.attendance {
		if a.TripID == tripID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RiderID < out[j].RiderID })
	return out, nil
}

func (s *store) TransitionAttendance(_ context.Context, a models.Attendance, to models.AttendanceStatus, actorID string, at time.Time) (models.Attendance, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attendanceKey(a.TripID, a.RiderID)
	stored, ok := s.attendance[key]
	if !ok || stored.Status != a.Status {
		return a, false, nil
	}
	stored.Status = to
	stored.UpdatedBy = &actorID
	stored.UpdatedAt = at
	s.attendance[key] = stored
	s.events = append(s.events, models.AttendanceEvent{AttendanceID: a.ID, From: a.Status, To: to, ActorID: actorID, At: at})

	a.Status = to
	a.UpdatedBy = &actorID
	a.UpdatedAt = at
	return a, true, nil
}

func (s *store) attendanceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attendance)
}

// ---- exceptions and pickup requests ----

func (s *store) CreateException(_ context.Context, e models.TripException) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exceptions[e.ID] = e
	return nil
}

func (s *store) GetException(_ context.Context, id string) (models.TripException, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exceptions[id]
	if !ok {
		return e, apperr.NotFound("exception", id)
	}
	return e, nil
}

func (s *store) CancelException(_ context.Context, id string, at time.Time) (models.TripException, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exceptions[id]
	if !ok || e.Status != models.ExceptionActive {
		return e, false, nil
	}
	e.Status = models.ExceptionCancelled
	e.CancelledAt = &at
	s.exceptions[id] = e
	return e, true, nil
}

func (s *store) ActiveExceptionRiders(_ context.Context, tripID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, e := range s.exceptions {
		if e.TripID == tripID && e.Status == models.ExceptionActive {
			ids = append(ids, e.RiderID)
		}
	}
	return ids, nil
}

func (s *store) CreatePickupRequest(_ context.Context, p models.PickupRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[p.ID] = p
	return nil
}

func (s *store) GetPickupRequest(_ context.Context, id string) (models.PickupRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.requests[id]
	if !ok {
		return p, apperr.NotFound("pickup request", id)
	}
	return p, nil
}

func (s *store) DecidePickupRequest(_ context.Context, id string, status models.RequestStatus, actorID string, at time.Time) (models.PickupRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.requests[id]
	if !ok || p.Status != models.RequestPending {
		return p, false, nil
	}
	p.Status = status
	p.DecidedBy = &actorID
	p.DecidedAt = &at
	s.requests[id] = p
	return p, true, nil
}

func (s *store) PendingRequestRiders(_ context.Context, tripID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, p := range s.requests {
		if p.TripID == tripID && p.Status == models.RequestPending {
			ids = append(ids, p.RiderID)
		}
	}
	return ids, nil
}

// ---- notifications ----

func (s *store) CreateNotification(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notifyErr != nil {
		return s.notifyErr
	}
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *store) ListNotifications(_ context.Context, userID string, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, 0)
	for i := len(s.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if s.notifications[i].UserID == userID {
			out = append(out, s.notifications[i])
		}
	}
	return out, nil
}

func (s *store) MarkRead(_ context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications {
		if n.ID == id && n.UserID == userID {
			s.notifications[i].Read = true
			return true, nil
		}
	}
	return false, nil
}

// ---- publisher ----

type published struct {
	Room  string
	Event string
	Data  json.RawMessage
}

type recorder struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (r *recorder) Emit(_ context.Context, room, event string, data any) error {
	if r.err != nil {
		return r.err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.events = append(r.events, published{Room: room, Event: event, Data: raw})
	r.mu.Unlock()
	return nil
}

func (r *recorder) rooms(event string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Event == event {
			out = append(out, e.Room)
		}
	}
	return out
}

// failingCache fails every call, simulating a Redis outage.
type failingCache struct{}

var errCacheDown = errors.New("redis: connection refused")

func (failingCache) Get(context.Context, string) (models.PositionSample, bool, error) {
	return models.PositionSample{}, false, errCacheDown
}
func (failingCache) Set(context.Context, models.PositionSample, time.Duration) error {
	return errCacheDown
}
func (failingCache) List(context.Context) ([]models.PositionSample, error) { return nil, errCacheDown }
func (failingCache) Incr(context.Context, string) (int64, error)           { return 0, errCacheDown }

func ptr[T any](v T) *T { return &v }
