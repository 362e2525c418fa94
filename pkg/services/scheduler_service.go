package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"fleetdispatch/pkg/apperr"
	"fleetdispatch/pkg/clock"
	"fleetdispatch/pkg/metrics"
	"fleetdispatch/pkg/models"
	"fleetdispatch/pkg/repository"
)

const (
	TriggerAutomatic = "automatic"
	TriggerManual    = "manual"
)

type SchedulerService interface {
	// Generate expands every schedule due on day into a SCHEDULED trip. It
	// is idempotent per (route, day) and isolates failures per schedule.
	Generate(ctx context.Context, day time.Time, trigger string) (models.GenerationResult, error)
	GenerateToday(ctx context.Context) (models.GenerationResponse, error)
}

type SchedulerOptions struct {
	Location *time.Location
	// DailyAt is the automatic trigger time ("15:04"). Its hour tells an
	// automatic batch apart from a manual one.
	DailyAt string
}

type schedulerService struct {
	schedules  repository.ScheduleRepository
	trips      repository.TripRepository
	fleet      repository.FleetRepository
	attendance repository.AttendanceRepository
	clock      clock.Clock
	loc        *time.Location
	autoHour   int
	log        *slog.Logger
}

func NewSchedulerService(schedules repository.ScheduleRepository, trips repository.TripRepository, fleet repository.FleetRepository,
	attendance repository.AttendanceRepository, clk clock.Clock, opts SchedulerOptions) SchedulerService {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	autoHour := 0
	if t, err := time.Parse("15:04", opts.DailyAt); err == nil {
		autoHour = t.Hour()
	}
	return &schedulerService{
		schedules:  schedules,
		trips:      trips,
		fleet:      fleet,
		attendance: attendance,
		clock:      clk,
		loc:        loc,
		autoHour:   autoHour,
		log:        slog.Default().With("component", "scheduler"),
	}
}

func (s *schedulerService) Generate(ctx context.Context, day time.Time, trigger string) (models.GenerationResult, error) {
	day = models.ServiceDate(day.In(s.loc))
	weekday := models.WeekdayToken(day)

	ctx, span := tracer.Start(ctx, "scheduler.generate", trace.WithAttributes(
		attribute.String("scheduler.day", day.Format("2006-01-02")),
		attribute.String("scheduler.trigger", trigger),
	))
	defer span.End()
	started := s.clock.Now()

	result := models.GenerationResult{Day: day}

	schedules, err := s.schedules.SchedulesFor(ctx, weekday, day)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("load schedules for %s: %w", weekday, err)
	}

	for _, sched := range schedules {
		if !sched.RunsOn(day) {
			continue
		}
		result.SchedulesMatched++

		created, attendance, err := s.expand(ctx, sched, day)
		result.AttendanceCreated += attendance
		if created {
			result.TripsCreated++
		}

		var precondition *apperr.SchedulingPreconditionError
		switch {
		case errors.As(err, &precondition):
			s.log.Warn("schedule skipped", "schedule_id", sched.ID, "reason", precondition.Reason)
			result.SchedulesSkipped++
			metrics.Add(ctx, metrics.SchedulesSkipped, 1, "reason", "precondition")
		case err != nil:
			s.log.Error("schedule expansion failed", "schedule_id", sched.ID, "route_id", sched.RouteID, "error", err)
			result.SchedulesFailed++
			metrics.Add(ctx, metrics.SchedulesSkipped, 1, "reason", "error")
		case !created:
			result.SchedulesSkipped++
			metrics.Add(ctx, metrics.SchedulesSkipped, 1, "reason", "exists")
		}
	}

	metrics.Add(ctx, metrics.TripsGenerated, int64(result.TripsCreated), "trigger", trigger)
	metrics.SchedulerRunDuration.Record(ctx, s.clock.Now().Sub(started).Seconds(),
		metric.WithAttributes(attribute.String("trigger", trigger)))
	span.SetAttributes(
		attribute.Int("scheduler.trips_created", result.TripsCreated),
		attribute.Int("scheduler.schedules_failed", result.SchedulesFailed),
	)

	s.log.Info("trip generation finished",
		"day", day.Format("2006-01-02"),
		"trigger", trigger,
		"matched", result.SchedulesMatched,
		"trips_created", result.TripsCreated,
		"attendance_created", result.AttendanceCreated,
		"skipped", result.SchedulesSkipped,
		"failed", result.SchedulesFailed,
	)
	return result, nil
}

// expand materializes one schedule. created is true only when this call
// inserted the trip; attendance counts rows inserted for it. Rider
// assignment is repeated for an existing SCHEDULED trip, so a run that
// failed halfway is completed by the next one.
func (s *schedulerService) expand(ctx context.Context, sched models.RecurringSchedule, day time.Time) (created bool, attendance int, err error) {
	if sched.DriverID == nil || *sched.DriverID == "" {
		return false, 0, &apperr.SchedulingPreconditionError{ScheduleID: sched.ID, Reason: "no driver assigned"}
	}
	if sched.VehicleID == nil || *sched.VehicleID == "" {
		return false, 0, &apperr.SchedulingPreconditionError{ScheduleID: sched.ID, Reason: "no vehicle assigned"}
	}

	start, err := sched.StartAt(day)
	if err != nil {
		return false, 0, err
	}

	now := s.clock.Now()
	trip, exists, err := s.trips.FindGeneratedTrip(ctx, sched.RouteID, day)
	if err != nil {
		return false, 0, fmt.Errorf("lookup trip: %w", err)
	}
	if !exists {
		scheduleID := sched.ID
		trip = models.Trip{
			ID:             uuid.NewString(),
			RouteID:        sched.RouteID,
			ScheduleID:     &scheduleID,
			VehicleID:      *sched.VehicleID,
			DriverID:       *sched.DriverID,
			CompanyID:      sched.CompanyID,
			ServiceDate:    day,
			ScheduledStart: start,
			Status:         models.TripScheduled,
			Generated:      true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		created, err = s.trips.CreateTrip(ctx, trip)
		if err != nil {
			return false, 0, fmt.Errorf("create trip: %w", err)
		}
		if !created {
			// Another writer inserted it first and assigns its riders.
			return false, 0, nil
		}
	}
	if !sched.AutoAssignRiders || trip.Status != models.TripScheduled {
		return created, 0, nil
	}

	attendance, err = s.assignRiders(ctx, sched.RouteID, trip.ID, now)
	return created, attendance, err
}

// assignRiders inserts PENDING attendance for every claimed rider on the
// route. Riders who already have a row are left alone.
func (s *schedulerService) assignRiders(ctx context.Context, routeID, tripID string, now time.Time) (int, error) {
	riders, err := s.fleet.ClaimedRidersOnRoute(ctx, routeID)
	if err != nil {
		return 0, fmt.Errorf("load riders: %w", err)
	}
	inserted := 0
	for _, rider := range riders {
		ok, err := s.attendance.CreateAttendance(ctx, models.Attendance{
			ID:        uuid.NewString(),
			TripID:    tripID,
			RiderID:   rider.ID,
			Status:    models.AttendancePending,
			UpdatedAt: now,
		})
		if err != nil {
			return inserted, fmt.Errorf("assign rider %s: %w", rider.ID, err)
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

func (s *schedulerService) GenerateToday(ctx context.Context) (models.GenerationResponse, error) {
	today := models.ServiceDate(s.clock.Now().In(s.loc))

	existing, err := s.trips.GeneratedTripsOn(ctx, today)
	if err != nil {
		return models.GenerationResponse{}, fmt.Errorf("load today's trips: %w", err)
	}

	if len(existing) > 0 {
		earliest := existing[0].CreatedAt
		for _, t := range existing[1:] {
			if t.CreatedAt.Before(earliest) {
				earliest = t.CreatedAt
			}
		}
		generationType := TriggerManual
		if earliest.In(s.loc).Hour() == s.autoHour {
			generationType = TriggerAutomatic
		}
		count := len(existing)
		return models.GenerationResponse{
			Success:            true,
			Message:            fmt.Sprintf("%d trips already generated for %s", count, today.Format("2006-01-02")),
			GenerationType:     generationType,
			ExistingTripsCount: &count,
		}, nil
	}

	result, err := s.Generate(ctx, today, TriggerManual)
	if err != nil {
		return models.GenerationResponse{}, err
	}
	created := result.TripsCreated
	return models.GenerationResponse{
		Success:        true,
		Message:        fmt.Sprintf("generated %d trips for %s", created, today.Format("2006-01-02")),
		GenerationType: TriggerManual,
		TripsCreated:   &created,
	}, nil
}
