package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetdispatch/pkg/clock"
	"fleetdispatch/pkg/models"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC)

func newSchedulerFixture(t *testing.T, now time.Time) (SchedulerService, *store, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(now)
	st := newStore()
	svc := NewSchedulerService(st, st, st, st, clk, SchedulerOptions{Location: time.UTC, DailyAt: "00:05"})
	return svc, st, clk
}

func mondaySchedule(id, routeID string) models.RecurringSchedule {
	return models.RecurringSchedule{
		ID:               id,
		RouteID:          routeID,
		CompanyID:        "co-1",
		DriverID:         ptr("driver-1"),
		VehicleID:        ptr("bus-1"),
		TriggerTime:      "07:30",
		Weekdays:         []string{"MONDAY", "WEDNESDAY"},
		Status:           models.ScheduleActive,
		AutoAssignRiders: true,
	}
}

func claimedRiders(routeID string, n int) []models.Rider {
	riders := make([]models.Rider, 0, n)
	for i := 0; i < n; i++ {
		riders = append(riders, models.Rider{
			ID:      routeID + "-rider-" + string(rune('a'+i)),
			Name:    "Rider " + string(rune('A'+i)),
			RouteID: ptr(routeID),
			Claimed: true,
		})
	}
	return riders
}

func TestGenerateMondayScenario(t *testing.T) {
	svc, st, _ := newSchedulerFixture(t, monday)
	st.schedules = []models.RecurringSchedule{mondaySchedule("s-1", "route-1")}
	st.riders = append(claimedRiders("route-1", 3), models.Rider{ID: "unclaimed", RouteID: ptr("route-1")})

	res, err := svc.Generate(context.Background(), monday, TriggerAutomatic)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TripsCreated)
	assert.Equal(t, 3, res.AttendanceCreated)
	assert.Equal(t, 0, res.SchedulesFailed)
	require.Equal(t, 1, st.tripCount())
	assert.Equal(t, 3, st.attendanceCount())

	for _, trip := range st.trips {
		assert.Equal(t, models.TripScheduled, trip.Status)
		assert.True(t, trip.Generated)
		assert.Equal(t, "bus-1", trip.VehicleID)
		assert.Equal(t, time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC), trip.ScheduledStart)
	}
	for _, a := range st.attendance {
		assert.Equal(t, models.AttendancePending, a.Status)
	}

	again, err := svc.Generate(context.Background(), monday, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 0, again.TripsCreated)
	assert.Equal(t, 0, again.AttendanceCreated)
	assert.Equal(t, 1, again.SchedulesSkipped)
	assert.Equal(t, 1, st.tripCount())
	assert.Equal(t, 3, st.attendanceCount())
}

func TestGenerateSkipsScheduleWithoutDriver(t *testing.T) {
	svc, st, _ := newSchedulerFixture(t, monday)
	broken := mondaySchedule("s-broken", "route-2")
	broken.DriverID = nil
	noVehicle := mondaySchedule("s-novehicle", "route-3")
	noVehicle.VehicleID = ptr("")
	st.schedules = []models.RecurringSchedule{broken, mondaySchedule("s-1", "route-1"), noVehicle}
	st.riders = claimedRiders("route-1", 2)

	res, err := svc.Generate(context.Background(), monday, TriggerAutomatic)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TripsCreated)
	assert.Equal(t, 2, res.SchedulesSkipped)
	assert.Equal(t, 2, res.AttendanceCreated)
	assert.Equal(t, 1, st.tripCount())
}

func TestGenerateIsolatesPerScheduleErrors(t *testing.T) {
	svc, st, _ := newSchedulerFixture(t, monday)
	st.schedules = []models.RecurringSchedule{mondaySchedule("s-1", "route-1"), mondaySchedule("s-2", "route-2")}
	st.createTripErr["route-1"] = errors.New("pq: deadlock detected")

	res, err := svc.Generate(context.Background(), monday, TriggerAutomatic)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SchedulesFailed)
	assert.Equal(t, 1, res.TripsCreated)
}

func TestGenerateCompletesRiderAssignmentOnRerun(t *testing.T) {
	svc, st, _ := newSchedulerFixture(t, monday)
	st.schedules = []models.RecurringSchedule{mondaySchedule("s-1", "route-1")}
	st.riders = claimedRiders("route-1", 3)
	st.ridersErrOnce = errors.New("pq: connection reset by peer")

	first, err := svc.Generate(context.Background(), monday, TriggerAutomatic)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TripsCreated)
	assert.Equal(t, 1, first.SchedulesFailed)
	assert.Equal(t, 0, st.attendanceCount())

	second, err := svc.Generate(context.Background(), monday, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 0, second.TripsCreated)
	assert.Equal(t, 3, second.AttendanceCreated)
	assert.Equal(t, 0, second.SchedulesFailed)
	assert.Equal(t, 1, st.tripCount())
	assert.Equal(t, 3, st.attendanceCount())
}

func TestGenerateLeavesStartedTripsAlone(t *testing.T) {
	svc, st, _ := newSchedulerFixture(t, monday)
	st.schedules = []models.RecurringSchedule{mondaySchedule("s-1", "route-1")}
	trip := seedTrip(st, "trip-1", models.TripInProgress)
	require.Equal(t, "route-1", trip.RouteID)
	st.riders = claimedRiders("route-1", 2)

	res, err := svc.Generate(context.Background(), monday, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 0, res.TripsCreated)
	assert.Equal(t, 1, res.SchedulesSkipped)
	assert.Equal(t, 0, st.attendanceCount())
}

func TestGenerateHonoursWeekdayAndWindow(t *testing.T) {
	svc, st, _ := newSchedulerFixture(t, monday)

	expired := mondaySchedule("s-expired", "route-2")
	expired.EffectiveUntil = ptr(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	future := mondaySchedule("s-future", "route-3")
	future.EffectiveFrom = ptr(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC))
	suspended := mondaySchedule("s-suspended", "route-4")
	suspended.Status = models.ScheduleSuspended
	boundary := mondaySchedule("s-boundary", "route-5")
	boundary.EffectiveFrom = ptr(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	boundary.EffectiveUntil = ptr(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	st.schedules = []models.RecurringSchedule{expired, future, suspended, boundary}

	res, err := svc.Generate(context.Background(), monday, TriggerAutomatic)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SchedulesMatched)
	assert.Equal(t, 1, res.TripsCreated)

	tuesday := monday.AddDate(0, 0, 1)
	res, err = svc.Generate(context.Background(), tuesday, TriggerAutomatic)
	require.NoError(t, err)
	assert.Equal(t, 0, res.SchedulesMatched)
}

func TestGenerateWithoutAutoAssign(t *testing.T) {
	svc, st, _ := newSchedulerFixture(t, monday)
	s := mondaySchedule("s-1", "route-1")
	s.AutoAssignRiders = false
	st.schedules = []models.RecurringSchedule{s}
	st.riders = claimedRiders("route-1", 3)

	res, err := svc.Generate(context.Background(), monday, TriggerAutomatic)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TripsCreated)
	assert.Equal(t, 0, res.AttendanceCreated)
}

func TestGenerateTodayReportsExistingAutomaticBatch(t *testing.T) {
	svc, st, clk := newSchedulerFixture(t, monday)
	st.schedules = []models.RecurringSchedule{mondaySchedule("s-1", "route-1"), mondaySchedule("s-2", "route-2")}

	_, err := svc.Generate(context.Background(), clk.Now(), TriggerAutomatic)
	require.NoError(t, err)

	clk.Advance(3 * time.Hour)
	resp, err := svc.GenerateToday(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, TriggerAutomatic, resp.GenerationType)
	require.NotNil(t, resp.ExistingTripsCount)
	assert.Equal(t, 2, *resp.ExistingTripsCount)
	assert.Nil(t, resp.TripsCreated)
}

func TestGenerateTodayRunsManualGeneration(t *testing.T) {
	svc, st, _ := newSchedulerFixture(t, monday.Add(9*time.Hour))
	st.schedules = []models.RecurringSchedule{mondaySchedule("s-1", "route-1")}

	resp, err := svc.GenerateToday(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TriggerManual, resp.GenerationType)
	require.NotNil(t, resp.TripsCreated)
	assert.Equal(t, 1, *resp.TripsCreated)

	resp, err = svc.GenerateToday(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TriggerManual, resp.GenerationType)
	require.NotNil(t, resp.ExistingTripsCount)
	assert.Equal(t, 1, *resp.ExistingTripsCount)
}
