package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetdispatch/pkg/apperr"
	"fleetdispatch/pkg/clock"
	"fleetdispatch/pkg/envelope"
	"fleetdispatch/pkg/models"
)

func newAttendanceFixture(t *testing.T) (AttendanceService, *store, *recorder) {
	t.Helper()
	st := newStore()
	pub := &recorder{}
	svc := NewAttendanceService(st, st, st, st, pub, clock.NewFake(t0))

	seedTrip(st, "trip-1", models.TripInProgress)
	st.riders = []models.Rider{
		{ID: "r1", Name: "Ana", GuardianUserID: "g1", RouteID: ptr("route-1"), Claimed: true},
		{ID: "r2", Name: "Bruno", GuardianUserID: "g2", RouteID: ptr("route-1"), Claimed: true},
		{ID: "r3", Name: "Carla", RouteID: ptr("route-1"), Claimed: true},
	}
	for _, r := range st.riders {
		st.attendance[attendanceKey("trip-1", r.ID)] = models.Attendance{
			ID: "att-" + r.ID, TripID: "trip-1", RiderID: r.ID, Status: models.AttendancePending,
		}
	}
	return svc, st, pub
}

func riderIDs(list []models.Attendance) []string {
	ids := make([]string, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.RiderID)
	}
	return ids
}

func TestUpdateAttendanceNotifiesGuardian(t *testing.T) {
	svc, st, pub := newAttendanceFixture(t)

	a, err := svc.UpdateAttendance(context.Background(), "trip-1", "r1", models.AttendancePickedUp, "driver-user")
	require.NoError(t, err)
	assert.Equal(t, models.AttendancePickedUp, a.Status)
	require.NotNil(t, a.UpdatedBy)
	assert.Equal(t, "driver-user", *a.UpdatedBy)

	require.Len(t, st.events, 1)
	assert.Equal(t, models.AttendancePending, st.events[0].From)
	assert.Equal(t, models.AttendancePickedUp, st.events[0].To)

	require.Len(t, st.notifications, 1)
	assert.Equal(t, "g1", st.notifications[0].UserID)
	assert.Equal(t, "Ana has been picked up", st.notifications[0].Body)

	assert.Equal(t, []string{"user:g1"}, pub.rooms(envelope.EventNewNotification))
	assert.ElementsMatch(t, []string{"user:g1", "trip:trip-1", "company:co-1"}, pub.rooms(envelope.EventAttendanceUpdated))

	var evt attendanceEvent
	require.NoError(t, json.Unmarshal(pub.events[len(pub.events)-1].Data, &evt))
	assert.Equal(t, models.AttendancePickedUp, evt.Status)
	assert.Equal(t, models.AttendancePending, evt.Previous)
}

func TestUpdateAttendanceWithoutGuardian(t *testing.T) {
	svc, st, pub := newAttendanceFixture(t)

	_, err := svc.UpdateAttendance(context.Background(), "trip-1", "r3", models.AttendanceMissed, "driver-user")
	require.NoError(t, err)
	assert.Empty(t, st.notifications)
	assert.Equal(t, []string{"trip:trip-1", "company:co-1"}, pub.rooms(envelope.EventAttendanceUpdated))
}

func TestUpdateAttendanceSideEffectsAreIsolated(t *testing.T) {
	svc, st, pub := newAttendanceFixture(t)
	st.notifyErr = errors.New("pq: relation does not exist")

	a, err := svc.UpdateAttendance(context.Background(), "trip-1", "r1", models.AttendancePickedUp, "driver-user")
	require.NoError(t, err)
	assert.Equal(t, models.AttendancePickedUp, a.Status)
	assert.Len(t, pub.rooms(envelope.EventNewNotification), 1)

	pub.err = errors.New("broker down")
	a, err = svc.UpdateAttendance(context.Background(), "trip-1", "r1", models.AttendanceDropped, "driver-user")
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceDropped, a.Status)
}

func TestUpdateAttendanceInvalidTransition(t *testing.T) {
	svc, st, pub := newAttendanceFixture(t)
	ctx := context.Background()

	_, err := svc.UpdateAttendance(ctx, "trip-1", "r2", models.AttendanceDropped, "u")
	assert.True(t, apperr.IsInvalidTransition(err))

	_, err = svc.UpdateAttendance(ctx, "trip-1", "r2", models.AttendanceMissed, "u")
	require.NoError(t, err)
	_, err = svc.UpdateAttendance(ctx, "trip-1", "r2", models.AttendancePickedUp, "u")
	assert.True(t, apperr.IsInvalidTransition(err))

	assert.Equal(t, models.AttendanceMissed, st.attendance[attendanceKey("trip-1", "r2")].Status)
	assert.Len(t, st.events, 1)
	assert.Len(t, pub.rooms(envelope.EventAttendanceUpdated), 4)

	_, err = svc.UpdateAttendance(ctx, "trip-1", "nobody", models.AttendancePickedUp, "u")
	assert.True(t, apperr.IsNotFound(err))
}

func TestManifestExcludesExceptionsAndPendingRequests(t *testing.T) {
	svc, _, _ := newAttendanceFixture(t)
	ctx := context.Background()

	manifest, err := svc.Manifest(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3"}, riderIDs(manifest))

	exc, err := svc.CreateException(ctx, "trip-1", "r2", "sick")
	require.NoError(t, err)
	manifest, err = svc.Manifest(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r3"}, riderIDs(manifest))

	cancelled, err := svc.CancelException(ctx, "trip-1", exc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExceptionCancelled, cancelled.Status)
	manifest, err = svc.Manifest(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3"}, riderIDs(manifest))

	_, err = svc.CancelException(ctx, "trip-1", exc.ID)
	assert.True(t, apperr.IsInvalidTransition(err))

	req, err := svc.CreatePickupRequest(ctx, models.PickupRequest{TripID: "trip-1", RiderID: "r3", Pickup: "Library"})
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.Status)
	manifest, err = svc.Manifest(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, riderIDs(manifest))

	decided, err := svc.DecidePickupRequest(ctx, req.ID, models.RequestApproved, "operator")
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, decided.Status)
	manifest, err = svc.Manifest(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3"}, riderIDs(manifest))

	_, err = svc.DecidePickupRequest(ctx, req.ID, models.RequestRejected, "operator")
	assert.True(t, apperr.IsInvalidTransition(err))
}

func TestExceptionAndRequestValidation(t *testing.T) {
	svc, _, _ := newAttendanceFixture(t)
	ctx := context.Background()

	_, err := svc.CreateException(ctx, "trip-1", " ", "")
	assert.True(t, apperr.IsValidation(err))

	_, err = svc.CreateException(ctx, "missing", "r1", "")
	assert.True(t, apperr.IsNotFound(err))

	_, err = svc.CreatePickupRequest(ctx, models.PickupRequest{TripID: "trip-1"})
	assert.True(t, apperr.IsValidation(err))

	_, err = svc.DecidePickupRequest(ctx, "whatever", models.RequestPending, "operator")
	assert.True(t, apperr.IsValidation(err))

	exc, err := svc.CreateException(ctx, "trip-1", "r1", "")
	require.NoError(t, err)
	_, err = svc.CancelException(ctx, "other-trip", exc.ID)
	assert.True(t, apperr.IsNotFound(err))

	_, err = svc.Manifest(ctx, "missing")
	assert.True(t, apperr.IsNotFound(err))
}

func TestNotificationInbox(t *testing.T) {
	st := newStore()
	svc := NewNotificationService(st)
	ctx := context.Background()
	st.notifications = []models.Notification{
		{ID: "n1", UserID: "g1", Title: "a"},
		{ID: "n2", UserID: "g2", Title: "b"},
		{ID: "n3", UserID: "g1", Title: "c"},
	}

	list, err := svc.List(ctx, "g1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "n3", list[0].ID)

	require.NoError(t, svc.MarkRead(ctx, "g1", "n1"))
	assert.True(t, st.notifications[0].Read)

	assert.True(t, apperr.IsNotFound(svc.MarkRead(ctx, "g1", "n2")))
}
