package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetdispatch/pkg/apperr"
	"fleetdispatch/pkg/clock"
	"fleetdispatch/pkg/envelope"
	"fleetdispatch/pkg/models"
)

func seedTrip(st *store, id string, status models.TripStatus) models.Trip {
	trip := models.Trip{
		ID:          id,
		RouteID:     "route-1",
		VehicleID:   "bus-1",
		DriverID:    "driver-1",
		CompanyID:   "co-1",
		ServiceDate: models.ServiceDate(t0),
		Status:      status,
		Generated:   true,
	}
	st.trips[id] = trip
	return trip
}

func TestTripLifecycle(t *testing.T) {
	clk := clock.NewFake(t0)
	st := newStore()
	pub := &recorder{}
	svc := NewTripService(st, pub, clk)
	seedTrip(st, "trip-1", models.TripScheduled)
	ctx := context.Background()

	started, err := svc.UpdateStatus(ctx, "trip-1", models.TripInProgress, "driver-user")
	require.NoError(t, err)
	assert.Equal(t, models.TripInProgress, started.Status)
	require.NotNil(t, started.StartedAt)
	assert.True(t, started.StartedAt.Equal(t0))

	clk.Advance(40 * time.Minute)
	done, err := svc.UpdateStatus(ctx, "trip-1", models.TripCompleted, "driver-user")
	require.NoError(t, err)
	assert.Equal(t, models.TripCompleted, done.Status)
	require.NotNil(t, done.EndedAt)
	assert.True(t, done.EndedAt.Equal(t0.Add(40*time.Minute)))

	assert.Equal(t, []string{
		"trip:trip-1", "bus:bus-1", "company:co-1",
		"trip:trip-1", "bus:bus-1", "company:co-1",
	}, pub.rooms(envelope.EventTripStatus))
}

func TestTripInvalidTransitions(t *testing.T) {
	tests := []struct {
		from models.TripStatus
		to   models.TripStatus
	}{
		{models.TripScheduled, models.TripCompleted},
		{models.TripCompleted, models.TripInProgress},
		{models.TripCancelled, models.TripScheduled},
		{models.TripInProgress, models.TripScheduled},
		{models.TripCompleted, models.TripCancelled},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			st := newStore()
			pub := &recorder{}
			svc := NewTripService(st, pub, clock.NewFake(t0))
			seedTrip(st, "trip-1", tt.from)

			_, err := svc.UpdateStatus(context.Background(), "trip-1", tt.to, "u")
			require.Error(t, err)
			assert.True(t, apperr.IsInvalidTransition(err))
			assert.Equal(t, tt.from, st.trips["trip-1"].Status)
			assert.Empty(t, pub.events)
		})
	}
}

func TestTripCancelFromEitherActiveState(t *testing.T) {
	for _, from := range []models.TripStatus{models.TripScheduled, models.TripInProgress} {
		st := newStore()
		svc := NewTripService(st, nil, clock.NewFake(t0))
		seedTrip(st, "trip-1", from)

		trip, err := svc.UpdateStatus(context.Background(), "trip-1", models.TripCancelled, "admin")
		require.NoError(t, err)
		assert.Equal(t, models.TripCancelled, trip.Status)
	}
}

func TestTripUpdateStatusErrors(t *testing.T) {
	st := newStore()
	svc := NewTripService(st, nil, clock.NewFake(t0))
	seedTrip(st, "trip-1", models.TripScheduled)

	_, err := svc.UpdateStatus(context.Background(), "missing", models.TripInProgress, "u")
	assert.True(t, apperr.IsNotFound(err))

	_, err = svc.UpdateStatus(context.Background(), "trip-1", models.TripStatus("PAUSED"), "u")
	assert.True(t, apperr.IsValidation(err))
}
