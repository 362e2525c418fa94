package metrics

import (
	"context"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments are created against the global meter provider, which delegates
// to the SDK provider once Init installs it. Until then they are no-ops.
var (
	PositionsIngested     metric.Int64Counter
	PositionsPersisted    metric.Int64Counter
	PositionsDegraded     metric.Int64Counter
	EventsDelivered       metric.Int64Counter
	EventsDropped         metric.Int64Counter
	HubConnections        metric.Int64UpDownCounter
	TripsGenerated        metric.Int64Counter
	SchedulesSkipped      metric.Int64Counter
	SchedulerRunDuration  metric.Float64Histogram
	AttendanceTransitions metric.Int64Counter
)

func init() {
	if err := initializeInstruments(otelapi.Meter(meterName)); err != nil {
		otelapi.Handle(err)
	}
}

func initializeInstruments(m metric.Meter) error {
	var err error

	if PositionsIngested, err = m.Int64Counter("gps.positions.ingested",
		metric.WithDescription("Position reports received, by result"),
		metric.WithUnit("{report}")); err != nil {
		return err
	}
	if PositionsPersisted, err = m.Int64Counter("gps.positions.persisted",
		metric.WithDescription("Position reports written to durable history"),
		metric.WithUnit("{report}")); err != nil {
		return err
	}
	if PositionsDegraded, err = m.Int64Counter("gps.positions.degraded",
		metric.WithDescription("Reports handled without the cache or counter, by reason"),
		metric.WithUnit("{report}")); err != nil {
		return err
	}
	if EventsDelivered, err = m.Int64Counter("hub.events.delivered",
		metric.WithDescription("Events queued to observer connections"),
		metric.WithUnit("{event}")); err != nil {
		return err
	}
	if EventsDropped, err = m.Int64Counter("hub.events.dropped",
		metric.WithDescription("Events dropped for slow or closed connections"),
		metric.WithUnit("{event}")); err != nil {
		return err
	}
	if HubConnections, err = m.Int64UpDownCounter("hub.connections",
		metric.WithDescription("Open observer connections"),
		metric.WithUnit("{connection}")); err != nil {
		return err
	}
	if TripsGenerated, err = m.Int64Counter("scheduler.trips.generated",
		metric.WithDescription("Trips created by the scheduler, by trigger"),
		metric.WithUnit("{trip}")); err != nil {
		return err
	}
	if SchedulesSkipped, err = m.Int64Counter("scheduler.schedules.skipped",
		metric.WithDescription("Schedules not expanded, by reason"),
		metric.WithUnit("{schedule}")); err != nil {
		return err
	}
	if SchedulerRunDuration, err = m.Float64Histogram("scheduler.run.duration",
		metric.WithDescription("Duration of one scheduler expansion"),
		metric.WithUnit("s")); err != nil {
		return err
	}
	if AttendanceTransitions, err = m.Int64Counter("trips.attendance.transitions",
		metric.WithDescription("Attendance status changes, by target status"),
		metric.WithUnit("{transition}")); err != nil {
		return err
	}
	return nil
}

// Add is a shorthand for counters with a single string attribute.
func Add(ctx context.Context, c metric.Int64Counter, n int64, key, value string) {
	if key == "" {
		c.Add(ctx, n)
		return
	}
	c.Add(ctx, n, metric.WithAttributes(attribute.String(key, value)))
}
