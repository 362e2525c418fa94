// Package scheduler fires the daily trip generation at a fixed local time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fleetdispatch/pkg/clock"
	"fleetdispatch/pkg/config"
	"fleetdispatch/pkg/models"
)

const triggerAutomatic = "automatic"

// Generator is the part of the scheduler service the runner drives.
type Generator interface {
	Generate(ctx context.Context, day time.Time, trigger string) (models.GenerationResult, error)
}

type Runner struct {
	gen        Generator
	clock      clock.Clock
	loc        *time.Location
	hour       int
	minute     int
	runOnStart bool
	log        *slog.Logger
}

func New(gen Generator, clk clock.Clock, cfg config.SchedulerConfig) (*Runner, error) {
	at, err := time.Parse("15:04", cfg.DailyAt)
	if err != nil {
		return nil, fmt.Errorf("scheduler daily_at %q: %w", cfg.DailyAt, err)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone %q: %w", cfg.Timezone, err)
	}
	return &Runner{
		gen:        gen,
		clock:      clk,
		loc:        loc,
		hour:       at.Hour(),
		minute:     at.Minute(),
		runOnStart: cfg.RunOnStart,
		log:        slog.Default().With("component", "scheduler"),
	}, nil
}

// Next returns the first trigger time strictly after t. Days are counted
// in the runner's time zone, so a DST change moves the UTC instant, not the
// wall-clock time.
func (r *Runner) Next(t time.Time) time.Time {
	local := t.In(r.loc)
	y, m, d := local.Date()
	next := time.Date(y, m, d, r.hour, r.minute, 0, 0, r.loc)
	if !next.After(local) {
		next = time.Date(y, m, d+1, r.hour, r.minute, 0, 0, r.loc)
	}
	return next
}

// Run blocks until ctx is cancelled, generating trips once per day.
func (r *Runner) Run(ctx context.Context) error {
	if r.runOnStart {
		r.fire(ctx, r.clock.Now())
	}

	for {
		now := r.clock.Now()
		next := r.Next(now)
		r.log.Debug("next trip generation scheduled", "at", next)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case fired := <-r.clock.After(next.Sub(now)):
			r.fire(ctx, fired)
		}
	}
}

func (r *Runner) fire(ctx context.Context, at time.Time) {
	day := models.ServiceDate(at.In(r.loc))
	if _, err := r.gen.Generate(ctx, day, triggerAutomatic); err != nil {
		r.log.Error("daily trip generation failed", "day", day.Format("2006-01-02"), "error", err)
	}
}
