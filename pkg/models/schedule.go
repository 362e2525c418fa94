package models

import (
	"fmt"
	"strings"
	"time"
)

type ScheduleStatus string

const (
	ScheduleActive    ScheduleStatus = "ACTIVE"
	ScheduleInactive  ScheduleStatus = "INACTIVE"
	ScheduleSuspended ScheduleStatus = "SUSPENDED"
)

var weekdayTokens = [...]string{"SUNDAY", "MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY"}

// WeekdayToken returns the upper-case day name used in schedule weekday sets.
func WeekdayToken(t time.Time) string {
	return weekdayTokens[t.Weekday()]
}

type RecurringSchedule struct {
	ID               string         `json:"id"`
	RouteID          string         `json:"route_id"`
	CompanyID        string         `json:"company_id"`
	DriverID         *string        `json:"driver_id,omitempty"`
	VehicleID        *string        `json:"vehicle_id,omitempty"`
	TriggerTime      string         `json:"trigger_time"`
	Weekdays         []string       `json:"weekdays"`
	EffectiveFrom    *time.Time     `json:"effective_from,omitempty"`
	EffectiveUntil   *time.Time     `json:"effective_until,omitempty"`
	Status           ScheduleStatus `json:"status"`
	AutoAssignRiders bool           `json:"auto_assign_riders"`
}

// RunsOn reports whether the schedule is ACTIVE, recurs on day's weekday and
// its effective window (inclusive, nil bounds open) contains day.
func (s RecurringSchedule) RunsOn(day time.Time) bool {
	if s.Status != ScheduleActive {
		return false
	}

	token := WeekdayToken(day)
	found := false
	for _, w := range s.Weekdays {
		if strings.EqualFold(strings.TrimSpace(w), token) {
			found = true
			break
		}
	}
	if !found {
		return false
	}

	d := civilDate(day)
	if s.EffectiveFrom != nil && d < civilDate(*s.EffectiveFrom) {
		return false
	}
	if s.EffectiveUntil != nil && d > civilDate(*s.EffectiveUntil) {
		return false
	}
	return true
}

// StartAt combines day's calendar date with the schedule's trigger time in
// day's location.
func (s RecurringSchedule) StartAt(day time.Time) (time.Time, error) {
	var tod time.Time
	var err error
	for _, layout := range []string{"15:04", "15:04:05"} {
		tod, err = time.Parse(layout, strings.TrimSpace(s.TriggerTime))
		if err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("trigger time %q: %w", s.TriggerTime, err)
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, tod.Hour(), tod.Minute(), tod.Second(), 0, day.Location()), nil
}

// civilDate maps a time onto yyyymmdd in its own location, so DATE columns
// read back as UTC midnight compare correctly with local days.
func civilDate(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// ServiceDate truncates t to midnight of its calendar day in its location.
func ServiceDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
