package services

import (
	"context"
	"fmt"
	"log/slog"

	"fleetdispatch/pkg/apperr"
	"fleetdispatch/pkg/clock"
	"fleetdispatch/pkg/envelope"
	"fleetdispatch/pkg/models"
	"fleetdispatch/pkg/repository"
	"fleetdispatch/pkg/rooms"
)

type TripService interface {
	Get(ctx context.Context, id string) (models.Trip, error)
	UpdateStatus(ctx context.Context, tripID string, to models.TripStatus, actorID string) (models.Trip, error)
}

type tripService struct {
	trips repository.TripRepository
	pub   Publisher
	clock clock.Clock
	log   *slog.Logger
}

func NewTripService(trips repository.TripRepository, pub Publisher, clk clock.Clock) TripService {
	return &tripService{
		trips: trips,
		pub:   pub,
		clock: clk,
		log:   slog.Default().With("component", "trips"),
	}
}

func (s *tripService) Get(ctx context.Context, id string) (models.Trip, error) {
	return s.trips.GetTrip(ctx, id)
}

type tripStatusEvent struct {
	TripID    string            `json:"tripId"`
	VehicleID string            `json:"vehicleId"`
	Status    models.TripStatus `json:"status"`
	Previous  models.TripStatus `json:"previousStatus"`
	UpdatedBy string            `json:"updatedBy,omitempty"`
	Trip      models.Trip       `json:"trip"`
}

func (s *tripService) UpdateStatus(ctx context.Context, tripID string, to models.TripStatus, actorID string) (models.Trip, error) {
	if !to.Valid() {
		return models.Trip{}, apperr.Validation("status", "unknown trip status %q", to)
	}

	current, err := s.trips.GetTrip(ctx, tripID)
	if err != nil {
		return current, err
	}
	if !current.Status.CanTransitionTo(to) {
		return current, &apperr.InvalidTransitionError{Entity: "trip", From: string(current.Status), To: string(to)}
	}

	updated, ok, err := s.trips.TransitionTrip(ctx, tripID, current.Status, to, s.clock.Now())
	if err != nil {
		return current, fmt.Errorf("update trip %s: %w", tripID, err)
	}
	if !ok {
		// Another writer moved the trip first; report against what it holds now.
		latest, err := s.trips.GetTrip(ctx, tripID)
		if err != nil {
			return current, err
		}
		return latest, &apperr.InvalidTransitionError{Entity: "trip", From: string(latest.Status), To: string(to)}
	}

	s.log.Info("trip status changed", "trip_id", tripID, "from", current.Status, "to", to, "actor", actorID)

	evt := tripStatusEvent{
		TripID:    updated.ID,
		VehicleID: updated.VehicleID,
		Status:    updated.Status,
		Previous:  current.Status,
		UpdatedBy: actorID,
		Trip:      updated,
	}
	s.emit(ctx, rooms.Trip(updated.ID), evt)
	if updated.VehicleID != "" {
		s.emit(ctx, rooms.Bus(updated.VehicleID), evt)
	}
	if updated.CompanyID != "" {
		s.emit(ctx, rooms.Company(updated.CompanyID), evt)
	}
	return updated, nil
}

func (s *tripService) emit(ctx context.Context, room string, evt tripStatusEvent) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Emit(ctx, room, envelope.EventTripStatus, evt); err != nil {
		s.log.Warn("trip status publish failed", "trip_id", evt.TripID, "room", room, "error", err)
	}
}
