package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"fleetdispatch/pkg/apperr"
	"fleetdispatch/pkg/clock"
	"fleetdispatch/pkg/envelope"
	"fleetdispatch/pkg/gtfsrt"
	"fleetdispatch/pkg/hub"
	"fleetdispatch/pkg/models"
	"fleetdispatch/pkg/services"
)

type GPSHandler struct {
	positions services.PositionService
	clock     clock.Clock
}

func NewGPS(positions services.PositionService, clk clock.Clock) *GPSHandler {
	return &GPSHandler{positions: positions, clock: clk}
}

// RegisterActions wires gps_update so drivers can report over the socket.
func (h *GPSHandler) RegisterActions(hb *hub.Hub) {
	hb.On(envelope.EventGPSUpdate, h.gpsUpdate)
}

func (h *GPSHandler) gpsUpdate(ctx context.Context, from models.Identity, env envelope.Envelope) (any, error) {
	if !from.Is(models.RoleDriver) {
		return nil, &apperr.ForbiddenError{Reason: "only drivers report positions"}
	}
	report, err := envelope.ParseData[models.PositionReport](env)
	if err != nil {
		return nil, apperr.Validation("", "invalid gps_update payload")
	}
	return h.positions.Ingest(ctx, report)
}

func (h *GPSHandler) Heartbeat(c *fiber.Ctx) error {
	var report models.PositionReport
	if err := c.BodyParser(&report); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}

	res, err := h.positions.Ingest(c.UserContext(), report)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":    "accepted",
		"persisted": res.Persisted,
	})
}

func (h *GPSHandler) Location(c *fiber.Ctx) error {
	sample, ok, err := h.positions.CurrentPosition(c.UserContext(), c.Params("vehicleId"))
	if err != nil {
		return err
	}
	if !ok {
		return c.JSON(fiber.Map{})
	}
	return c.JSON(sample)
}

func (h *GPSHandler) Locations(c *fiber.Ctx) error {
	from, err := parseTime(c.Query("startTime"))
	if err != nil {
		return apperr.Validation("startTime", "must be RFC3339")
	}
	to, err := parseTime(c.Query("endTime"))
	if err != nil {
		return apperr.Validation("endTime", "must be RFC3339")
	}

	samples, err := h.positions.History(c.UserContext(), c.Params("vehicleId"), from, to, c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	if samples == nil {
		samples = []models.PositionSample{}
	}
	return c.JSON(samples)
}

// Feed exports every live vehicle as a GTFS-Realtime VehiclePositions feed.
func (h *GPSHandler) Feed(c *fiber.Ctx) error {
	samples, err := h.positions.LivePositions(c.UserContext())
	if err != nil {
		return err
	}
	raw, err := gtfsrt.Encode(samples, h.clock.Now())
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, gtfsrt.ContentType)
	return c.Send(raw)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
