package handlers

import (
	"github.com/gofiber/fiber/v2"

	"fleetdispatch/pkg/middleware"
	"fleetdispatch/pkg/models"
	"fleetdispatch/pkg/services"
)

type TripsHandler struct {
	trips      services.TripService
	attendance services.AttendanceService
	scheduler  services.SchedulerService
}

func NewTrips(trips services.TripService, attendance services.AttendanceService, scheduler services.SchedulerService) *TripsHandler {
	return &TripsHandler{trips: trips, attendance: attendance, scheduler: scheduler}
}

// actor is the caller recorded on audit fields. A body userId is only used
// when the request was authorized by admin key and carries no user.
func actor(c *fiber.Ctx, bodyUserID string) string {
	id, ok := middleware.IdentityFrom(c)
	if ok && (id.UserID != middleware.AdminKeyUser || bodyUserID == "") {
		return id.UserID
	}
	return bodyUserID
}

func (h *TripsHandler) GenerateToday(c *fiber.Ctx) error {
	resp, err := h.scheduler.GenerateToday(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (h *TripsHandler) Get(c *fiber.Ctx) error {
	trip, err := h.trips.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(trip)
}

func (h *TripsHandler) UpdateStatus(c *fiber.Ctx) error {
	var req models.TripStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}

	trip, err := h.trips.UpdateStatus(c.UserContext(), c.Params("id"), req.Status, actor(c, req.UserID))
	if err != nil {
		return err
	}
	return c.JSON(trip)
}

func (h *TripsHandler) Manifest(c *fiber.Ctx) error {
	manifest, err := h.attendance.Manifest(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if manifest == nil {
		manifest = []models.Attendance{}
	}
	return c.JSON(manifest)
}

func (h *TripsHandler) UpdateAttendance(c *fiber.Ctx) error {
	var req struct {
		Status models.AttendanceStatus `json:"status"`
		UserID string                  `json:"userId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}

	a, err := h.attendance.UpdateAttendance(c.UserContext(), c.Params("id"), c.Params("riderId"), req.Status, actor(c, req.UserID))
	if err != nil {
		return err
	}
	return c.JSON(a)
}

func (h *TripsHandler) CreateException(c *fiber.Ctx) error {
	var req struct {
		RiderID string `json:"riderId"`
		Reason  string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}

	e, err := h.attendance.CreateException(c.UserContext(), c.Params("id"), req.RiderID, req.Reason)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(e)
}

func (h *TripsHandler) CancelException(c *fiber.Ctx) error {
	e, err := h.attendance.CancelException(c.UserContext(), c.Params("id"), c.Params("exceptionId"))
	if err != nil {
		return err
	}
	return c.JSON(e)
}

func (h *TripsHandler) CreatePickupRequest(c *fiber.Ctx) error {
	var req struct {
		RiderID string `json:"riderId"`
		Pickup  string `json:"pickup"`
		Dropoff string `json:"dropoff"`
		Note    string `json:"note"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}

	p, err := h.attendance.CreatePickupRequest(c.UserContext(), models.PickupRequest{
		TripID:  c.Params("id"),
		RiderID: req.RiderID,
		Pickup:  req.Pickup,
		Dropoff: req.Dropoff,
		Note:    req.Note,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *TripsHandler) DecidePickupRequest(c *fiber.Ctx) error {
	var req struct {
		Status models.RequestStatus `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}

	p, err := h.attendance.DecidePickupRequest(c.UserContext(), c.Params("id"), req.Status, actor(c, ""))
	if err != nil {
		return err
	}
	return c.JSON(p)
}
