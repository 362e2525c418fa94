package handlers

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"fleetdispatch/pkg/hub"
	"fleetdispatch/pkg/middleware"
	"fleetdispatch/pkg/models"
)

type Routes struct {
	Auth          *middleware.Auth
	GPS           *GPSHandler
	Trips         *TripsHandler
	Notifications *NotificationsHandler
	Hub           *hub.Hub

	// HeartbeatLimit caps heartbeats per IP per minute. Zero disables it.
	HeartbeatLimit int
	// BaseContext bounds every websocket session; cancel it on shutdown.
	BaseContext context.Context
}

func (r Routes) Mount(app *fiber.App) {
	staff := []models.Role{models.RoleAdmin, models.RoleOperator, models.RoleDriver}

	app.Get("/hub/status", HubStatus(r.Hub))

	gps := app.Group("/gps", r.Auth.Require)
	heartbeat := []fiber.Handler{middleware.RequireRole(models.RoleDriver)}
	if r.HeartbeatLimit > 0 {
		heartbeat = append(heartbeat, limiter.New(limiter.Config{
			Max:        r.HeartbeatLimit,
			Expiration: 1 * time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
		}))
	}
	gps.Post("/heartbeat", append(heartbeat, r.GPS.Heartbeat)...)
	gps.Get("/location/:vehicleId", r.GPS.Location)
	gps.Get("/locations/:vehicleId", r.GPS.Locations)
	gps.Get("/feed", r.GPS.Feed)

	app.Post("/trips/generate-today", r.Auth.AdminKeyOrRole(models.RoleAdmin), r.Trips.GenerateToday)

	trips := app.Group("/trips", r.Auth.Require)
	trips.Get("/:id", r.Trips.Get)
	trips.Patch("/:id/status", middleware.RequireRole(staff...), r.Trips.UpdateStatus)
	trips.Get("/:id/manifest", middleware.RequireRole(staff...), r.Trips.Manifest)
	trips.Patch("/:id/attendance/:riderId", middleware.RequireRole(staff...), r.Trips.UpdateAttendance)
	trips.Post("/:id/exceptions", r.Trips.CreateException)
	trips.Delete("/:id/exceptions/:exceptionId", r.Trips.CancelException)
	trips.Post("/:id/pickup-requests", r.Trips.CreatePickupRequest)

	app.Patch("/pickup-requests/:id", r.Auth.Require, middleware.RequireRole(models.RoleAdmin, models.RoleOperator), r.Trips.DecidePickupRequest)

	notifications := app.Group("/notifications", r.Auth.Require)
	notifications.Get("/", r.Notifications.List)
	notifications.Post("/:id/read", r.Notifications.MarkRead)

	base := r.BaseContext
	if base == nil {
		base = context.Background()
	}
	app.Get("/ws", r.Auth.WebSocket, websocket.New(func(c *websocket.Conn) {
		id, _ := middleware.ConnIdentity(c)
		r.Hub.Serve(base, c, id)
	}))
}
