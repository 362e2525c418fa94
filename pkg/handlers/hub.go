package handlers

import (
	"github.com/gofiber/fiber/v2"

	"fleetdispatch/pkg/hub"
)

func HubStatus(hb *hub.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(hb.Status())
	}
}
