package handlers

import (
	"github.com/gofiber/fiber/v2"

	"fleetdispatch/pkg/middleware"
	"fleetdispatch/pkg/models"
	"fleetdispatch/pkg/services"
)

type NotificationsHandler struct {
	notifications services.NotificationService
}

func NewNotifications(notifications services.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{notifications: notifications}
}

func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	id, _ := middleware.IdentityFrom(c)
	list, err := h.notifications.List(c.UserContext(), id.UserID, c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	if list == nil {
		list = []models.Notification{}
	}
	return c.JSON(list)
}

func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	id, _ := middleware.IdentityFrom(c)
	if err := h.notifications.MarkRead(c.UserContext(), id.UserID, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "read"})
}
