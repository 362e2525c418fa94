package services

import (
	"context"

	"fleetdispatch/pkg/apperr"
	"fleetdispatch/pkg/models"
	"fleetdispatch/pkg/repository"
)

const defaultNotificationLimit = 50

type NotificationService interface {
	List(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}

type notificationService struct {
	repo repository.NotificationRepository
}

func NewNotificationService(repo repository.NotificationRepository) NotificationService {
	return &notificationService{repo: repo}
}

func (s *notificationService) List(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultNotificationLimit
	}
	return s.repo.ListNotifications(ctx, userID, limit)
}

func (s *notificationService) MarkRead(ctx context.Context, userID, id string) error {
	ok, err := s.repo.MarkRead(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("notification", id)
	}
	return nil
}
