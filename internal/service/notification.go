package service

import (
	"context"

	"collecte-backend/internal/domain"
	"collecte-backend/internal/repository"
)

type notificationService struct {
	noteRepo repository.NotificationRepository
}

func NewNotificationService(noteRepo repository.NotificationRepository) NotificationService {
	return &notificationService{noteRepo: noteRepo}
}

func (s *notificationService) GetNotifications(ctx context.Context, collectorID int64, page, pageSize int32) ([]domain.Notification, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	return s.noteRepo.List(ctx, collectorID, pageSize, offset)
}

func (s *notificationService) MarkAsRead(ctx context.Context, collectorID, notificationID int64) error {
	return s.noteRepo.MarkAsRead(ctx, notificationID, collectorID)
}
