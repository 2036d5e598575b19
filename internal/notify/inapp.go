package notify

import (
	"context"

	"collecte-backend/internal/domain"
	"collecte-backend/internal/repository"
)

// InAppSink stores the alert in the collector's notification inbox.
type InAppSink struct {
	notes repository.NotificationRepository
}

func NewInAppSink(notes repository.NotificationRepository) *InAppSink {
	return &InAppSink{notes: notes}
}

func (s *InAppSink) Name() string { return "in-app" }

func (s *InAppSink) Send(ctx context.Context, note *domain.Notification) error {
	stored := *note
	return s.notes.Create(ctx, &stored)
}
