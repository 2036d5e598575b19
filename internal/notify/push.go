package notify

import (
	"context"
	"errors"
	"fmt"

	"collecte-backend/internal/domain"
	"collecte-backend/internal/logger"
	"collecte-backend/internal/repository"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type pushClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushSink sends the alert to the collector's device through Firebase Cloud
// Messaging. Collectors without a registered token are skipped.
type PushSink struct {
	client    pushClient
	directory repository.DirectoryRepository
}

func NewPushSink(ctx context.Context, credentialsFile, projectID string, directory repository.DirectoryRepository) (*PushSink, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging: %w", err)
	}
	return &PushSink{client: client, directory: directory}, nil
}

func (s *PushSink) Name() string { return "push" }

func (s *PushSink) Send(ctx context.Context, note *domain.Notification) error {
	collector, err := s.directory.GetCollector(ctx, note.CollectorID)
	if errors.Is(err, domain.ErrCollectorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if collector.PushToken == "" {
		return nil
	}

	data := map[string]string{"kind": string(note.Kind)}
	for k, v := range note.Attributes {
		data[k] = v
	}
	logger.ExternalServiceCall("fcm", "Send", "kind", note.Kind, "collector_id", collector.ID)
	_, err = s.client.Send(ctx, &messaging.Message{
		Token: collector.PushToken,
		Notification: &messaging.Notification{
			Title: note.Title,
			Body:  note.Message,
		},
		Data: data,
	})
	logger.ExternalServiceResult("fcm", "Send", err)
	if err != nil {
		return fmt.Errorf("failed to send push notification: %w", err)
	}
	return nil
}
