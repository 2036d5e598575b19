package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"collecte-backend/internal/domain"
	"collecte-backend/internal/logger"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type mailClient interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// EmailSink mails alerts to the supervisor through SendGrid.
type EmailSink struct {
	client     mailClient
	fromEmail  string
	fromName   string
	supervisor string
}

func NewEmailSink(apiKey, fromEmail, fromName, supervisor string) *EmailSink {
	return &EmailSink{
		client:     sendgrid.NewSendClient(apiKey),
		fromEmail:  fromEmail,
		fromName:   fromName,
		supervisor: supervisor,
	}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Send(ctx context.Context, note *domain.Notification) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail("Supervisor", s.supervisor)
	subject := fmt.Sprintf("[%s] %s", note.Kind, note.Title)
	message := mail.NewSingleEmail(from, subject, to, plainBody(note), "")

	logger.ExternalServiceCall("sendgrid", "Send", "kind", note.Kind, "to", s.supervisor)
	response, err := s.client.Send(message)
	if err == nil && response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	logger.ExternalServiceResult("sendgrid", "Send", err)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func plainBody(note *domain.Notification) string {
	var b strings.Builder
	b.WriteString(note.Message)
	b.WriteString("\n\n")
	keys := make([]string, 0, len(note.Attributes))
	for k := range note.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, note.Attributes[k])
	}
	fmt.Fprintf(&b, "collector_id: %d\nagency_id: %d\n", note.CollectorID, note.AgencyID)
	return b.String()
}
