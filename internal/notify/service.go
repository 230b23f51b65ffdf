package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

// Service sends operational notifications to the platform operator:
// retraining outcomes, models entering or failing canary, and anything
// else that needs a human decision.
type Service struct {
	email         EmailSender
	operatorEmail string
	operatorName  string
	logger        *logging.Logger
}

func NewService(email EmailSender, operatorEmail, operatorName string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if email == nil {
		email = NewStubEmailSender(logger)
	}
	return &Service{
		email:         email,
		operatorEmail: operatorEmail,
		operatorName:  operatorName,
		logger:        logger,
	}
}

// Notify sends a plain-text message to the operator. With no operator
// address configured it logs and succeeds, so pipelines never fail on
// notification plumbing.
func (s *Service) Notify(ctx context.Context, subject, body string) error {
	if s.operatorEmail == "" {
		s.logger.Info("operator email not configured, skipping notification", "subject", subject)
		return nil
	}

	msg := EmailMessage{
		To:      s.operatorEmail,
		ToName:  s.operatorName,
		Subject: fmt.Sprintf("[Bookline] %s", subject),
		Body:    fmt.Sprintf("%s\n\nSent %s", body, time.Now().UTC().Format(time.RFC1123)),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: operator notification: %w", err)
	}
	return nil
}
