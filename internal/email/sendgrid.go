package email

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/redmonkez12/go-session-auth/internal/logging"
)

const defaultSendGridHost = "https://api.sendgrid.com"

// SendGridService sends mail through the SendGrid v3 API
type SendGridService struct {
	apiKey       string
	host         string
	fromEmail    string
	fromName     string
	linkValidFor time.Duration
}

func NewSendGridService(apiKey, fromEmail, fromName string, linkValidFor time.Duration) *SendGridService {
	return &SendGridService{
		apiKey:       apiKey,
		host:         defaultSendGridHost,
		fromEmail:    fromEmail,
		fromName:     fromName,
		linkValidFor: linkValidFor,
	}
}

// SendPasswordResetEmail sends the reset link, greeting the user by name
func (s *SendGridService) SendPasswordResetEmail(ctx context.Context, toEmail, resetLink, displayName string) error {
	logger := logging.GetLoggerFromContext(ctx)

	html, text, err := renderPasswordReset(displayName, resetLink, s.linkValidFor)
	if err != nil {
		logger.Error("failed to render password reset email template", "error", err)
		return fmt.Errorf("render template: %w", err)
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(displayName, toEmail)
	message := mail.NewSingleEmail(from, passwordResetSubject, to, text, html)

	request := sendgrid.GetRequest(s.apiKey, "/v3/mail/send", s.host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(message)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		logger.Error("failed to send password reset email", "email", toEmail, "error", err)
		return fmt.Errorf("send email: %w", err)
	}
	if response.StatusCode >= 300 {
		logger.Error("sendgrid rejected password reset email", "email", toEmail, "status", response.StatusCode, "body", response.Body)
		return fmt.Errorf("send email: sendgrid status %d", response.StatusCode)
	}

	logger.Info("password reset email sent", "email", toEmail, "status", response.StatusCode)
	return nil
}
