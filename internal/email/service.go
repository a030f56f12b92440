package email

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/redmonkez12/go-session-auth/internal/logging"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service sends mail through an SMTP relay
type Service struct {
	smtpHost     string
	smtpPort     string
	smtpUser     string
	smtpPassword string
	fromEmail    string
	fromName     string
	linkValidFor time.Duration
	sendMail     sendMailFunc
}

func NewService(smtpHost, smtpPort, smtpUser, smtpPassword, fromEmail, fromName string, linkValidFor time.Duration) *Service {
	if fromEmail == "" {
		fromEmail = smtpUser
	}

	return &Service{
		smtpHost:     smtpHost,
		smtpPort:     smtpPort,
		smtpUser:     smtpUser,
		smtpPassword: smtpPassword,
		fromEmail:    fromEmail,
		fromName:     fromName,
		linkValidFor: linkValidFor,
		sendMail:     smtp.SendMail,
	}
}

// SendPasswordResetEmail sends the reset link, greeting the user by name
func (s *Service) SendPasswordResetEmail(ctx context.Context, toEmail, resetLink, displayName string) error {
	logger := logging.GetLoggerFromContext(ctx)

	html, _, err := renderPasswordReset(displayName, resetLink, s.linkValidFor)
	if err != nil {
		logger.Error("failed to render password reset email template", "error", err)
		return fmt.Errorf("render template: %w", err)
	}

	if err := s.sendEmail(toEmail, passwordResetSubject, html); err != nil {
		logger.Error("failed to send password reset email", "email", toEmail, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	logger.Info("password reset email sent", "email", toEmail)
	return nil
}

func (s *Service) sendEmail(to, subject, body string) error {
	var auth smtp.Auth
	if s.smtpUser != "" {
		auth = smtp.PlainAuth("", s.smtpUser, s.smtpPassword, s.smtpHost)
	}

	from := s.fromEmail
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.fromName), s.fromEmail)
	}

	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		from, to, mime.QEncoding.Encode("utf-8", subject), strings.TrimSpace(body),
	))

	addr := fmt.Sprintf("%s:%s", s.smtpHost, s.smtpPort)
	return s.sendMail(addr, auth, s.fromEmail, []string{to}, msg)
}
