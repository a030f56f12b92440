package auth

import (
	"context"

	"github.com/redmonkez12/go-session-auth/internal/user"
)

// UserRepository is the subset of user persistence the auth service needs.
// Implemented by user.Repository.
type UserRepository interface {
	Create(ctx context.Context, id, fullName, email string, passwordHash *string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByID(ctx context.Context, id string) (*user.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// EmailSender delivers the password reset link. Implemented by
// email.Service (SMTP) and email.SendGridService.
type EmailSender interface {
	SendPasswordResetEmail(ctx context.Context, toEmail, resetLink, displayName string) error
}
