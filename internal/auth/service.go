package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/go-session-auth/internal/logging"
	"github.com/redmonkez12/go-session-auth/internal/user"
)

// DefaultResetTokenDuration is how long an emailed reset link stays valid
const DefaultResetTokenDuration = 2 * time.Hour

// AuthResult is returned by operations that start a session
type AuthResult struct {
	User    *user.User
	Session *Session
	Cookie  CookieSpec
}

// CleanupResult counts rows removed by PurgeExpired
type CleanupResult struct {
	Sessions    int64
	ResetTokens int64
}

// Service handles authentication business logic
type Service struct {
	userRepo           UserRepository
	sessions           *SessionManager
	passwordResetRepo  PasswordResetRepository
	hasher             PasswordHasher
	emailSender        EmailSender
	logger             *logging.Logger
	baseURL            string
	resetTokenDuration time.Duration
	now                func() time.Time

	decoyOnce sync.Once
	decoyHash string
}

func NewService(
	userRepo UserRepository,
	sessions *SessionManager,
	passwordResetRepo PasswordResetRepository,
	hasher PasswordHasher,
	emailSender EmailSender,
	logger *logging.Logger,
	baseURL string,
	resetTokenDuration time.Duration,
) *Service {
	if resetTokenDuration <= 0 {
		resetTokenDuration = DefaultResetTokenDuration
	}

	return &Service{
		userRepo:           userRepo,
		sessions:           sessions,
		passwordResetRepo:  passwordResetRepo,
		hasher:             hasher,
		emailSender:        emailSender,
		logger:             logger,
		baseURL:            baseURL,
		resetTokenDuration: resetTokenDuration,
		now:                time.Now,
	}
}

// Sessions exposes the session manager used by the service
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// Register creates a new account and signs it in
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	_, err := s.userRepo.GetByEmail(ctx, in.Email)
	if err == nil {
		return nil, ErrDuplicateUser
	}
	if !errors.Is(err, user.ErrNotFound) {
		return nil, transient("find user", err)
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, transient("hash password", err)
	}

	newUser, err := s.userRepo.Create(ctx, uuid.NewString(), in.FullName, in.Email, &passwordHash)
	if err != nil {
		// A concurrent registration can pass the lookup above and lose on the
		// unique index
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, ErrDuplicateUser
		}
		return nil, transient("create user", err)
	}

	s.logger.Info("user registered", "user_id", newUser.ID)

	return s.startSession(ctx, newUser)
}

// Login verifies credentials and starts a session. Unknown email, accounts
// without a password and wrong passwords all return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	existingUser, err := s.userRepo.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.verifyDecoy(in.Password)
			return nil, ErrInvalidCredentials
		}
		return nil, transient("find user", err)
	}

	if !existingUser.HasPassword() {
		s.verifyDecoy(in.Password)
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(*existingUser.PasswordHash, in.Password)
	if err != nil {
		return nil, transient("verify password", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	return s.startSession(ctx, existingUser)
}

// verifyDecoy spends the same argon2 work as a real password check so a
// missing account answers as slowly as a wrong password
func (s *Service) verifyDecoy(password string) {
	s.decoyOnce.Do(func() {
		hash, err := s.hasher.Hash("decoy-password")
		if err != nil {
			s.logger.Error("failed to build decoy password hash", "error", err.Error())
			return
		}
		s.decoyHash = hash
	})
	if s.decoyHash != "" {
		_, _ = s.hasher.Verify(s.decoyHash, password)
	}
}

// Logout ends the session identified by sessionID and returns the cookie
// that clears it on the client
func (s *Service) Logout(ctx context.Context, sessionID string) (CookieSpec, error) {
	if sessionID == "" {
		return CookieSpec{}, ErrUnauthorized
	}

	session, err := s.sessions.ValidateSession(ctx, sessionID)
	if err != nil {
		return CookieSpec{}, transient("validate session", err)
	}
	if session == nil {
		return CookieSpec{}, ErrUnauthorized
	}

	if err := s.sessions.InvalidateSession(ctx, session.ID); err != nil {
		return CookieSpec{}, transient("invalidate session", err)
	}

	return s.sessions.BlankCookie(), nil
}

// ForgotPassword issues a reset token for the account and emails the link.
// Unknown emails return ErrUserNotFound; the HTTP layer decides whether to
// reveal that.
func (s *Service) ForgotPassword(ctx context.Context, in ForgotPasswordInput) error {
	if err := in.Validate(); err != nil {
		return err
	}

	existingUser, err := s.userRepo.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrUserNotFound
		}
		return transient("find user", err)
	}

	secret, err := s.IssueResetToken(ctx, existingUser.ID)
	if err != nil {
		return err
	}

	if err := s.emailSender.SendPasswordResetEmail(ctx, existingUser.Email, s.resetLink(secret), existingUser.FullName); err != nil {
		return transient("send password reset email", err)
	}

	s.logger.Info("password reset requested", "user_id", existingUser.ID)
	return nil
}

// ResetPassword sets a new password using an emailed reset token. Every
// session of the user is invalidated.
func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if err := in.Validate(); err != nil {
		return err
	}

	userID, err := s.ConsumeResetToken(ctx, in.Token)
	if err != nil {
		return err
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return transient("hash password", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, userID, passwordHash); err != nil {
		return transient("update password", err)
	}

	s.logger.Info("password reset", "user_id", userID)
	return nil
}

// IssueResetToken replaces any reset token the user holds with a new one and
// returns the raw secret. Only its fingerprint is stored.
func (s *Service) IssueResetToken(ctx context.Context, userID string) (string, error) {
	secret, err := GenerateSecret(DefaultSecretEntropy)
	if err != nil {
		return "", transient("generate reset token", err)
	}

	now := s.now().UTC()
	token := &PasswordResetToken{
		Fingerprint: Fingerprint(secret),
		UserID:      userID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.resetTokenDuration),
	}

	if err := s.passwordResetRepo.Replace(ctx, token); err != nil {
		return "", transient("store reset token", err)
	}

	return secret, nil
}

// ConsumeResetToken redeems secret once and returns the owning user id.
// Missing, expired and already used tokens all return ErrInvalidToken.
func (s *Service) ConsumeResetToken(ctx context.Context, secret string) (string, error) {
	if !looksLikeSecret(secret) {
		return "", ErrInvalidToken
	}

	fingerprint := Fingerprint(secret)

	token, err := s.passwordResetRepo.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, ErrResetTokenNotFound) {
			return "", ErrInvalidToken
		}
		return "", transient("find reset token", err)
	}

	if s.now().After(token.ExpiresAt) {
		if _, err := s.passwordResetRepo.DeleteByFingerprint(ctx, fingerprint); err != nil {
			s.logger.Warn("failed to delete expired reset token", "user_id", token.UserID, "error", err)
		}
		return "", ErrInvalidToken
	}

	removed, err := s.passwordResetRepo.DeleteByFingerprint(ctx, fingerprint)
	if err != nil {
		return "", transient("delete reset token", err)
	}
	if !removed {
		return "", ErrInvalidToken
	}

	if err := s.sessions.InvalidateUserSessions(ctx, token.UserID); err != nil {
		return "", transient("invalidate sessions", err)
	}

	return token.UserID, nil
}

// CurrentUser resolves the session and its user. Missing or expired sessions
// return ErrUnauthorized.
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*Session, *user.User, error) {
	session, err := s.sessions.ValidateSession(ctx, sessionID)
	if err != nil {
		return nil, nil, transient("validate session", err)
	}
	if session == nil {
		return nil, nil, ErrUnauthorized
	}

	u, err := s.userRepo.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			if err := s.sessions.InvalidateSession(ctx, session.ID); err != nil {
				s.logger.Warn("failed to delete orphaned session", "error", err)
			}
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, transient("find user", err)
	}

	return session, u, nil
}

// PurgeExpired deletes expired sessions and reset tokens
func (s *Service) PurgeExpired(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult

	n, err := s.sessions.DeleteExpiredSessions(ctx)
	if err != nil {
		return result, fmt.Errorf("purge sessions: %w", err)
	}
	result.Sessions = n

	n, err = s.passwordResetRepo.DeleteExpired(ctx)
	if err != nil {
		return result, fmt.Errorf("purge reset tokens: %w", err)
	}
	result.ResetTokens = n

	return result, nil
}

func (s *Service) startSession(ctx context.Context, u *user.User) (*AuthResult, error) {
	session, err := s.sessions.CreateSession(ctx, u.ID)
	if err != nil {
		return nil, transient("create session", err)
	}

	cookie, err := s.sessions.SessionCookie(session)
	if err != nil {
		return nil, transient("build session cookie", err)
	}

	return &AuthResult{User: u, Session: session, Cookie: cookie}, nil
}

func (s *Service) resetLink(secret string) string {
	return s.baseURL + "/auth/reset-password?token=" + url.QueryEscape(secret)
}
