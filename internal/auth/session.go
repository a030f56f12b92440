package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

// Session binds a random identifier to a user
type Session struct {
	ID        string    `json:"-"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	// Fresh is set when the session was just created or extended and the
	// client needs a new cookie
	Fresh bool `json:"-"`
}

// SessionRepository persists sessions
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	Find(ctx context.Context, sessionID string) (*Session, error)
	UpdateExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error
	Delete(ctx context.Context, sessionID string) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionManager issues, validates and invalidates sessions and produces the
// matching cookies
type SessionManager struct {
	repo     SessionRepository
	duration time.Duration
	cookie   CookieConfig
	sealer   CookieSealer
	now      func() time.Time
}

// NewSessionManager creates a session manager. sealer may be nil, in which
// case the raw session id is used as the cookie value.
func NewSessionManager(repo SessionRepository, duration time.Duration, cookie CookieConfig, sealer CookieSealer) *SessionManager {
	return &SessionManager{
		repo:     repo,
		duration: duration,
		cookie:   cookie,
		sealer:   sealer,
		now:      time.Now,
	}
}

// CreateSession starts a new session for userID
func (m *SessionManager) CreateSession(ctx context.Context, userID string) (*Session, error) {
	id, err := GenerateSecret(DefaultSecretEntropy)
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	now := m.now().UTC()
	session := &Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.duration),
		Fresh:     true,
	}

	if err := m.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	return session, nil
}

// ValidateSession returns the active session for sessionID, or nil when it
// does not exist or has expired. Sessions past half of their lifetime are
// extended by a full lifetime and marked Fresh.
func (m *SessionManager) ValidateSession(ctx context.Context, sessionID string) (*Session, error) {
	if !looksLikeSecret(sessionID) {
		return nil, nil
	}

	session, err := m.repo.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find session: %w", err)
	}

	now := m.now().UTC()
	if !now.Before(session.ExpiresAt) {
		if err := m.repo.Delete(ctx, sessionID); err != nil {
			return nil, fmt.Errorf("delete expired session: %w", err)
		}
		return nil, nil
	}

	if session.ExpiresAt.Sub(now) < m.duration/2 {
		expiresAt := now.Add(m.duration)
		if err := m.repo.UpdateExpiry(ctx, sessionID, expiresAt); err != nil {
			return nil, fmt.Errorf("extend session: %w", err)
		}
		session.ExpiresAt = expiresAt
		session.Fresh = true
	}

	return session, nil
}

// InvalidateSession deletes a single session
func (m *SessionManager) InvalidateSession(ctx context.Context, sessionID string) error {
	if err := m.repo.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// InvalidateUserSessions deletes every session of userID
func (m *SessionManager) InvalidateUserSessions(ctx context.Context, userID string) error {
	if err := m.repo.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions whose expiry has passed
func (m *SessionManager) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	return m.repo.DeleteExpired(ctx)
}

// SessionCookie builds the cookie carrying session
func (m *SessionManager) SessionCookie(session *Session) (CookieSpec, error) {
	value := session.ID
	if m.sealer != nil {
		sealed, err := m.sealer.Seal(session.ID, session.ExpiresAt)
		if err != nil {
			return CookieSpec{}, fmt.Errorf("seal session cookie: %w", err)
		}
		value = sealed
	}

	maxAge := int(session.ExpiresAt.Sub(m.now()).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}

	return CookieSpec{
		Name:  m.cookie.Name,
		Value: value,
		Attributes: CookieAttributes{
			HTTPOnly: true,
			Secure:   m.cookie.Secure,
			SameSite: m.cookie.SameSite,
			Path:     m.cookie.Path,
			Domain:   m.cookie.Domain,
			MaxAge:   maxAge,
			Expires:  session.ExpiresAt,
		},
	}, nil
}

// BlankCookie builds a cookie that clears the session cookie
func (m *SessionManager) BlankCookie() CookieSpec {
	return CookieSpec{
		Name:  m.cookie.Name,
		Value: "",
		Attributes: CookieAttributes{
			HTTPOnly: true,
			Secure:   m.cookie.Secure,
			SameSite: m.cookie.SameSite,
			Path:     m.cookie.Path,
			Domain:   m.cookie.Domain,
			MaxAge:   0,
		},
	}
}

// SessionIDFromCookieValue reverses the cookie encoding done by SessionCookie
func (m *SessionManager) SessionIDFromCookieValue(value string) (string, error) {
	if value == "" {
		return "", ErrInvalidCookie
	}
	if m.sealer == nil {
		return value, nil
	}
	return m.sealer.Open(value)
}

// SessionIDFromRequest extracts the session id from the request cookie
func (m *SessionManager) SessionIDFromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(m.cookie.Name)
	if err != nil {
		return "", false
	}

	id, err := m.SessionIDFromCookieValue(c.Value)
	if err != nil {
		return "", false
	}
	return id, true
}
