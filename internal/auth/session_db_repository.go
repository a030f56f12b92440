package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/redmonkez12/go-session-auth/internal/database"
)

// SessionDBRepository handles session persistence in the relational database
type SessionDBRepository struct {
	db *bun.DB
}

func NewSessionDBRepository(db *bun.DB) *SessionDBRepository {
	return &SessionDBRepository{db: db}
}

// Create stores a new session row
func (r *SessionDBRepository) Create(ctx context.Context, session *Session) error {
	dbSession := &database.Session{
		ID:        session.ID,
		UserID:    session.UserID,
		CreatedAt: session.CreatedAt.UTC(),
		ExpiresAt: session.ExpiresAt.UTC(),
	}

	_, err := r.db.NewInsert().
		Model(dbSession).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	return nil
}

// Find retrieves a session by id regardless of its expiry
func (r *SessionDBRepository) Find(ctx context.Context, sessionID string) (*Session, error) {
	dbSession := new(database.Session)
	err := r.db.NewSelect().
		Model(dbSession).
		Where("id = ?", sessionID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return mapDBSessionToModel(dbSession), nil
}

// UpdateExpiry moves the expiry of an existing session
func (r *SessionDBRepository) UpdateExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.Session)(nil)).
		Set("expires_at = ?", expiresAt.UTC()).
		Where("id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update session expiry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (r *SessionDBRepository) Delete(ctx context.Context, sessionID string) error {
	_, err := r.db.NewDelete().
		Model((*database.Session)(nil)).
		Where("id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

// DeleteByUser removes every session belonging to userID
func (r *SessionDBRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.NewDelete().
		Model((*database.Session)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}

	return nil
}

// DeleteExpired removes expired sessions.
// Should be run periodically (e.g., via authctl cleanup)
func (r *SessionDBRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.NewDelete().
		Model((*database.Session)(nil)).
		Where("expires_at <= ?", time.Now().UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}

	return result.RowsAffected()
}

func mapDBSessionToModel(dbs *database.Session) *Session {
	return &Session{
		ID:        dbs.ID,
		UserID:    dbs.UserID,
		CreatedAt: dbs.CreatedAt,
		ExpiresAt: dbs.ExpiresAt,
	}
}
