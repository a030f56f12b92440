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

var ErrResetTokenNotFound = errors.New("password reset token not found")

// PasswordResetToken is a stored reset token. The secret itself is never
// stored, only its fingerprint.
type PasswordResetToken struct {
	Fingerprint string
	UserID      string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// PasswordResetRepository persists reset tokens, at most one per user
type PasswordResetRepository interface {
	// Replace stores token, discarding any token the user already had
	Replace(ctx context.Context, token *PasswordResetToken) error
	FindByUser(ctx context.Context, userID string) (*PasswordResetToken, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (*PasswordResetToken, error)
	// DeleteByFingerprint reports whether this call removed the token
	DeleteByFingerprint(ctx context.Context, fingerprint string) (bool, error)
	DeleteByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// PasswordResetDBRepository handles reset token persistence in the
// relational database
type PasswordResetDBRepository struct {
	db *bun.DB
}

func NewPasswordResetDBRepository(db *bun.DB) *PasswordResetDBRepository {
	return &PasswordResetDBRepository{db: db}
}

// Replace upserts on the unique user_id so concurrent requests for the same
// user still leave a single row
func (r *PasswordResetDBRepository) Replace(ctx context.Context, token *PasswordResetToken) error {
	dbToken := &database.PasswordResetToken{
		TokenHash: token.Fingerprint,
		UserID:    token.UserID,
		CreatedAt: token.CreatedAt.UTC(),
		ExpiresAt: token.ExpiresAt.UTC(),
	}

	_, err := r.db.NewInsert().
		Model(dbToken).
		On("CONFLICT (user_id) DO UPDATE").
		Set("token_hash = EXCLUDED.token_hash").
		Set("created_at = EXCLUDED.created_at").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to store password reset token: %w", err)
	}

	return nil
}

func (r *PasswordResetDBRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*PasswordResetToken, error) {
	return r.findOne(ctx, "token_hash = ?", fingerprint)
}

func (r *PasswordResetDBRepository) FindByUser(ctx context.Context, userID string) (*PasswordResetToken, error) {
	return r.findOne(ctx, "user_id = ?", userID)
}

func (r *PasswordResetDBRepository) findOne(ctx context.Context, where string, arg string) (*PasswordResetToken, error) {
	dbToken := new(database.PasswordResetToken)
	err := r.db.NewSelect().
		Model(dbToken).
		Where(where, arg).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResetTokenNotFound
		}
		return nil, fmt.Errorf("failed to get password reset token: %w", err)
	}

	return &PasswordResetToken{
		Fingerprint: dbToken.TokenHash,
		UserID:      dbToken.UserID,
		CreatedAt:   dbToken.CreatedAt,
		ExpiresAt:   dbToken.ExpiresAt,
	}, nil
}

func (r *PasswordResetDBRepository) DeleteByFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	result, err := r.db.NewDelete().
		Model((*database.PasswordResetToken)(nil)).
		Where("token_hash = ?", fingerprint).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to delete password reset token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (r *PasswordResetDBRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.NewDelete().
		Model((*database.PasswordResetToken)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete user password reset tokens: %w", err)
	}

	return nil
}

func (r *PasswordResetDBRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.NewDelete().
		Model((*database.PasswordResetToken)(nil)).
		Where("expires_at <= ?", time.Now().UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired password reset tokens: %w", err)
	}

	return result.RowsAffected()
}
