package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxWatchAttempts = 5

// PasswordResetRedisRepository handles password reset token storage in Redis.
// A per-user pointer key holds the fingerprint of the user's current token.
type PasswordResetRedisRepository struct {
	client *redis.Client
}

func NewPasswordResetRedisRepository(client *redis.Client) *PasswordResetRedisRepository {
	return &PasswordResetRedisRepository{client: client}
}

func passwordResetKey(fingerprint string) string {
	return fmt.Sprintf("password_reset:%s", fingerprint)
}

func userPasswordResetKey(userID string) string {
	return fmt.Sprintf("user_password_reset:%s", userID)
}

// Replace swaps the user's token under WATCH on the pointer key, retrying
// when a concurrent Replace for the same user wins the race
func (r *PasswordResetRedisRepository) Replace(ctx context.Context, token *PasswordResetToken) error {
	if !token.ExpiresAt.After(time.Now()) {
		return fmt.Errorf("password reset token expiration time is in the past")
	}

	pointerKey := userPasswordResetKey(token.UserID)

	replace := func(tx *redis.Tx) error {
		previous, err := tx.Get(ctx, pointerKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if previous != "" {
				pipe.Del(ctx, passwordResetKey(previous))
			}
			key := passwordResetKey(token.Fingerprint)
			pipe.HSet(ctx, key, map[string]interface{}{
				"user_id":    token.UserID,
				"created_at": token.CreatedAt.UnixMilli(),
				"expires_at": token.ExpiresAt.UnixMilli(),
			})
			pipe.PExpireAt(ctx, key, token.ExpiresAt)
			pipe.Set(ctx, pointerKey, token.Fingerprint, 0)
			pipe.PExpireAt(ctx, pointerKey, token.ExpiresAt)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchAttempts; i++ {
		err := r.client.Watch(ctx, replace, pointerKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to store password reset token: %w", err)
		}
		return nil
	}

	return fmt.Errorf("failed to store password reset token: %w", redis.TxFailedErr)
}

func (r *PasswordResetRedisRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*PasswordResetToken, error) {
	data, err := r.client.HGetAll(ctx, passwordResetKey(fingerprint)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get password reset token: %w", err)
	}

	if len(data) == 0 {
		return nil, ErrResetTokenNotFound
	}

	createdAt, err := parseUnixMilli(data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse password reset token created_at: %w", err)
	}

	expiresAt, err := parseUnixMilli(data["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse password reset token expires_at: %w", err)
	}

	return &PasswordResetToken{
		Fingerprint: fingerprint,
		UserID:      data["user_id"],
		CreatedAt:   createdAt,
		ExpiresAt:   expiresAt,
	}, nil
}

func (r *PasswordResetRedisRepository) FindByUser(ctx context.Context, userID string) (*PasswordResetToken, error) {
	fingerprint, err := r.client.Get(ctx, userPasswordResetKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrResetTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user password reset token: %w", err)
	}

	return r.FindByFingerprint(ctx, fingerprint)
}

// DeleteByFingerprint relies on DEL reporting the number of removed keys, so
// only one of several concurrent callers sees true
func (r *PasswordResetRedisRepository) DeleteByFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	key := passwordResetKey(fingerprint)

	userID, err := r.client.HGet(ctx, key, "user_id").Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get password reset token: %w", err)
	}

	removed, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete password reset token: %w", err)
	}
	if removed == 0 {
		return false, nil
	}

	if err := r.clearPointer(ctx, userID, fingerprint); err != nil {
		return true, fmt.Errorf("failed to clear password reset pointer: %w", err)
	}

	return true, nil
}

// clearPointer drops the user's pointer only while it still names
// fingerprint. A concurrent Replace aborts the transaction and keeps its
// new pointer; a stale pointer only costs a no-op DEL on the next Replace.
func (r *PasswordResetRedisRepository) clearPointer(ctx context.Context, userID, fingerprint string) error {
	pointerKey := userPasswordResetKey(userID)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, pointerKey).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if current != fingerprint {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, pointerKey)
			return nil
		})
		return err
	}, pointerKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (r *PasswordResetRedisRepository) DeleteByUser(ctx context.Context, userID string) error {
	pointerKey := userPasswordResetKey(userID)

	fingerprint, err := r.client.Get(ctx, pointerKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get user password reset token: %w", err)
	}

	if err := r.client.Del(ctx, passwordResetKey(fingerprint), pointerKey).Err(); err != nil {
		return fmt.Errorf("failed to delete user password reset token: %w", err)
	}

	return nil
}

// DeleteExpired is a no-op for Redis as TTL handles expiration
func (r *PasswordResetRedisRepository) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}
